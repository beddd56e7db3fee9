// Package asset writes and serves the synthetic manifest/segment pair backing
// a provisioned stream, and implements the retry-with-backoff read policy
// that tolerates a transient-missing filesystem underneath concurrent
// writers.
package asset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nearhome/streamd/internal/platform/paths"
)

const (
	ManifestName = "index.m3u8"
	SegmentName  = "segment0.ts"

	segmentMarker = "NEARHOME_STREAM_SEGMENT"
)

// Producer writes the placeholder manifest and segment for a stream under a
// storage root. Swappable for a real encoder without changing the contract
// Registry.Upsert depends on (stream.AssetProducer).
type Producer struct {
	root string
}

func NewProducer(root string) *Producer {
	return &Producer{root: root}
}

// StreamDir returns the directory a stream's assets live under.
func (p *Producer) StreamDir(tenantID, cameraID string) (string, error) {
	return paths.SafeJoin(p.root, tenantID, cameraID)
}

// Ensure writes (or overwrites) the manifest and segment for
// (tenantID, cameraID). Directory creation is recursive and idempotent, and
// the process does not assume exclusive ownership of pre-existing files.
func (p *Producer) Ensure(tenantID, cameraID string) error {
	dir, err := p.StreamDir(tenantID, cameraID)
	if err != nil {
		return err
	}
	if err := paths.EnsureDir(dir); err != nil {
		return err
	}

	segmentPath := filepath.Join(dir, SegmentName)
	if err := writeFile(segmentPath, []byte(segmentMarker)); err != nil {
		return fmt.Errorf("asset: write segment for %s/%s: %w", tenantID, cameraID, err)
	}

	manifest := buildManifest()
	manifestPath := filepath.Join(dir, ManifestName)
	if err := writeFile(manifestPath, []byte(manifest)); err != nil {
		return fmt.Errorf("asset: write manifest for %s/%s: %w", tenantID, cameraID, err)
	}
	return nil
}

func buildManifest() string {
	return "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:5\n" +
		"#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXTINF:5.0,\n" +
		SegmentName + "\n"
}

// writeFile writes to a temp file in the same directory and renames it into
// place, so a concurrent reader observes either the previous or next
// version, never a torn file.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
