package asset

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	tenantID, cameraID, asset string
}

// CachingReader front-ends a Reader with a read-through LRU cache keyed by
// (tenantId, cameraId, asset). It does not change retry semantics: a
// retryable miss still retries against disk, the cache only absorbs repeat
// reads of an already-resolved asset. Invalidated explicitly on
// reprovision/deprovision so a cached manifest never outlives the version it
// was read for.
type CachingReader struct {
	reader *Reader
	cache  *lru.Cache[cacheKey, []byte]

	mu sync.Mutex
}

// NewCachingReader wraps reader with an LRU of the given size. A size of 0 or
// less is raised to 1, so caching cannot be switched off through size.
func NewCachingReader(reader *Reader, size int) (*CachingReader, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[cacheKey, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachingReader{reader: reader, cache: cache}, nil
}

func (c *CachingReader) ReadManifest(tenantID, cameraID, token string) ([]byte, error) {
	raw, err := c.readRawManifestCached(tenantID, cameraID)
	if err != nil {
		return nil, err
	}
	return rewriteManifest(raw, tenantID, cameraID, token), nil
}

func (c *CachingReader) readRawManifestCached(tenantID, cameraID string) ([]byte, error) {
	key := cacheKey{tenantID, cameraID, "manifest"}
	c.mu.Lock()
	if v, ok := c.cache.Get(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	raw, err := c.reader.ReadRawManifest(tenantID, cameraID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache.Add(key, raw)
	c.mu.Unlock()
	return raw, nil
}

func (c *CachingReader) ReadSegment(tenantID, cameraID string) ([]byte, error) {
	key := cacheKey{tenantID, cameraID, "segment"}
	c.mu.Lock()
	if v, ok := c.cache.Get(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	data, err := c.reader.ReadSegment(tenantID, cameraID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache.Add(key, data)
	c.mu.Unlock()
	return data, nil
}

// RetryCount delegates to the underlying reader for metrics.
func (c *CachingReader) RetryCount(tenantID, cameraID, asset string) int64 {
	return c.reader.RetryCount(tenantID, cameraID, asset)
}

// Invalidate drops any cached manifest/segment for (tenantID, cameraID). Call
// on every Upsert/MarkStopped so a reprovisioned stream is never served a
// stale manifest.
func (c *CachingReader) Invalidate(tenantID, cameraID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(cacheKey{tenantID, cameraID, "manifest"})
	c.cache.Remove(cacheKey{tenantID, cameraID, "segment"})
}
