package events

import "github.com/nearhome/streamd/internal/playback"

// SessionSink adapts a Publisher to playback.EventSink. Kept in its own
// file so Publisher itself stays independent of the playback package's
// concrete Session type.
type SessionSink struct {
	Publisher *Publisher
}

func (s SessionSink) Emit(eventType string, session playback.Session) {
	s.Publisher.EmitSession(eventType, session)
}
