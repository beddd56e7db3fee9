// Package events publishes stream and session lifecycle notifications to
// NATS so the Control Plane can subscribe instead of only polling /health
// and /sessions. Publishing is best-effort: a publish failure is logged and
// swallowed, never propagated back into a state transition.
package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	StreamSubject  = "nearhome.stream.lifecycle"
	SessionSubject = "nearhome.session.lifecycle"
)

// Event is the envelope published for both stream and session transitions.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emittedAt"`
}

// Publisher publishes lifecycle events to NATS. A nil *nats.Conn is valid:
// every Publish becomes a no-op, so a gateway that can't reach NATS at
// startup still serves playback.
type Publisher struct {
	conn       *nats.Conn
	maxRetries int
}

// Connect dials addr with a bounded timeout. On failure it returns a
// Publisher with no connection rather than an error, per the "never fatal"
// contract for this collaborator.
func Connect(url string, maxRetries int) *Publisher {
	conn, err := nats.Connect(url, nats.Timeout(2*time.Second), nats.MaxReconnects(5))
	if err != nil {
		log.Printf("events: nats unreachable at %s, publishing disabled: %v", url, err)
		return &Publisher{maxRetries: maxRetries}
	}
	return &Publisher{conn: conn, maxRetries: maxRetries}
}

func (p *Publisher) publish(subject string, evt Event) {
	if p.conn == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("events: marshal %s: %v", evt.Type, err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if lastErr = p.conn.Publish(subject, data); lastErr == nil {
			return
		}
		time.Sleep(time.Duration(attempt*100) * time.Millisecond)
	}
	log.Printf("events: publish %s failed after %d retries: %v", evt.Type, p.maxRetries, lastErr)
}

// EmitStream publishes a stream-lifecycle event (provisioned, reprovisioned,
// deprovisioned).
func (p *Publisher) EmitStream(eventType string, payload interface{}) {
	p.publish(StreamSubject, Event{Type: eventType, Payload: payload, EmittedAt: time.Now()})
}

// EmitSession publishes a session-lifecycle event. Exposed separately from
// the playback.EventSink adapter (see sink.go) so Publisher itself never
// depends on internal/playback's concrete Session type.
func (p *Publisher) EmitSession(eventType string, session interface{}) {
	p.publish(SessionSubject, Event{Type: eventType, Payload: session, EmittedAt: time.Now()})
}

// Close closes the underlying connection, if any.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
