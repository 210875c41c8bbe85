package audit

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubjectPrefix is prepended to the event type to form the subject.
const DefaultSubjectPrefix = "edgeauth.audit"

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSink publishes each event as JSON on "<prefix>.<event_type>". Publishing
// is fire-and-forget: failures are logged and the event is dropped.
type NATSSink struct {
	pub    Publisher
	prefix string
	logger zerolog.Logger
}

func NewNATSSink(pub Publisher, prefix string, logger zerolog.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{pub: pub, prefix: prefix, logger: logger}
}

func (s *NATSSink) Emit(_ context.Context, event Event) {
	if s == nil || s.pub == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	subject := s.prefix + "." + event.EventType
	if err := s.pub.Publish(subject, data); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("audit.publish_failed")
	}
}
