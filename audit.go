package edgeauth

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/trackwise/edgeauth/internal/audit"
)

// AuditEvent is one audit record emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink returns a sink writing events through logger.
func NewLogSink(logger zerolog.Logger) AuditSink {
	return audit.NewLogSink(logger)
}
