package channels

import (
	"context"
	"log"
)

// NoopSink only logs. It stands in for the announce channel when none is
// configured.
type NoopSink struct {
	id  string
	log *log.Logger
}

func NewNoopSink(id string, logger *log.Logger) *NoopSink {
	if logger == nil {
		logger = log.Default()
	}
	return &NoopSink{id: id, log: logger}
}

func (s *NoopSink) ID() string { return s.id }

func (s *NoopSink) Start(_ context.Context) error { return nil }

func (s *NoopSink) Send(_ context.Context, text string) error {
	s.log.Printf("noop channel sink=%s announce=%q", s.id, text)
	return nil
}
