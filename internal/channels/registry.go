package channels

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
)

// Sink is an outbound destination for team announcements.
type Sink interface {
	ID() string
	Start(ctx context.Context) error
	Send(ctx context.Context, text string) error
}

type Registry struct {
	sinks map[string]Sink
	log   *log.Logger
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{sinks: map[string]Sink{}, log: logger}
}

func (r *Registry) Register(sink Sink) error {
	if r == nil {
		return fmt.Errorf("channel registry is nil")
	}
	if sink == nil {
		return fmt.Errorf("channel sink is nil")
	}
	id := strings.ToLower(strings.TrimSpace(sink.ID()))
	if id == "" {
		return fmt.Errorf("channel sink id is empty")
	}
	if _, exists := r.sinks[id]; exists {
		return fmt.Errorf("channel sink %q already registered", id)
	}
	r.sinks[id] = sink
	return nil
}

func (r *Registry) StartAll(ctx context.Context) {
	if r == nil {
		return
	}
	for id, sink := range r.sinks {
		id := id
		sink := sink
		go func() {
			if err := sink.Start(ctx); err != nil {
				r.log.Printf("channel %s stopped: %v", id, err)
			}
		}()
	}
}

// Broadcast sends text to every registered sink and joins their failures.
func (r *Registry) Broadcast(ctx context.Context, text string) error {
	if r == nil {
		return fmt.Errorf("channel registry is nil")
	}
	var errs []error
	for _, id := range r.IDs() {
		if err := r.sinks[id].Send(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Announce is Broadcast for callers that cannot act on delivery failures.
func (r *Registry) Announce(ctx context.Context, text string) {
	if err := r.Broadcast(ctx, text); err != nil {
		r.log.Printf("channels: announce failed: %v", err)
	}
}

func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.sinks))
	for id := range r.sinks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
