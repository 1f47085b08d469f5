package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrMailboxFull = errors.New("actor mailbox full")
	ErrStopped     = errors.New("actor stopped")
)

// Handler owns whatever state the mailbox serializes access to. Handle is
// only ever called from the mailbox goroutine.
type Handler interface {
	Handle(ctx context.Context, payload any) (any, error)
}

type HandlerFunc func(ctx context.Context, payload any) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, payload any) (any, error) {
	return f(ctx, payload)
}

type request struct {
	ctx     context.Context
	payload any
	resp    chan response
}

type response struct {
	value any
	err   error
}

// Mailbox runs a single Handler on one goroutine and feeds it requests in
// arrival order. A full mailbox rejects instead of blocking the caller.
type Mailbox struct {
	mu      sync.Mutex
	handler Handler
	mailbox chan request
	closed  chan struct{}
	stopped bool
	onPanic func(any)
}

func NewMailbox(handler Handler, capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = 32
	}
	m := &Mailbox{
		handler: handler,
		mailbox: make(chan request, capacity),
		closed:  make(chan struct{}),
	}
	go m.run()
	return m
}

// SetPanicHook is called with the recovered value whenever Handle panics.
func (m *Mailbox) SetPanicHook(fn func(any)) {
	m.mu.Lock()
	m.onPanic = fn
	m.mu.Unlock()
}

// Stop drains queued requests and waits for the handler goroutine to exit.
func (m *Mailbox) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		<-m.closed
		return nil
	}
	m.stopped = true
	close(m.mailbox)
	m.mu.Unlock()
	<-m.closed
	return nil
}

func (m *Mailbox) Submit(ctx context.Context, payload any, wait bool) (any, error) {
	req := request{ctx: ctx, payload: payload}
	if wait {
		req.resp = make(chan response, 1)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	select {
	case m.mailbox <- req:
	default:
		m.mu.Unlock()
		return nil, ErrMailboxFull
	}
	m.mu.Unlock()

	if !wait {
		return nil, nil
	}

	select {
	case res := <-req.resp:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Mailbox) Pending() int {
	return len(m.mailbox)
}

func (m *Mailbox) run() {
	defer close(m.closed)
	for req := range m.mailbox {
		m.handle(req)
	}
}

func (m *Mailbox) handle(req request) {
	defer func() {
		if rec := recover(); rec != nil {
			m.mu.Lock()
			hook := m.onPanic
			m.mu.Unlock()
			if hook != nil {
				hook(rec)
			}
			if req.resp != nil {
				req.resp <- response{err: fmt.Errorf("actor panic: %v", rec)}
			}
		}
	}()

	if err := req.ctx.Err(); err != nil {
		if req.resp != nil {
			req.resp <- response{err: err}
		}
		return
	}
	value, err := m.handler.Handle(req.ctx, req.payload)
	if req.resp != nil {
		req.resp <- response{value: value, err: err}
	}
}
