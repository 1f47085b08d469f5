package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type counter struct {
	count int
}

func (c *counter) Handle(ctx context.Context, payload any) (any, error) {
	c.count++
	return c.count, nil
}

func TestMailboxSerializesHandler(t *testing.T) {
	h := &counter{}
	box := NewMailbox(h, 16)
	defer box.Stop()

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				for {
					_, err := box.Submit(context.Background(), j, true)
					if errors.Is(err, ErrMailboxFull) {
						continue
					}
					if err != nil {
						t.Errorf("submit failed: %v", err)
					}
					break
				}
			}
		}()
	}
	wg.Wait()

	got, err := box.Submit(context.Background(), nil, true)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if got.(int) != workers*5+1 {
		t.Fatalf("expected %d handled requests, got %v", workers*5+1, got)
	}
}

func TestMailboxFullRejects(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	box := NewMailbox(HandlerFunc(func(ctx context.Context, payload any) (any, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	}), 1)
	defer box.Stop()

	if _, err := box.Submit(context.Background(), 1, false); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	<-started
	if _, err := box.Submit(context.Background(), 2, false); err != nil {
		t.Fatalf("queued submit failed: %v", err)
	}
	if _, err := box.Submit(context.Background(), 3, false); !errors.Is(err, ErrMailboxFull) {
		t.Fatalf("expected ErrMailboxFull, got %v", err)
	}
	close(release)
}

func TestMailboxRecoversPanics(t *testing.T) {
	var recovered any
	box := NewMailbox(HandlerFunc(func(ctx context.Context, payload any) (any, error) {
		if payload == "boom" {
			panic("kaboom")
		}
		return "ok", nil
	}), 4)
	box.SetPanicHook(func(v any) { recovered = v })

	if _, err := box.Submit(context.Background(), "boom", true); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	got, err := box.Submit(context.Background(), "fine", true)
	if err != nil || got != "ok" {
		t.Fatalf("mailbox should survive a panic, got %v %v", got, err)
	}
	if err := box.Stop(); err != nil {
		t.Fatal(err)
	}
	if recovered != "kaboom" {
		t.Fatalf("expected panic hook, got %v", recovered)
	}
	if _, err := box.Submit(context.Background(), "late", true); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
