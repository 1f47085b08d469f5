package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/grixate/hunthelper/internal/config"
	"github.com/grixate/hunthelper/internal/provision"
)

type recordingSink struct {
	id   string
	sent []string
	err  error
}

func (s *recordingSink) ID() string                  { return s.id }
func (s *recordingSink) Start(context.Context) error { return nil }
func (s *recordingSink) Send(_ context.Context, text string) error {
	s.sent = append(s.sent, text)
	return s.err
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry(log.New(io.Discard, "", 0))
	if err := reg.Register(&recordingSink{id: "discord"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&recordingSink{id: " Discord "}); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
	if err := reg.Register(&recordingSink{id: ""}); err == nil {
		t.Fatal("expected empty id to be rejected")
	}
}

func TestBroadcastReachesEverySink(t *testing.T) {
	var logs bytes.Buffer
	reg := NewRegistry(log.New(&logs, "", 0))
	ok := &recordingSink{id: "discord"}
	broken := &recordingSink{id: "telegram", err: errors.New("offline")}
	_ = reg.Register(ok)
	_ = reg.Register(broken)

	err := reg.Broadcast(context.Background(), "solved")
	if err == nil || !strings.Contains(err.Error(), "channel telegram: offline") {
		t.Fatalf("expected joined telegram failure, got %v", err)
	}
	if len(ok.sent) != 1 || len(broken.sent) != 1 {
		t.Fatalf("expected both sinks to be tried")
	}

	reg.Announce(context.Background(), "again")
	if !strings.Contains(logs.String(), "announce failed") {
		t.Fatalf("expected announce failure to be logged, got %q", logs.String())
	}
}

func TestDiscordSinkPostsToAnnounceChannel(t *testing.T) {
	var path, auth, content string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		content, _ = payload["content"].(string)
		_, _ = io.WriteString(w, `{"id":"m1"}`)
	}))
	defer ts.Close()

	discord := provision.NewDiscordService(config.DiscordConfig{APIBase: ts.URL, BotToken: "token-1"}, ts.Client())
	sink := NewDiscordSink(discord, "123")
	if err := sink.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if path != "/channels/123/messages" || auth != "Bot token-1" || content != "hello" {
		t.Fatalf("unexpected request path=%s auth=%s content=%s", path, auth, content)
	}

	if err := NewDiscordSink(discord, "").Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error without channel")
	}
}

func TestNoopSink(t *testing.T) {
	var logs bytes.Buffer
	sink := NewNoopSink("announce", log.New(&logs, "", 0))
	if err := sink.Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logs.String(), `sink=announce announce="hi"`) {
		t.Fatalf("unexpected log %q", logs.String())
	}
}
