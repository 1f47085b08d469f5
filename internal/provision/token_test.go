package provision

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestTokenSourceCachesUntilMargin(t *testing.T) {
	fake, srv := newFakeServices(t)
	fake.expiresIn = 60
	cfg := testConfig(srv.URL)
	source := NewTokenSource(cfg.Drive, srv.Client(), nil)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	source.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := source.Token(ctx)
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	now = now.Add(49 * time.Second)
	second, err := source.Token(ctx)
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached token, got %q then %q", first, second)
	}

	now = now.Add(2 * time.Second)
	third, err := source.Token(ctx)
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if third == second {
		t.Fatal("expected refresh inside the 10s margin")
	}

	calls := fake.matching(http.MethodPost, "/token")
	if len(calls) != 2 {
		t.Fatalf("expected 2 refreshes, got %d", len(calls))
	}
	form, err := url.ParseQuery(calls[0].Form)
	if err != nil {
		t.Fatal(err)
	}
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "refresh" || form.Get("client_secret") != "secret" {
		t.Fatalf("unexpected refresh form %v", form)
	}
	snap := source.Snapshot()
	if snap.AccessToken != third || !snap.ExpiresAt.Equal(now.Add(60*time.Second)) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestTokenSourceRestoreSkipsRefresh(t *testing.T) {
	fake, srv := newFakeServices(t)
	source := NewTokenSource(testConfig(srv.URL).Drive, srv.Client(), nil)
	source.Restore(Credential{AccessToken: "persisted", ExpiresAt: time.Now().Add(time.Hour)})

	token, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if token != "persisted" {
		t.Fatalf("expected persisted token, got %q", token)
	}
	if len(fake.matching(http.MethodPost, "/token")) != 0 {
		t.Fatal("expected no refresh for a fresh persisted token")
	}
}

func TestTokenSourceRefreshFailure(t *testing.T) {
	fake, srv := newFakeServices(t)
	fake.failPaths["/token"] = http.StatusUnauthorized
	source := NewTokenSource(testConfig(srv.URL).Drive, srv.Client(), nil)

	_, err := source.Token(context.Background())
	reqErr, ok := err.(*RequestError)
	if !ok || !reqErr.Unauthorized() {
		t.Fatalf("expected unauthorized request error, got %v", err)
	}
}
