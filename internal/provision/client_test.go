package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grixate/hunthelper/internal/config"
	"github.com/grixate/hunthelper/internal/hunt"
	"github.com/grixate/hunthelper/internal/telemetry"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
	Form   string
}

type fakeServices struct {
	mu         sync.Mutex
	requests   []recordedRequest
	nextID     int
	tokenCalls int
	failPaths  map[string]int
	expiresIn  int
	block      chan struct{}
}

func newFakeServices(t *testing.T) (*fakeServices, *httptest.Server) {
	t.Helper()
	f := &fakeServices{failPaths: map[string]int{}, expiresIn: 3600}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServices) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	if r.URL.Path == "/token" {
		rec.Form = string(raw)
	} else if len(raw) > 0 {
		_ = json.Unmarshal(raw, &rec.Body)
	}
	f.requests = append(f.requests, rec)
	status := f.failPaths[r.URL.Path]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		http.Error(w, "boom", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/token":
		f.mu.Lock()
		f.tokenCalls++
		token := fmt.Sprintf("access-%d", f.tokenCalls)
		expires := f.expiresIn
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": token, "expires_in": expires, "token_type": "Bearer"})
	case r.Method == http.MethodPost && (r.URL.Path == "/drive/files" || strings.HasSuffix(r.URL.Path, "/channels")):
		f.mu.Lock()
		f.nextID++
		id := fmt.Sprintf("id-%d", f.nextID)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
	default:
		_, _ = w.Write([]byte("{}"))
	}
}

func (f *fakeServices) matching(method, path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, req := range f.requests {
		if req.Method == method && req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.Drive.APIBase = baseURL + "/drive"
	cfg.Drive.TokenURL = baseURL + "/token"
	cfg.Drive.RootFolderID = "root"
	cfg.Drive.ClientID = "client"
	cfg.Drive.ClientSecret = "secret"
	cfg.Drive.RefreshToken = "refresh"
	cfg.Discord.APIBase = baseURL + "/discord"
	cfg.Discord.GuildID = "guild"
	cfg.Discord.BotToken = "bot-token"
	cfg.Discord.LogChannelID = "log"
	cfg.Discord.PingID = "42"
	cfg.Discord.SolvedCategoryIDs = []string{"solved-0", "solved-1"}
	return cfg
}

func newTestClient(t *testing.T, cfg config.Config) (*Client, *bytes.Buffer, *telemetry.Metrics) {
	t.Helper()
	var buf bytes.Buffer
	metrics := &telemetry.Metrics{}
	return NewClient(cfg, log.New(&buf, "", 0), metrics), &buf, metrics
}

func TestCreateDocumentSendsDriveRequest(t *testing.T) {
	fake, srv := newFakeServices(t)
	client, _, metrics := newTestClient(t, testConfig(srv.URL))

	id, err := client.CreateDocument(context.Background(), KindSpreadsheet, "Puzzle 1", "folder-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id != "id-1" {
		t.Fatalf("unexpected id %q", id)
	}
	creates := fake.matching(http.MethodPost, "/drive/files")
	if len(creates) != 1 {
		t.Fatalf("expected one drive create, got %d", len(creates))
	}
	req := creates[0]
	if req.Auth != "Bearer access-1" {
		t.Fatalf("unexpected auth header %q", req.Auth)
	}
	if req.Body["mimeType"] != "application/vnd.google-apps.spreadsheet" {
		t.Fatalf("unexpected mime type %v", req.Body["mimeType"])
	}
	parents, _ := req.Body["parents"].([]any)
	if len(parents) != 1 || parents[0] != "folder-1" {
		t.Fatalf("unexpected parents %v", req.Body["parents"])
	}
	logs := fake.matching(http.MethodPost, "/discord/channels/log/messages")
	if len(logs) != 1 || !strings.Contains(logs[0].Body["content"].(string), "created drive spreadsheet: Puzzle 1") {
		t.Fatalf("expected audit log post, got %+v", logs)
	}
	if metrics.ProvisioningCalls.Load() != 1 || metrics.TokenRefreshes.Load() != 1 {
		t.Fatalf("unexpected metrics %+v", metrics.Snapshot())
	}
}

func TestCreateChannelFailureReturnsSentinel(t *testing.T) {
	fake, srv := newFakeServices(t)
	fake.failPaths["/discord/guilds/guild/channels"] = http.StatusInternalServerError
	client, logs, metrics := newTestClient(t, testConfig(srv.URL))

	id, err := client.CreateChannel(context.Background(), KindText, "Puzzle 1", "cat-1", "topic")
	if id != hunt.FailedID {
		t.Fatalf("expected sentinel id, got %q", id)
	}
	if !errors.Is(err, ErrProvisioningFailed) {
		t.Fatalf("expected provisioning error, got %v", err)
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected wrapped request error, got %v", err)
	}
	alerts := fake.matching(http.MethodPost, "/discord/channels/log/messages")
	if len(alerts) != 1 || !strings.HasPrefix(alerts[0].Body["content"].(string), "<@42> ") {
		t.Fatalf("expected pinged alert, got %+v", alerts)
	}
	if metrics.ProvisioningFailures.Load() != 1 {
		t.Fatalf("expected failure metric")
	}
	if !strings.Contains(logs.String(), "provision: create discord channel") {
		t.Fatalf("expected local log line, got %s", logs.String())
	}
}

func TestRejectedCredentialsGetTheirOwnAlert(t *testing.T) {
	fake, srv := newFakeServices(t)
	fake.failPaths["/discord/guilds/guild/channels"] = http.StatusForbidden
	fake.failPaths["/token"] = http.StatusUnauthorized
	client, _, metrics := newTestClient(t, testConfig(srv.URL))
	ctx := context.Background()

	if id, _ := client.CreateChannel(ctx, KindText, "Puzzle 1", "cat-1", ""); id != hunt.FailedID {
		t.Fatalf("expected sentinel id, got %q", id)
	}
	if id, _ := client.CreateDocument(ctx, KindSpreadsheet, "Puzzle 1", "folder-1"); id != hunt.FailedID {
		t.Fatalf("expected sentinel id, got %q", id)
	}

	alerts := fake.matching(http.MethodPost, "/discord/channels/log/messages")
	if len(alerts) != 2 {
		t.Fatalf("expected two alerts, got %+v", alerts)
	}
	first := alerts[0].Body["content"].(string)
	second := alerts[1].Body["content"].(string)
	if !strings.Contains(first, "discord rejected our credentials (status 403)") {
		t.Fatalf("unexpected channel alert %q", first)
	}
	if !strings.Contains(second, "oauth token rejected our credentials (status 401)") {
		t.Fatalf("unexpected drive alert %q", second)
	}
	if metrics.CredentialRejections.Load() != 2 || metrics.ProvisioningFailures.Load() != 2 {
		t.Fatalf("unexpected metrics %+v", metrics.Snapshot())
	}
}

func TestCreateChannelSendsBotCredential(t *testing.T) {
	fake, srv := newFakeServices(t)
	client, _, _ := newTestClient(t, testConfig(srv.URL))

	if _, err := client.CreateChannel(context.Background(), KindCategory, "Round A", "", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	creates := fake.matching(http.MethodPost, "/discord/guilds/guild/channels")
	if len(creates) != 1 {
		t.Fatalf("expected one create, got %d", len(creates))
	}
	if creates[0].Auth != "Bot bot-token" {
		t.Fatalf("unexpected auth %q", creates[0].Auth)
	}
	if creates[0].Body["type"] != float64(4) {
		t.Fatalf("expected category type, got %v", creates[0].Body["type"])
	}
	if _, ok := creates[0].Body["parent_id"]; ok {
		t.Fatal("category should not carry a parent")
	}
	if fake.tokenCalls != 0 {
		t.Fatal("channel calls must not refresh the drive token")
	}
}

func TestSolvedBucket(t *testing.T) {
	cases := []struct {
		index, buckets, want int
		clamped              bool
	}{
		{0, 2, 0, false},
		{49, 2, 0, false},
		{50, 2, 1, false},
		{99, 2, 1, false},
		{100, 2, 1, true},
		{3, 0, 0, true},
	}
	for _, tc := range cases {
		got, clamped := SolvedBucket(tc.index, tc.buckets)
		if got != tc.want || clamped != tc.clamped {
			t.Fatalf("SolvedBucket(%d,%d) = %d,%v want %d,%v", tc.index, tc.buckets, got, clamped, tc.want, tc.clamped)
		}
	}
}

func TestMoveToSolvedHolding(t *testing.T) {
	fake, srv := newFakeServices(t)
	client, _, _ := newTestClient(t, testConfig(srv.URL))
	ctx := context.Background()

	if err := client.MoveToSolvedHolding(ctx, "chan-50", "doc-50", "Puzzle Fifty", 49); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if err := client.MoveToSolvedHolding(ctx, "chan-51", "doc-51", "Puzzle Fifty-One", 50); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	first := fake.matching(http.MethodPatch, "/discord/channels/chan-50")
	second := fake.matching(http.MethodPatch, "/discord/channels/chan-51")
	if len(first) != 1 || first[0].Body["parent_id"] != "solved-0" {
		t.Fatalf("50th solve should use bucket 0, got %+v", first)
	}
	if len(second) != 1 || second[0].Body["parent_id"] != "solved-1" {
		t.Fatalf("51st solve should use bucket 1, got %+v", second)
	}
	renames := fake.matching(http.MethodPatch, "/drive/files/doc-51")
	if len(renames) != 1 || renames[0].Body["name"] != "[SOLVED] Puzzle Fifty-One" {
		t.Fatalf("unexpected rename %+v", renames)
	}
}

func TestMoveToSolvedHoldingSkipsBrokenIDs(t *testing.T) {
	fake, srv := newFakeServices(t)
	client, _, metrics := newTestClient(t, testConfig(srv.URL))

	if err := client.MoveToSolvedHolding(context.Background(), hunt.FailedID, "", "Broken", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.ProvisioningCalls.Load() != 0 {
		t.Fatal("expected no provisioning calls for broken ids")
	}
	if len(fake.matching(http.MethodPatch, "/discord/channels/FAILED")) != 0 {
		t.Fatal("broken channel must not be moved")
	}
}

func TestRequestTimeoutBecomesProvisioningError(t *testing.T) {
	fake, srv := newFakeServices(t)
	cfg := testConfig(srv.URL)
	cfg.Runtime.RequestTimeoutSec = 1
	cfg.Discord.LogChannelID = ""
	client, _, _ := newTestClient(t, cfg)
	client.Tokens().Restore(Credential{AccessToken: "cached", ExpiresAt: time.Now().Add(time.Hour)})

	block := make(chan struct{})
	fake.mu.Lock()
	fake.block = block
	fake.mu.Unlock()
	defer close(block)

	id, err := client.CreateDocument(context.Background(), KindFolder, "Slow", "root")
	if id != hunt.FailedID || !errors.Is(err, ErrProvisioningFailed) {
		t.Fatalf("expected timeout to fail provisioning, got %q %v", id, err)
	}
}
