package provision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/grixate/hunthelper/internal/config"
	"github.com/grixate/hunthelper/internal/telemetry"
)

// RefreshMargin is how close to expiry a cached token may get before it is
// exchanged for a new one.
const RefreshMargin = 10 * time.Second

type Credential struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type TokenSource struct {
	mu           sync.Mutex
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	httpClient   *http.Client
	metrics      *telemetry.Metrics
	now          func() time.Time
	cached       Credential
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func NewTokenSource(cfg config.DriveConfig, httpClient *http.Client, metrics *telemetry.Metrics) *TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	return &TokenSource{
		tokenURL:     strings.TrimSpace(cfg.TokenURL),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		httpClient:   httpClient,
		metrics:      metrics,
		now:          time.Now,
	}
}

// Token returns a bearer token valid for at least RefreshMargin, refreshing
// synchronously when needed.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached.AccessToken != "" && s.cached.ExpiresAt.After(s.now().Add(RefreshMargin)) {
		return s.cached.AccessToken, nil
	}
	cred, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}
	s.cached = cred
	s.metrics.TokenRefreshes.Add(1)
	return cred.AccessToken, nil
}

func (s *TokenSource) Snapshot() Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached
}

func (s *TokenSource) Restore(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = cred
}

func (s *TokenSource) refresh(ctx context.Context) (Credential, error) {
	if s.tokenURL == "" {
		return Credential{}, errors.New("drive token url is empty")
	}
	values := url.Values{}
	values.Set("client_id", s.clientID)
	values.Set("client_secret", s.clientSecret)
	values.Set("refresh_token", s.refreshToken)
	values.Set("grant_type", "refresh_token")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Credential{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Credential{}, &RequestError{Service: "oauth token", StatusCode: resp.StatusCode, Body: string(body)}
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Credential{}, err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return Credential{}, errors.New("oauth token response missing access_token")
	}
	return Credential{
		AccessToken: payload.AccessToken,
		ExpiresAt:   s.now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}
