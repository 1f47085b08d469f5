package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/grixate/hunthelper/internal/reconcile"
	"github.com/grixate/hunthelper/internal/runtime/actor"
	"github.com/grixate/hunthelper/internal/telemetry"
)

const (
	// BigSeparator splits the grid payload into cells and solved markers.
	BigSeparator = ".~~."
	// Separator splits individual cells.
	Separator = "~."

	TokenHeader = "X-Hunthelper-Token"

	maxBodyBytes = 1 << 20
)

var ErrMalformedGrid = errors.New("grid payload needs cells and solved markers")

// Processor runs updates against the hunt state. Implementations serialize
// calls and persist before returning.
type Processor interface {
	Grid(ctx context.Context, cells, solved []string) (string, error)
	Action(ctx context.Context, action reconcile.Action) (reconcile.ActionResult, error)
}

type Options struct {
	Addr          string
	Path          string
	AuthTokenHash string
	Processor     Processor
	Metrics       *telemetry.Metrics
	Logger        *log.Logger
}

type Server struct {
	addr      string
	path      string
	auth      *tokenCheck
	processor Processor
	metrics   *telemetry.Metrics
	logger    *log.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = "/_hunthelper_"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Server{
		addr:      opts.Addr,
		path:      path,
		auth:      newTokenCheck(opts.AuthTokenHash),
		processor: opts.Processor,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	hunt := s.withAuth(http.HandlerFunc(s.handleHunt))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, s.path) {
			hunt.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = io.WriteString(w, telemetry.PrometheusText(s.metrics.Snapshot()))
}

func (s *Server) handleHunt(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGrid(w, r)
	case http.MethodPost:
		if r.URL.Path != s.path {
			http.NotFound(w, r)
			return
		}
		s.handleAction(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	cells, solved, err := ParseGridPayload(strings.TrimPrefix(r.URL.Path, s.path))
	if err != nil {
		http.Error(w, "bad", http.StatusBadRequest)
		return
	}
	body, err := s.processor.Grid(r.Context(), cells, solved)
	if err != nil {
		s.writeProcessError(w, "grid", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var action reconcile.Action
	if err := readJSON(io.LimitReader(r.Body, maxBodyBytes), &action); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	result, err := s.processor.Action(r.Context(), action)
	if err != nil {
		s.writeProcessError(w, "action", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeProcessError(w http.ResponseWriter, kind string, err error) {
	switch {
	case errors.Is(err, actor.ErrMailboxFull):
		s.metrics.MailboxRejections.Add(1)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "busy, retry shortly", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, "timed out", http.StatusGatewayTimeout)
	default:
		s.logger.Printf("server: %s update failed: %v", kind, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// ParseGridPayload splits "<cells>.~~.<solved>" with cells separated by "~.".
func ParseGridPayload(payload string) ([]string, []string, error) {
	parts := strings.Split(payload, BigSeparator)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("%w: found %d sections", ErrMalformedGrid, len(parts))
	}
	return strings.Split(parts[0], Separator), strings.Split(parts[1], Separator), nil
}

func readJSON(body io.Reader, out any) error {
	decoder := json.NewDecoder(body)
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
