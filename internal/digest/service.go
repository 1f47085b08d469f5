package digest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	gocron "github.com/robfig/cron/v3"

	"github.com/grixate/hunthelper/internal/hunt"
	"github.com/grixate/hunthelper/internal/telemetry"
)

// Snapshot is the read-only view a digest is rendered from.
type Snapshot struct {
	Counts       hunt.Counts
	SolvedCount  int
	LastSolvedAt time.Time
	UpdatedAt    time.Time
}

type SnapshotFunc func(ctx context.Context) (Snapshot, error)

type Announcer interface {
	Announce(ctx context.Context, text string)
}

// Service posts a status digest on a cron schedule.
type Service struct {
	schedule gocron.Schedule
	snapshot SnapshotFunc
	out      Announcer
	metrics  *telemetry.Metrics
	log      *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	next    time.Time
	stop    chan struct{}
	wg      sync.WaitGroup
}

func ParseSchedule(expr string) (gocron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("digest schedule is empty")
	}
	parser := gocron.NewParser(gocron.Minute | gocron.Hour | gocron.Dom | gocron.Month | gocron.Dow | gocron.Descriptor)
	return parser.Parse(expr)
}

func NewService(expr string, snapshot SnapshotFunc, out Announcer, metrics *telemetry.Metrics, logger *log.Logger) (*Service, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		schedule: schedule,
		snapshot: snapshot,
		out:      out,
		metrics:  metrics,
		log:      logger,
		now:      time.Now,
		stop:     make(chan struct{}),
	}, nil
}

func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.next = s.schedule.Next(s.now())
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	close(s.stop)
	s.wg.Wait()
}

func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Service) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(context.Background())
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	due := !s.next.IsZero() && !now.Before(s.next)
	if due {
		s.next = s.schedule.Next(now)
	}
	s.mu.Unlock()
	if !due {
		return
	}
	if _, err := s.RunNow(ctx); err != nil {
		s.log.Printf("digest: run failed: %v", err)
	}
}

// RunNow renders and posts a digest immediately.
func (s *Service) RunNow(ctx context.Context) (string, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	text := Render(snap, s.now())
	s.metrics.DigestRuns.Add(1)
	if s.out != nil {
		s.out.Announce(ctx, text)
	}
	return text, nil
}

func Render(snap Snapshot, now time.Time) string {
	c := snap.Counts
	parts := []string{
		fmt.Sprintf("Hunt status: %s rounds, %s puzzles, %s solved (%s metas)",
			humanize.Comma(int64(c.Rounds)),
			humanize.Comma(int64(c.Puzzles)),
			humanize.Comma(int64(c.SolvedPuzzles+c.SolvedRounds)),
			humanize.Comma(int64(c.SolvedRounds))),
	}
	if unsolved := c.Puzzles - c.SolvedPuzzles; unsolved > 0 {
		parts = append(parts, fmt.Sprintf("%s still open", humanize.Comma(int64(unsolved))))
	}
	if snap.LastSolvedAt.IsZero() {
		parts = append(parts, "no solves yet")
	} else {
		parts = append(parts, "last solve "+humanize.RelTime(snap.LastSolvedAt, now, "ago", "from now"))
	}
	if c.Broken > 0 {
		parts = append(parts, fmt.Sprintf("%d nodes need manual repair", c.Broken))
	}
	return strings.Join(parts, "; ") + "."
}
