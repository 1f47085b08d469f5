package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/grixate/hunthelper/internal/config"
	"github.com/grixate/hunthelper/internal/hunt"
	"github.com/grixate/hunthelper/internal/provision"
	"github.com/grixate/hunthelper/internal/telemetry"
)

const metaChannelPrefix = "ᴹᴱᵀᴬ-"

// Provisioner is the slice of provision.Client the engine drives. Create
// calls return hunt.FailedID alongside their error.
type Provisioner interface {
	CreateDocument(ctx context.Context, kind provision.DocumentKind, name, parentID string) (string, error)
	CreateChannel(ctx context.Context, kind provision.ChannelKind, name, parentID, topic string) (string, error)
	MoveToSolvedHolding(ctx context.Context, channelID, documentID, title string, solvedIndex int) error
	LogEvent(ctx context.Context, text string)
	Alert(ctx context.Context, text string)
}

// Announcer receives team-facing announcements such as solves.
type Announcer interface {
	Announce(ctx context.Context, text string)
}

type Options struct {
	Provisioner   Provisioner
	Announcer     Announcer
	Links         Links
	RootFolderID  string
	Substitutions config.Substitutions
	Logger        *log.Logger
	Metrics       *telemetry.Metrics
	Now           func() time.Time
}

// Engine applies grid snapshots and actions to a State. It is not safe for
// concurrent use; callers serialize updates through a single owner.
type Engine struct {
	prov     Provisioner
	announce Announcer
	links    Links
	rootID   string
	subs     config.Substitutions
	log      *log.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
}

func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = &telemetry.Metrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Announcer == nil {
		opts.Announcer = nopAnnouncer{}
	}
	return &Engine{
		prov:     opts.Provisioner,
		announce: opts.Announcer,
		links:    opts.Links,
		rootID:   opts.RootFolderID,
		subs:     opts.Substitutions,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

func (e *Engine) Links() Links { return e.links }

type nopAnnouncer struct{}

func (nopAnnouncer) Announce(context.Context, string) {}

// ensureRound looks the round up, provisioning its folder, meta document,
// category and meta channel the first time it is seen.
func (e *Engine) ensureRound(ctx context.Context, st *State, name string) (*hunt.Round, bool) {
	round, created := st.Tree.LookupOrCreateRound(name)
	if created {
		e.provisionRound(ctx, round)
	}
	return round, created
}

func (e *Engine) ensurePuzzle(ctx context.Context, st *State, round *hunt.Round, name string) (*hunt.Puzzle, bool) {
	puzzle, created := st.Tree.LookupOrCreatePuzzle(round, name)
	if created {
		e.provisionPuzzle(ctx, round, puzzle)
	}
	return puzzle, created
}

func (e *Engine) provisionRound(ctx context.Context, round *hunt.Round) {
	e.metrics.RoundsCreated.Add(1)
	e.log.Printf("reconcile: new round %s", round.Name)
	ref := hunt.ResourceRef{}
	ref.FolderID, _ = e.prov.CreateDocument(ctx, provision.KindFolder, round.Name, e.rootID)
	ref.DocumentID = e.createUnder(ref.FolderID, func(parent string) (string, error) {
		return e.prov.CreateDocument(ctx, provision.KindSpreadsheet, round.Title(), parent)
	})
	ref.CategoryID, _ = e.prov.CreateChannel(ctx, provision.KindCategory, round.Name, "", "")
	topic := e.links.Topic(round.Key(), ref.DocumentID)
	ref.ChannelID = e.createUnder(ref.CategoryID, func(parent string) (string, error) {
		return e.prov.CreateChannel(ctx, provision.KindText, metaChannelPrefix+round.Name, parent, topic)
	})
	round.Ref = ref
}

func (e *Engine) provisionPuzzle(ctx context.Context, round *hunt.Round, puzzle *hunt.Puzzle) {
	e.metrics.PuzzlesCreated.Add(1)
	e.log.Printf("reconcile: new puzzle %s in %s", puzzle.Name, round.Name)
	ref := hunt.ResourceRef{}
	ref.DocumentID = e.createUnder(round.Ref.FolderID, func(parent string) (string, error) {
		return e.prov.CreateDocument(ctx, provision.KindSpreadsheet, puzzle.Name, parent)
	})
	topic := e.links.Topic(puzzle.Key(), ref.DocumentID)
	ref.ChannelID = e.createUnder(round.Ref.CategoryID, func(parent string) (string, error) {
		return e.prov.CreateChannel(ctx, provision.KindText, puzzle.Name, parent, topic)
	})
	puzzle.Ref = ref
}

// createUnder skips creation when the parent itself failed; the child is
// marked failed too.
func (e *Engine) createUnder(parentID string, create func(parent string) (string, error)) string {
	if parentID == "" || parentID == hunt.FailedID {
		return hunt.FailedID
	}
	id, _ := create(parentID)
	return id
}

// markSolved performs the one-time solved transition: the node's channel and
// document move to the holding bucket for the current solve count.
func (e *Engine) markSolved(ctx context.Context, st *State, node hunt.Node, answer string) bool {
	if node.IsSolved() {
		return false
	}
	index := st.SolvedCount
	ref := node.Resources()
	if err := e.prov.MoveToSolvedHolding(ctx, ref.ChannelID, ref.DocumentID, node.Title(), index); err != nil {
		e.log.Printf("reconcile: solved move for %s: %v", node.Title(), err)
	}
	st.Tree.MarkSolved(node)
	st.SolvedCount++
	st.LastSolvedAt = e.now()
	e.metrics.Solves.Add(1)
	if answer != "" {
		e.prov.LogEvent(ctx, fmt.Sprintf("marked as solved: %s (answer %s)", node.Title(), answer))
	} else {
		e.prov.LogEvent(ctx, fmt.Sprintf("marked as solved: %s", node.Title()))
	}
	return true
}

func (e *Engine) timestamp() string {
	return e.now().Format("2006-01-02 15:04:05")
}
