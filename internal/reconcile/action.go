package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/grixate/hunthelper/internal/hunt"
)

const (
	ActionFetch  = "fetch"
	ActionRename = "rename"
	ActionSolve  = "solve"
)

// Action is one structured request from the sheet.
type Action struct {
	Action  string `json:"action"`
	Name    string `json:"name,omitempty"`
	Round   string `json:"round,omitempty"`
	OldName string `json:"oldname,omitempty"`
	Answer  string `json:"ans,omitempty"`
}

// ActionResult is echoed back to the sheet. Empty fields are omitted.
type ActionResult struct {
	Drive  string `json:"drive,omitempty"`
	Puzzle string `json:"puzzle,omitempty"`
	Note   string `json:"note,omitempty"`
}

// HandleAction applies a single action. Errors are also reflected in the
// result note, so callers can always return the result to the sheet.
func (e *Engine) HandleAction(ctx context.Context, st *State, a Action) (ActionResult, error) {
	st.ensure()
	e.metrics.Actions.Add(1)
	var (
		res ActionResult
		err error
	)
	switch strings.ToLower(strings.TrimSpace(a.Action)) {
	case ActionFetch:
		res, err = e.fetch(ctx, st, a)
	case ActionRename:
		res, err = e.rename(ctx, st, a)
	case ActionSolve:
		res, err = e.solve(ctx, st, a)
	default:
		e.metrics.UnknownActions.Add(1)
		e.prov.Alert(ctx, fmt.Sprintf("something extremely confusing and bad happened: unknown action %q", a.Action))
		err = &UnknownActionError{Action: a.Action}
		res.Note = fmt.Sprintf("%s: something extremely confusing and bad happened (%v)", e.timestamp(), err)
	}
	if err != nil && res.Note == "" {
		res.Note = fmt.Sprintf("%s: %v", e.timestamp(), err)
	}
	if err == nil {
		st.UpdatedAt = e.now()
	}
	return res, err
}

func (e *Engine) fetch(ctx context.Context, st *State, a Action) (ActionResult, error) {
	node, err := e.resolve(ctx, st, a.Name, a.Round)
	if err != nil {
		return ActionResult{}, err
	}
	return e.links.For(node), nil
}

func (e *Engine) rename(ctx context.Context, st *State, a Action) (ActionResult, error) {
	if hunt.IsBlank(a.OldName) {
		return e.fetch(ctx, st, a)
	}
	if hunt.IsBlank(hunt.StripHeader(a.Name)) {
		return ActionResult{}, &InvalidEditError{Row: -1, Old: a.OldName, New: a.Name, Reason: "empty name"}
	}
	if hunt.IsHeader(a.OldName) != hunt.IsHeader(a.Name) {
		e.metrics.RejectedEdits.Add(1)
		return ActionResult{}, &InvalidEditError{Row: -1, Old: a.OldName, New: a.Name, Reason: "rename between header and puzzle"}
	}
	e.metrics.Renames.Add(1)
	e.prov.Alert(ctx, fmt.Sprintf("WARNING: renaming %s to %s", a.OldName, a.Name))
	note := fmt.Sprintf("%s: renamed from %s to %s", e.timestamp(), a.OldName, a.Name)

	var node hunt.Node
	if hunt.IsHeader(a.Name) {
		oldKey := hunt.Normalize(hunt.StripHeader(a.OldName))
		if _, ok := st.Tree.Rounds[oldKey]; !ok {
			e.ambiguousRename(a.OldName, a.Name)
			node, _ = e.ensureRound(ctx, st, hunt.StripHeader(a.Name))
		} else {
			round, outcome := st.Tree.RenameRound(oldKey, hunt.StripHeader(a.Name))
			if outcome == hunt.RenameCollision {
				note = fmt.Sprintf("%s: cannot rename %s, %s already exists", e.timestamp(), a.OldName, a.Name)
			}
			node = round
		}
		return e.withNote(node, note), nil
	}

	round, err := e.roundFor(ctx, st, a.Round)
	if err != nil {
		return ActionResult{}, err
	}
	oldKey := hunt.Normalize(a.OldName)
	if _, ok := round.Puzzles[oldKey]; !ok {
		e.ambiguousRename(a.OldName, a.Name)
		node, _ = e.ensurePuzzle(ctx, st, round, a.Name)
	} else {
		puzzle, outcome := st.Tree.RenamePuzzle(round, oldKey, a.Name)
		if outcome == hunt.RenameCollision {
			note = fmt.Sprintf("%s: cannot rename %s, %s already exists in %s", e.timestamp(), a.OldName, a.Name, round.Name)
		}
		node = puzzle
	}
	return e.withNote(node, note), nil
}

func (e *Engine) withNote(node hunt.Node, note string) ActionResult {
	res := e.links.For(node)
	res.Note = note
	return res
}

// solve always announces; the holding move and solve count only happen on
// the first transition.
func (e *Engine) solve(ctx context.Context, st *State, a Action) (ActionResult, error) {
	node, err := e.resolve(ctx, st, a.Name, a.Round)
	if err != nil {
		return ActionResult{}, err
	}
	e.announce.Announce(ctx, fmt.Sprintf("Puzzle *%s* solved with answer **%s**! :tada:", node.Title(), a.Answer))
	if !e.markSolved(ctx, st, node, a.Answer) {
		e.log.Printf("reconcile: %s was already solved", node.Title())
	}
	return ActionResult{}, nil
}

// resolve finds or creates the node an action names. Puzzles need their
// round; headers name rounds directly.
func (e *Engine) resolve(ctx context.Context, st *State, name, roundName string) (hunt.Node, error) {
	if hunt.IsBlank(hunt.StripHeader(name)) {
		return nil, &InvalidEditError{Row: -1, New: name, Reason: "empty name"}
	}
	if hunt.IsHeader(name) {
		round, _ := e.ensureRound(ctx, st, hunt.StripHeader(name))
		return round, nil
	}
	round, err := e.roundFor(ctx, st, roundName)
	if err != nil {
		return nil, err
	}
	puzzle, _ := e.ensurePuzzle(ctx, st, round, name)
	return puzzle, nil
}

func (e *Engine) roundFor(ctx context.Context, st *State, roundName string) (*hunt.Round, error) {
	name := hunt.StripHeader(roundName)
	if hunt.IsBlank(name) {
		return nil, &InvalidEditError{Row: -1, New: roundName, Reason: "puzzle has no round"}
	}
	round, _ := e.ensureRound(ctx, st, name)
	return round, nil
}
