package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/grixate/hunthelper/internal/hunt"
)

// rejectionRepeat is how many times the rejection line is repeated so the
// sheet visibly floods the link column until the edit is undone.
const rejectionRepeat = 300

const rejectionLine = "BAD,please undo\n"

// RejectionBody is the grid-mode response for an edit that must be undone.
func RejectionBody() string {
	return strings.Repeat(rejectionLine, rejectionRepeat)
}

type editKind int

const (
	editNone editKind = iota
	editRename
	editTypeChange
	editShift
)

// ApplyGrid reconciles the tree against a full grid snapshot and returns the
// link rows, one per cell, joined by newlines. A rejected edit returns
// RejectionBody together with an *InvalidEditError and leaves st untouched.
func (e *Engine) ApplyGrid(ctx context.Context, st *State, cells, solved []string) (string, error) {
	st.ensure()
	e.metrics.GridUpdates.Add(1)
	next := make([]string, len(cells))
	for i, cell := range cells {
		next[i] = e.subs.Apply(cell)
	}
	prev := st.Cells

	if len(prev) == len(next) {
		changed := changedRows(prev, next)
		switch len(changed) {
		case 0:
		case 1:
			row := changed[0]
			switch classifyEdit(prev, next, row) {
			case editTypeChange:
				return e.reject(ctx, row, prev[row], next[row], "row changed between header and puzzle")
			case editShift:
				return e.reject(ctx, row, prev[row], next[row], "new name directly above an existing row")
			case editRename:
				e.renameFromGrid(ctx, st, prev, row, next[row])
			}
		default:
			e.log.Printf("reconcile: %d rows changed at once: %s", len(changed), summarizeChange(prev, next))
		}
	} else if len(prev) > 0 {
		e.log.Printf("reconcile: grid resized %d -> %d rows: %s", len(prev), len(next), summarizeChange(prev, next))
	}

	body := e.render(ctx, st, next, solved)
	st.Cells = next
	st.UpdatedAt = e.now()
	return body, nil
}

func (e *Engine) reject(ctx context.Context, row int, old, next, reason string) (string, error) {
	e.metrics.RejectedEdits.Add(1)
	e.prov.Alert(ctx, fmt.Sprintf("WARNING: bad edit %q -> %q on row %d, yelling at user", old, next, row+1))
	return RejectionBody(), &InvalidEditError{Row: row, Old: old, New: next, Reason: reason}
}

func changedRows(prev, next []string) []int {
	var out []int
	for i := range next {
		if prev[i] != next[i] {
			out = append(out, i)
		}
	}
	return out
}

// classifyEdit decides what a single changed cell means. Clearing a cell or
// filling a blank one is left to the render pass; a blank filled directly
// above a non-blank row looks like an accidental insert and is refused.
func classifyEdit(prev, next []string, row int) editKind {
	old, cur := prev[row], next[row]
	switch {
	case hunt.IsBlank(old) && hunt.IsBlank(cur):
		return editNone
	case hunt.IsBlank(old):
		if row+1 < len(next) && !hunt.IsBlank(next[row+1]) {
			return editShift
		}
		return editNone
	case hunt.IsBlank(cur), hunt.IsBlank(hunt.StripHeader(cur)):
		return editNone
	case hunt.IsHeader(old) != hunt.IsHeader(cur):
		return editTypeChange
	default:
		return editRename
	}
}

func (e *Engine) renameFromGrid(ctx context.Context, st *State, prev []string, row int, cur string) {
	old := prev[row]
	if hunt.Normalize(hunt.StripHeader(old)) == hunt.Normalize(hunt.StripHeader(cur)) {
		e.renameDisplay(st, prev, row, cur)
		return
	}
	e.metrics.Renames.Add(1)
	e.prov.Alert(ctx, fmt.Sprintf("WARNING: renaming %s to %s", old, cur))

	if hunt.IsHeader(old) {
		oldKey := hunt.Normalize(hunt.StripHeader(old))
		if _, ok := st.Tree.Rounds[oldKey]; !ok {
			e.ambiguousRename(old, cur)
			return
		}
		if _, outcome := st.Tree.RenameRound(oldKey, hunt.StripHeader(cur)); outcome == hunt.RenameCollision {
			e.log.Printf("reconcile: rename %s -> %s collides with an existing round", old, cur)
		}
		return
	}

	round := owningRound(st.Tree, prev, row)
	if round == nil {
		e.ambiguousRename(old, cur)
		return
	}
	oldKey := hunt.Normalize(old)
	if _, ok := round.Puzzles[oldKey]; !ok {
		e.ambiguousRename(old, cur)
		return
	}
	if _, outcome := st.Tree.RenamePuzzle(round, oldKey, cur); outcome == hunt.RenameCollision {
		e.log.Printf("reconcile: rename %s -> %s collides with an existing puzzle in %s", old, cur, round.Name)
	}
}

// renameDisplay handles an edit that keeps the key, such as a case change:
// only the display name moves.
func (e *Engine) renameDisplay(st *State, prev []string, row int, cur string) {
	if hunt.IsHeader(cur) {
		if round, ok := st.Tree.Round(hunt.StripHeader(cur)); ok {
			round.Name = strings.TrimSpace(hunt.StripHeader(cur))
		}
		return
	}
	if round := owningRound(st.Tree, prev, row); round != nil {
		if puzzle, ok := round.Puzzle(cur); ok {
			puzzle.Name = strings.TrimSpace(cur)
		}
	}
}

func (e *Engine) ambiguousRename(old, cur string) {
	e.metrics.AmbiguousRenames.Add(1)
	e.log.Printf("reconcile: %v: %s -> %s, treating as new", ErrAmbiguousRename, old, cur)
}

// owningRound walks up from row through contiguous non-blank cells to the
// nearest header.
func owningRound(tree *hunt.Tree, cells []string, row int) *hunt.Round {
	for i := row - 1; i >= 0; i-- {
		cell := cells[i]
		if hunt.IsBlank(cell) {
			return nil
		}
		if hunt.IsHeader(cell) {
			round, _ := tree.Round(hunt.StripHeader(cell))
			return round
		}
	}
	return nil
}

// render walks the grid top to bottom with a round cursor, creating whatever
// is missing and applying solved transitions.
func (e *Engine) render(ctx context.Context, st *State, cells, solved []string) string {
	rows := make([]string, len(cells))
	var cursor *hunt.Round
	for i, cell := range cells {
		var node hunt.Node
		switch {
		case hunt.IsBlank(cell) || (hunt.IsHeader(cell) && hunt.IsBlank(hunt.StripHeader(cell))):
			cursor = nil
			continue
		case hunt.IsHeader(cell):
			round, _ := e.ensureRound(ctx, st, hunt.StripHeader(cell))
			cursor = round
			node = round
		default:
			if cursor == nil {
				e.log.Printf("reconcile: row %d %q has no round above it", i+1, cell)
				continue
			}
			puzzle, _ := e.ensurePuzzle(ctx, st, cursor, cell)
			node = puzzle
		}

		marker := ""
		if i < len(solved) {
			marker = strings.TrimSpace(solved[i])
		}
		switch {
		case marker != "" && !node.IsSolved():
			if e.markSolved(ctx, st, node, marker) {
				e.announce.Announce(ctx, fmt.Sprintf("Puzzle *%s* solved! :tada:", node.Title()))
			}
		case marker == "" && node.IsSolved():
			e.log.Printf("reconcile: %s is solved but its answer cell is empty", node.Title())
		}
		rows[i] = e.links.Row(node)
	}
	return strings.Join(rows, "\n")
}
