package hunt

import (
	"sort"
	"strings"
)

// Tree owns every round, and through them every puzzle. Rounds are keyed by
// Normalize(name); puzzle keys are unique only within their round.
type Tree struct {
	Rounds map[string]*Round `json:"rounds"`
}

func NewTree() *Tree {
	return &Tree{Rounds: map[string]*Round{}}
}

func (t *Tree) ensure() {
	if t.Rounds == nil {
		t.Rounds = map[string]*Round{}
	}
}

func (t *Tree) Round(name string) (*Round, bool) {
	t.ensure()
	r, ok := t.Rounds[Normalize(name)]
	return r, ok
}

func (t *Tree) LookupOrCreateRound(displayName string) (*Round, bool) {
	t.ensure()
	displayName = strings.TrimSpace(displayName)
	key := Normalize(displayName)
	if r, ok := t.Rounds[key]; ok {
		return r, false
	}
	r := &Round{Name: displayName, Puzzles: map[string]*Puzzle{}}
	t.Rounds[key] = r
	return r, true
}

func (t *Tree) LookupOrCreatePuzzle(round *Round, displayName string) (*Puzzle, bool) {
	if round.Puzzles == nil {
		round.Puzzles = map[string]*Puzzle{}
	}
	displayName = strings.TrimSpace(displayName)
	key := Normalize(displayName)
	if p, ok := round.Puzzles[key]; ok {
		return p, false
	}
	p := &Puzzle{Name: displayName}
	round.Puzzles[key] = p
	return p, true
}

// RenameRound moves the round stored under oldKey to the key of
// newDisplayName. A missing oldKey creates a fresh round instead (unless the
// target already exists, which counts as done); a target key
// held by a different round leaves the tree untouched and returns that round.
func (t *Tree) RenameRound(oldKey, newDisplayName string) (*Round, RenameOutcome) {
	t.ensure()
	newDisplayName = strings.TrimSpace(newDisplayName)
	newKey := Normalize(newDisplayName)
	r, ok := t.Rounds[oldKey]
	if !ok {
		r, created := t.LookupOrCreateRound(newDisplayName)
		if !created {
			return r, Renamed
		}
		return r, RenameCreated
	}
	if existing, taken := t.Rounds[newKey]; taken && newKey != oldKey {
		return existing, RenameCollision
	}
	delete(t.Rounds, oldKey)
	r.Name = newDisplayName
	t.Rounds[newKey] = r
	return r, Renamed
}

func (t *Tree) RenamePuzzle(round *Round, oldKey, newDisplayName string) (*Puzzle, RenameOutcome) {
	if round.Puzzles == nil {
		round.Puzzles = map[string]*Puzzle{}
	}
	newDisplayName = strings.TrimSpace(newDisplayName)
	newKey := Normalize(newDisplayName)
	p, ok := round.Puzzles[oldKey]
	if !ok {
		p, created := t.LookupOrCreatePuzzle(round, newDisplayName)
		if !created {
			return p, Renamed
		}
		return p, RenameCreated
	}
	if existing, taken := round.Puzzles[newKey]; taken && newKey != oldKey {
		return existing, RenameCollision
	}
	delete(round.Puzzles, oldKey)
	p.Name = newDisplayName
	round.Puzzles[newKey] = p
	return p, Renamed
}

// MarkSolved reports whether this call performed the transition. Solved
// never reverts.
func (t *Tree) MarkSolved(n Node) bool {
	if n == nil || n.IsSolved() {
		return false
	}
	n.setSolved()
	return true
}

// FindPuzzle searches every round, in key order, for a puzzle named name.
func (t *Tree) FindPuzzle(name string) (*Round, *Puzzle, bool) {
	for _, r := range t.SortedRounds() {
		if p, ok := r.Puzzle(name); ok {
			return r, p, true
		}
	}
	return nil, nil, false
}

func (t *Tree) SortedRounds() []*Round {
	keys := make([]string, 0, len(t.Rounds))
	for key := range t.Rounds {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*Round, 0, len(keys))
	for _, key := range keys {
		out = append(out, t.Rounds[key])
	}
	return out
}

func (r *Round) SortedPuzzles() []*Puzzle {
	keys := make([]string, 0, len(r.Puzzles))
	for key := range r.Puzzles {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*Puzzle, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.Puzzles[key])
	}
	return out
}

func (t *Tree) Counts() Counts {
	var c Counts
	for _, r := range t.Rounds {
		c.Rounds++
		if r.Solved {
			c.SolvedRounds++
		}
		if r.Ref.Broken() {
			c.Broken++
		}
		for _, p := range r.Puzzles {
			c.Puzzles++
			if p.Solved {
				c.SolvedPuzzles++
			}
			if p.Ref.Broken() {
				c.Broken++
			}
		}
	}
	return c
}
