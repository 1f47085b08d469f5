package hunt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Foo Bar!":       "foo-bar",
		"foo-bar":        "foo-bar",
		"Puzzle 1":       "puzzle-1",
		"  Café  ":       "café",
		"Puzzle 1 ":      "puzzle-1",
		" !!! ":          "!!!",
		"":               "",
		"Round A":        "round-a",
		"What's Up, Doc": "whats-up-doc",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestNormalizeComposesAccents(t *testing.T) {
	decomposed := "Cafe\u0301"
	assert.Equal(t, Normalize("Café"), Normalize(decomposed))
}

func TestHeaderHelpers(t *testing.T) {
	assert.True(t, IsHeader("#Round A"))
	assert.True(t, IsHeader("  # Round A"))
	assert.False(t, IsHeader("Puzzle"))
	assert.Equal(t, "Round A", StripHeader("# Round A "))
	assert.Equal(t, "Puzzle", StripHeader("Puzzle"))
	assert.True(t, IsBlank("   "))
	assert.False(t, IsBlank("x"))
}

func TestLookupOrCreateCollapsesEquivalentNames(t *testing.T) {
	tree := NewTree()
	round, created := tree.LookupOrCreateRound("Round A")
	require.True(t, created)

	first, created := tree.LookupOrCreatePuzzle(round, "Foo Bar")
	require.True(t, created)
	first.Ref = ResourceRef{DocumentID: "doc-1", ChannelID: "chan-1"}

	second, created := tree.LookupOrCreatePuzzle(round, "foo-bar")
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, "doc-1", second.Ref.DocumentID)

	again, created := tree.LookupOrCreateRound("round a")
	assert.False(t, created)
	assert.Same(t, round, again)
}

func TestPuzzleKeysAreScopedToRound(t *testing.T) {
	tree := NewTree()
	a, _ := tree.LookupOrCreateRound("A")
	b, _ := tree.LookupOrCreateRound("B")
	pa, created := tree.LookupOrCreatePuzzle(a, "Shared")
	require.True(t, created)
	pb, created := tree.LookupOrCreatePuzzle(b, "Shared")
	require.True(t, created)
	assert.NotSame(t, pa, pb)
}

func TestRenamePuzzlePreservesResources(t *testing.T) {
	tree := NewTree()
	round, _ := tree.LookupOrCreateRound("Round A")
	p, _ := tree.LookupOrCreatePuzzle(round, "Puzzle 1")
	p.Ref = ResourceRef{DocumentID: "doc-1", ChannelID: "chan-1"}

	renamed, outcome := tree.RenamePuzzle(round, Normalize("Puzzle 1"), "Puzzle One")
	require.Equal(t, Renamed, outcome)
	assert.Same(t, p, renamed)
	assert.Equal(t, "Puzzle One", renamed.Name)
	assert.Equal(t, ResourceRef{DocumentID: "doc-1", ChannelID: "chan-1"}, renamed.Ref)

	_, ok := round.Puzzle("Puzzle 1")
	assert.False(t, ok)
	got, ok := round.Puzzle("puzzle one")
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestRenameMissingCreates(t *testing.T) {
	tree := NewTree()
	round, outcome := tree.RenameRound("nope", "Fresh")
	assert.Equal(t, RenameCreated, outcome)
	assert.Equal(t, "Fresh", round.Name)

	p, outcome := tree.RenamePuzzle(round, "ghost", "New Puzzle")
	assert.Equal(t, RenameCreated, outcome)
	assert.Equal(t, "New Puzzle", p.Name)
	assert.Len(t, round.Puzzles, 1)
}

func TestRenameRoundKeepsPuzzles(t *testing.T) {
	tree := NewTree()
	round, _ := tree.LookupOrCreateRound("Old")
	round.Ref = ResourceRef{FolderID: "f", DocumentID: "d", CategoryID: "c", ChannelID: "ch"}
	tree.LookupOrCreatePuzzle(round, "P")

	renamed, outcome := tree.RenameRound(Normalize("Old"), "New")
	require.Equal(t, Renamed, outcome)
	assert.Same(t, round, renamed)
	assert.Len(t, renamed.Puzzles, 1)
	_, ok := tree.Round("Old")
	assert.False(t, ok)
	_, ok = tree.Round("new")
	assert.True(t, ok)
}

func TestRenameCollisionLeavesTreeUntouched(t *testing.T) {
	tree := NewTree()
	a, _ := tree.LookupOrCreateRound("A")
	b, _ := tree.LookupOrCreateRound("B")

	got, outcome := tree.RenameRound(Normalize("A"), "B")
	assert.Equal(t, RenameCollision, outcome)
	assert.Same(t, b, got)
	still, ok := tree.Round("A")
	require.True(t, ok)
	assert.Same(t, a, still)
}

func TestMarkSolvedIsMonotonic(t *testing.T) {
	tree := NewTree()
	round, _ := tree.LookupOrCreateRound("A")
	p, _ := tree.LookupOrCreatePuzzle(round, "P")

	assert.True(t, tree.MarkSolved(p))
	assert.False(t, tree.MarkSolved(p))
	assert.True(t, p.Solved)
	assert.True(t, tree.MarkSolved(round))
	assert.False(t, tree.MarkSolved(nil))
}

func TestCountsAndJSONRoundTrip(t *testing.T) {
	tree := NewTree()
	round, _ := tree.LookupOrCreateRound("A")
	round.Ref.DocumentID = FailedID
	p, _ := tree.LookupOrCreatePuzzle(round, "P")
	tree.LookupOrCreatePuzzle(round, "Q")
	tree.MarkSolved(p)

	c := tree.Counts()
	assert.Equal(t, Counts{Rounds: 1, Puzzles: 2, SolvedPuzzles: 1, Broken: 1}, c)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	var decoded Tree
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, c, decoded.Counts())
	got, ok := decoded.Round("a")
	require.True(t, ok)
	_, ok = got.Puzzle("p")
	assert.True(t, ok)
}
