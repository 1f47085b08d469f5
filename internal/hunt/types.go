package hunt

// FailedID stands in for an external identifier whose creation failed.
const FailedID = "FAILED"

type ResourceRef struct {
	FolderID   string `json:"folder_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
	ChannelID  string `json:"channel_id,omitempty"`
}

func (r ResourceRef) Broken() bool {
	return r.FolderID == FailedID || r.DocumentID == FailedID || r.CategoryID == FailedID || r.ChannelID == FailedID
}

type Round struct {
	Name    string             `json:"name"`
	Solved  bool               `json:"solved"`
	Ref     ResourceRef        `json:"ref"`
	Puzzles map[string]*Puzzle `json:"puzzles"`
}

func (r *Round) Key() string { return Normalize(r.Name) }

// Title is the name used for the round's meta document.
func (r *Round) Title() string { return "[META] " + r.Name }

func (r *Round) Resources() ResourceRef { return r.Ref }

func (r *Round) IsSolved() bool { return r.Solved }

func (r *Round) setSolved() { r.Solved = true }

func (r *Round) Puzzle(name string) (*Puzzle, bool) {
	if r == nil || r.Puzzles == nil {
		return nil, false
	}
	p, ok := r.Puzzles[Normalize(name)]
	return p, ok
}

type Puzzle struct {
	Name   string      `json:"name"`
	Solved bool        `json:"solved"`
	Ref    ResourceRef `json:"ref"`
}

func (p *Puzzle) Key() string { return Normalize(p.Name) }

func (p *Puzzle) Title() string { return p.Name }

func (p *Puzzle) Resources() ResourceRef { return p.Ref }

func (p *Puzzle) IsSolved() bool { return p.Solved }

func (p *Puzzle) setSolved() { p.Solved = true }

// Node is a round or a puzzle.
type Node interface {
	Key() string
	Title() string
	Resources() ResourceRef
	IsSolved() bool
	setSolved()
}

type RenameOutcome int

const (
	Renamed RenameOutcome = iota
	RenameCreated
	RenameCollision
)

func (o RenameOutcome) String() string {
	switch o {
	case Renamed:
		return "renamed"
	case RenameCreated:
		return "created"
	case RenameCollision:
		return "collision"
	default:
		return "unknown"
	}
}

type Counts struct {
	Rounds        int `json:"rounds"`
	Puzzles       int `json:"puzzles"`
	SolvedRounds  int `json:"solved_rounds"`
	SolvedPuzzles int `json:"solved_puzzles"`
	Broken        int `json:"broken"`
}
