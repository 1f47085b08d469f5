package reconcile

import (
	"encoding/json"
	"time"

	"github.com/grixate/hunthelper/internal/hunt"
	"github.com/grixate/hunthelper/internal/provision"
)

const stateVersion = 1

// State is everything the service must remember between updates. It is
// persisted whole after every processed update.
type State struct {
	Version      int                  `json:"version"`
	Cells        []string             `json:"cells"`
	Tree         *hunt.Tree           `json:"tree"`
	Credential   provision.Credential `json:"credential"`
	SolvedCount  int                  `json:"solved_count"`
	LastSolvedAt time.Time            `json:"last_solved_at,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at,omitempty"`
}

func NewState() *State {
	return &State{Version: stateVersion, Cells: []string{}, Tree: hunt.NewTree()}
}

func DecodeState(data []byte) (*State, error) {
	st := NewState()
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, err
	}
	st.ensure()
	return st, nil
}

func (s *State) Encode() ([]byte, error) {
	s.ensure()
	return json.Marshal(s)
}

func (s *State) ensure() {
	if s.Tree == nil {
		s.Tree = hunt.NewTree()
	}
	if s.Tree.Rounds == nil {
		s.Tree.Rounds = map[string]*hunt.Round{}
	}
	if s.Cells == nil {
		s.Cells = []string{}
	}
	if s.Version == 0 {
		s.Version = stateVersion
	}
}
