package reconcile

import (
	"errors"
	"fmt"
)

var ErrAmbiguousRename = errors.New("rename source not found")

// InvalidEditError rejects a grid or action edit that would break the tree's
// structure. Nothing is mutated when it is returned.
type InvalidEditError struct {
	Row    int
	Old    string
	New    string
	Reason string
}

func (e *InvalidEditError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("invalid edit %q -> %q: %s", e.Old, e.New, e.Reason)
	}
	return fmt.Sprintf("invalid edit at row %d %q -> %q: %s", e.Row, e.Old, e.New, e.Reason)
}

type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}
