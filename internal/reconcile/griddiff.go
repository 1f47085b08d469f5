package reconcile

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type changeSummary struct {
	Added   []string
	Removed []string
}

// summarizeChange line-diffs two grid snapshots. It only feeds the log; bulk
// edits are applied by the render pass without row-level interpretation.
func summarizeChange(prev, next []string) changeSummary {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(joinRows(prev), joinRows(next))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out changeSummary
	for _, d := range diffs {
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				out.Added = append(out.Added, line)
			case diffmatchpatch.DiffDelete:
				out.Removed = append(out.Removed, line)
			}
		}
	}
	return out
}

func joinRows(rows []string) string {
	if len(rows) == 0 {
		return ""
	}
	return strings.Join(rows, "\n") + "\n"
}

func (c changeSummary) String() string {
	if len(c.Added) == 0 && len(c.Removed) == 0 {
		return "no named rows changed"
	}
	parts := []string{fmt.Sprintf("+%d -%d", len(c.Added), len(c.Removed))}
	if len(c.Added) > 0 {
		parts = append(parts, "added: "+strings.Join(c.Added, ", "))
	}
	if len(c.Removed) > 0 {
		parts = append(parts, "removed: "+strings.Join(c.Removed, ", "))
	}
	return strings.Join(parts, "; ")
}
