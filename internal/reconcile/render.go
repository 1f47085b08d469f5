package reconcile

import (
	"fmt"
	"strings"

	"github.com/grixate/hunthelper/internal/config"
	"github.com/grixate/hunthelper/internal/hunt"
)

type Links struct {
	PuzzlePrefix      string
	DocumentURLFormat string
}

func LinksFromConfig(cfg config.LinksConfig) Links {
	return Links{PuzzlePrefix: cfg.PuzzlePrefix, DocumentURLFormat: cfg.DocumentURLFormat}
}

func (l Links) Document(id string) string {
	format := l.DocumentURLFormat
	if format == "" {
		format = config.Default().Links.DocumentURLFormat
	}
	return fmt.Sprintf(format, id)
}

func (l Links) Puzzle(key string) string {
	return l.PuzzlePrefix + key
}

func (l Links) For(node hunt.Node) ActionResult {
	return ActionResult{
		Drive:  l.Document(node.Resources().DocumentID),
		Puzzle: l.Puzzle(node.Key()),
	}
}

// Topic is the channel topic pointing at a node's puzzle page and document.
func (l Links) Topic(key, documentID string) string {
	return strings.TrimPrefix(fmt.Sprintf("%s | %s", l.Puzzle(key), l.Document(documentID)), " | ")
}

// Row is the grid-mode CSV row for a node. Rounds have no puzzle page, so
// their second column stays empty.
func (l Links) Row(node hunt.Node) string {
	links := l.For(node)
	if _, isRound := node.(*hunt.Round); isRound {
		return links.Drive + ","
	}
	return links.Drive + "," + links.Puzzle
}
