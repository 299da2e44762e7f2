package verify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/aicmo/benchcheck/pkg/benchmark"
)

// document is the parsed view of a section's markdown that every checker
// reads from. Parsing never fails; malformed text yields zero matches.
type document struct {
	text      string
	folded    string
	words     int
	headings  []string
	bullets   int
	tableRows int
	sentences int
	avgWords  float64
	fold      cases.Caser
}

func parseDocument(text string) *document {
	// A Caser carries state and is not safe for concurrent use.
	fold := cases.Fold()
	d := &document{
		text:   text,
		folded: fold.String(text),
		words:  len(strings.Fields(text)),
		fold:   fold,
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "#"):
			d.headings = append(d.headings, line)
		case isBullet(trimmed):
			d.bullets++
		}
		if strings.Count(line, "|") >= 2 {
			d.tableRows++
		}
	}

	fragments := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	total := 0
	for _, f := range fragments {
		if n := len(strings.Fields(f)); n > 0 {
			d.sentences++
			total += n
		}
	}
	if d.sentences > 0 {
		d.avgWords = float64(total) / float64(d.sentences)
	}
	return d
}

// isBullet reports whether a left-trimmed line starts with a "-" or "*"
// list marker.
func isBullet(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*")
}
