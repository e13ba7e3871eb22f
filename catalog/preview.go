package catalog

import (
	"fmt"
	"strings"
)

// CollapsedLines is how many source lines a collapsed preview shows
const CollapsedLines = 10

// Preview is a collapsed view of a contract's source
type Preview struct {
	Lines     []string `json:"lines"`
	Remaining int      `json:"remaining"`
	Total     int      `json:"total"`
}

// BuildPreview collapses source text to its first CollapsedLines lines
// and counts what was hidden. Sources at or under the limit come back
// whole with zero remaining.
func BuildPreview(source string) Preview {
	if source == "" {
		return Preview{Lines: []string{}}
	}

	lines := strings.Split(strings.TrimRight(source, "\n"), "\n")
	total := len(lines)

	if total <= CollapsedLines {
		return Preview{Lines: lines, Total: total}
	}
	return Preview{
		Lines:     lines[:CollapsedLines],
		Remaining: total - CollapsedLines,
		Total:     total,
	}
}

// Render formats the preview with a line-number gutter. The gutter is
// sized to the full source's last line number so expanding the view
// never shifts the code column.
func (p Preview) Render() string {
	if len(p.Lines) == 0 {
		return ""
	}

	width := len(fmt.Sprintf("%d", p.Total))
	var b strings.Builder
	for i, line := range p.Lines {
		fmt.Fprintf(&b, "%*d  %s\n", width, i+1, line)
	}
	if p.Remaining > 0 {
		fmt.Fprintf(&b, "%s  ... %d more lines\n", strings.Repeat(" ", width), p.Remaining)
	}
	return b.String()
}
