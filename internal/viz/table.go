package viz

import (
	"strings"
	"unicode/utf8"
)

const maxCellWidth = 48

// Table renders rows as a plain-text table with a header rule. Cells wider
// than the column limit are truncated with an ellipsis; short rows are
// padded with empty cells.
func Table(cols []Column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = utf8.RuneCountInString(c.Title)
	}
	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = make([]string, len(cols))
		for i := range cols {
			if i < len(row) {
				cells[r][i] = truncate(row[i], maxCellWidth)
			}
			widths[i] = max(widths[i], utf8.RuneCountInString(cells[r][i]))
		}
	}

	var b strings.Builder
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Title
	}
	writeRow(&b, cols, widths, header)

	rule := make([]string, len(cols))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}
	b.WriteString(strings.TrimRight(strings.Join(rule, "  "), " "))
	b.WriteByte('\n')

	for _, row := range cells {
		writeRow(&b, cols, widths, row)
	}
	return b.String()
}

func writeRow(b *strings.Builder, cols []Column, widths []int, row []string) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		pad := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(row[i]))
		if c.AlignRight {
			parts[i] = pad + row[i]
		} else {
			parts[i] = row[i] + pad
		}
	}
	b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
	b.WriteByte('\n')
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
