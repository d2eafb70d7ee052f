package viz

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxSpansPerTrace = 50
	maxInputSpans    = 500 // cap input to avoid sorting huge slices
	defaultBarWidth  = 20
	rootParentID     = "0000000000000000"
)

// Waterfall renders an ASCII waterfall of one trace under a title line.
// Width controls the total line width; 0 uses a sensible default (80).
func Waterfall(title string, spans []SpanInfo, width int) string {
	if len(spans) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	if len(spans) > maxInputSpans {
		spans = spans[:maxInputSpans]
	}

	// Work on a copy; callers keep their order.
	spans = append([]SpanInfo(nil), spans...)
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].StartNano < spans[j].StartNano
	})

	// Clamp end to max(end, start) to handle bad data
	minStart := spans[0].StartNano
	maxEnd := minStart
	for _, s := range spans {
		maxEnd = max(maxEnd, s.EndNano, s.StartNano)
	}
	totalDur := maxEnd - minStart

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d spans, %s)\n", title, len(spans), formatNanos(totalDur))

	tree := buildTree(spans)
	spanOverflow := 0
	if len(tree.order) > maxSpansPerTrace {
		spanOverflow = len(tree.order) - maxSpansPerTrace
		tree.order = tree.order[:maxSpansPerTrace]
	}

	// Pass 1: widest duration + error suffix, for alignment
	maxDurErrLen := 0
	for _, entry := range tree.order {
		n := len(formatNanos(spanNanos(entry.span)))
		if entry.span.Error {
			n += len(errSuffix)
		}
		maxDurErrLen = max(maxDurErrLen, n)
	}

	// Pass 2: rows
	for _, entry := range tree.order {
		renderSpanRow(&b, entry, minStart, totalDur, width, maxDurErrLen)
	}
	if spanOverflow > 0 {
		fmt.Fprintf(&b, "  ... +%d more spans\n", spanOverflow)
	}
	return b.String()
}

const errSuffix = " !! ERR"

type treeEntry struct {
	span   SpanInfo
	depth  int
	isLast []bool // at each depth level, whether this node is the last child
}

type spanTree struct {
	order []treeEntry
}

func isRoot(parentID string) bool {
	return parentID == "" || parentID == rootParentID
}

// buildTree orders spans depth-first. Spans whose parent is not in the set
// are treated as roots. Input must be sorted by start time.
func buildTree(spans []SpanInfo) spanTree {
	if len(spans) == 0 {
		return spanTree{}
	}

	byID := make(map[string]SpanInfo, len(spans))
	for _, s := range spans {
		byID[s.SpanID] = s
	}

	children := make(map[string][]string)
	var rootIDs []string
	seen := make(map[string]bool, len(spans))
	for _, s := range spans {
		if seen[s.SpanID] {
			continue
		}
		seen[s.SpanID] = true
		if _, parentKnown := byID[s.ParentID]; isRoot(s.ParentID) || !parentKnown {
			rootIDs = append(rootIDs, s.SpanID)
		} else {
			children[s.ParentID] = append(children[s.ParentID], s.SpanID)
		}
	}

	var result []treeEntry
	visited := make(map[string]bool, len(spans))
	for ri, rootID := range rootIDs {
		walkTree(&result, byID, children, visited, rootID, 0, []bool{ri == len(rootIDs)-1})
	}
	// Parent cycles leave spans unreachable from any root.
	for _, s := range spans {
		if !visited[s.SpanID] {
			walkTree(&result, byID, children, visited, s.SpanID, 0, []bool{true})
		}
	}
	return spanTree{order: result}
}

func walkTree(result *[]treeEntry, byID map[string]SpanInfo, children map[string][]string, visited map[string]bool, spanID string, depth int, isLast []bool) {
	s, ok := byID[spanID]
	if !ok || visited[spanID] {
		return
	}
	visited[spanID] = true
	*result = append(*result, treeEntry{span: s, depth: depth, isLast: isLast})

	kids := children[spanID]
	for ci, childID := range kids {
		childIsLast := append(append([]bool{}, isLast...), ci == len(kids)-1)
		walkTree(result, byID, children, visited, childID, depth+1, childIsLast)
	}
}

func renderSpanRow(b *strings.Builder, entry treeEntry, minStart, totalDur uint64, width int, maxDurErrLen int) {
	barWidth := defaultBarWidth

	// Tree-drawing characters are multi-byte UTF-8 but each occupies a
	// single display column, so track columns separately.
	var prefix strings.Builder
	prefixCols := 1
	prefix.WriteString(" ")
	for d := 0; d < entry.depth && d < len(entry.isLast)-1; d++ {
		if entry.isLast[d] {
			prefix.WriteString("  ")
		} else {
			prefix.WriteString("│ ")
		}
		prefixCols += 2
	}
	if entry.depth > 0 {
		if entry.isLast[len(entry.isLast)-1] {
			prefix.WriteString("└─ ")
		} else {
			prefix.WriteString("├─ ")
		}
		prefixCols += 3
	}

	label := spanLabel(entry.span)

	suffix := ""
	if entry.span.Error {
		suffix = errSuffix
	}

	spanStart := entry.span.StartNano
	spanEnd := max(entry.span.EndNano, spanStart)

	// Layout: prefix + label + " [" + bar + "] " + durErr
	fixedCols := prefixCols + 2 + barWidth + 2 + maxDurErrLen
	labelBudget := max(width-fixedCols, 8)
	label = truncate(label, labelBudget)
	paddedLabel := label + strings.Repeat(" ", max(0, labelBudget-len([]rune(label))))

	bar := buildBar(spanStart, spanEnd, minStart, totalDur, barWidth)

	durErr := formatNanos(spanEnd-spanStart) + suffix
	paddedDurErr := durErr + strings.Repeat(" ", max(0, maxDurErrLen-len(durErr)))

	fmt.Fprintf(b, "%s%s [%s] %s\n", prefix.String(), paddedLabel, bar, strings.TrimRight(paddedDurErr, " "))
}

func spanLabel(s SpanInfo) string {
	switch {
	case s.Op != "" && s.Description != "":
		return s.Op + " - " + s.Description
	case s.Op != "":
		return s.Op
	case s.Description != "":
		return s.Description
	default:
		return s.SpanID
	}
}

func buildBar(startNano, endNano, minStart, totalDur uint64, barWidth int) string {
	if totalDur == 0 {
		return strings.Repeat("#", barWidth)
	}

	startPos := int((startNano - minStart) * uint64(barWidth) / totalDur)
	endPos := int((endNano - minStart) * uint64(barWidth) / totalDur)
	startPos = min(startPos, barWidth-1)
	endPos = min(max(endPos, startPos+1), barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}

func spanNanos(s SpanInfo) uint64 {
	return max(s.EndNano, s.StartNano) - s.StartNano
}

func formatNanos(nanos uint64) string {
	return HumanDuration(float64(nanos) / 1e9)
}
