package viz

import (
	"fmt"
	"strings"
)

// StatsOverview renders event store fill level and index counts.
func StatsOverview(stats StoreStats) string {
	var b strings.Builder

	b.WriteString("Event Store\n")
	writeBar(&b, "Records", stats.RecordCount, stats.RecordCapacity)
	fmt.Fprintf(&b, "  Transactions: %s  Errors: %s  Traces: %s\n",
		FormatCount(int64(stats.Transactions)), FormatCount(int64(stats.Errors)), FormatCount(int64(stats.Traces)))
	fmt.Fprintf(&b, "  Pinned baselines: %d  Alert rules: %d  Live subscribers: %d\n",
		stats.Pins, stats.Rules, stats.Subscribers)

	return b.String()
}

func writeBar(b *strings.Builder, label string, count, capacity int) {
	barWidth := 20
	filled := 0
	if capacity > 0 {
		filled = count * barWidth / capacity
	}
	filled = min(filled, barWidth)

	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	fmt.Fprintf(b, "  %-8s [%s]  %s / %s\n", label, bar, FormatCount(int64(count)), FormatCount(int64(capacity)))
}
