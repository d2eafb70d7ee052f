package viz

// SpanInfo is the input type for trace waterfall rendering.
// Decoupled from the discover types so viz is a pure rendering package.
type SpanInfo struct {
	SpanID      string
	ParentID    string // Empty = root span
	Op          string
	Description string
	StartNano   uint64
	EndNano     uint64
	Error       bool
}

// StoreStats describes event store fill levels for the stats overview.
type StoreStats struct {
	RecordCount    int
	RecordCapacity int
	Transactions   int
	Errors         int
	Traces         int
	Pins           int
	Rules          int
	Subscribers    int
}

// Column is one column of a rendered table.
type Column struct {
	Title      string
	AlignRight bool
}
