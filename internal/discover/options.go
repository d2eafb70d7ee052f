package discover

// FilterOption is one entry of a fixed option set, such as the transaction
// list filter dropdown.
type FilterOption struct {
	Value string
	Label string
	Sort  Sort
}

// TopTransactionLimit is the number of rows shown by the transaction list.
const TopTransactionLimit = 5

// TopTransactionFilters are the transaction list filters. The first entry is
// the default.
var TopTransactionFilters = []FilterOption{
	{Value: "slowest", Label: "Slowest Transactions", Sort: Sort{Field: FieldTransactionDuration, Desc: true}},
	{Value: "fastest", Label: "Fastest Transactions", Sort: Sort{Field: FieldTransactionDuration}},
	{Value: "recent", Label: "Recent Transactions", Sort: Sort{Field: FieldTimestamp, Desc: true}},
}

// ResolveOption returns the first option whose Value equals raw, falling back
// to the first option. It never fails; an empty option set yields the zero
// FilterOption.
func ResolveOption(raw string, options []FilterOption) FilterOption {
	if len(options) == 0 {
		return FilterOption{}
	}
	for _, opt := range options {
		if opt.Value == raw {
			return opt
		}
	}
	return options[0]
}
