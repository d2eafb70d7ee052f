package discover

import (
	"regexp"
	"strings"
)

// FieldType is the inferred value type of a result column.
type FieldType string

const (
	TypeInteger  FieldType = "integer"
	TypeNumber   FieldType = "number"
	TypeDuration FieldType = "duration"
	TypeDate     FieldType = "date"
	TypeString   FieldType = "string"
	TypeBoolean  FieldType = "boolean"
)

// IsNumeric reports whether values of this type are right-aligned numbers.
func (t FieldType) IsNumeric() bool {
	switch t {
	case TypeInteger, TypeNumber, TypeDuration:
		return true
	}
	return false
}

// Align is a rendering hint for a cell.
type Align string

const (
	AlignLeft  Align = "left"
	AlignRight Align = "right"
)

// AlignFor returns the alignment for a field type.
func AlignFor(t FieldType) Align {
	if t.IsNumeric() {
		return AlignRight
	}
	return AlignLeft
}

// Column describes one selected field of a query.
type Column struct {
	Name string
	Key  string
}

// Meta maps aggregate aliases to field types.
type Meta map[string]FieldType

// TypeOf returns the type of a column key, or "" when unknown.
func (m Meta) TypeOf(key string) FieldType {
	if m == nil {
		return ""
	}
	return m[AggregateAlias(key)]
}

// TableData is a query result: rows plus the types of the selected fields.
type TableData struct {
	Data []Record
	Meta Meta
}

var (
	nonWord       = regexp.MustCompile(`[^\w]`)
	leadingUnders = regexp.MustCompile(`^_+`)
	trailingUnder = regexp.MustCompile(`_+$`)
)

// AggregateAlias converts a field expression such as "p95()" or
// "count_unique(user)" into the key used in result metadata.
func AggregateAlias(field string) string {
	if field == "" {
		return ""
	}
	alias := nonWord.ReplaceAllString(field, "_")
	alias = leadingUnders.ReplaceAllString(alias, "")
	return trailingUnder.ReplaceAllString(alias, "")
}

// FieldTypes holds the types of the fields the event store can return.
var FieldTypes = Meta{
	AggregateAlias(FieldID):                  TypeString,
	AggregateAlias(FieldTitle):               TypeString,
	AggregateAlias(FieldEventType):           TypeString,
	AggregateAlias(FieldProject):             TypeString,
	AggregateAlias(FieldProjectID):           TypeInteger,
	AggregateAlias(FieldTimestamp):           TypeDate,
	AggregateAlias(FieldTransaction):         TypeString,
	AggregateAlias(FieldTransactionDuration): TypeDuration,
	AggregateAlias(FieldTrace):               TypeString,
	AggregateAlias(FieldTraceSpan):           TypeString,
	AggregateAlias(FieldUser):                TypeString,
	AggregateAlias(FieldPlatform):            TypeString,
}

// ColumnsFor builds columns for a list of field names, using the field name
// as the column title.
func ColumnsFor(fields []string) []Column {
	cols := make([]Column, len(fields))
	for i, f := range fields {
		cols[i] = Column{Name: f, Key: strings.TrimSpace(f)}
	}
	return cols
}
