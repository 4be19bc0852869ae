package domain

// Filter is a typed, store-agnostic query expression. The storage layer owns
// the single adapter that serializes a Filter into its own textual dialect, so
// nothing outside storage ever concatenates query strings.
type Filter interface {
	isFilter()
}

// Queryable field names understood by the filter adapter.
const (
	FieldStatus     = "status"
	FieldCountry    = "country"
	FieldGroupShort = "group_short"
	FieldMepID      = "mep_id"
)

// FieldEquals matches rows whose field equals the given value exactly.
type FieldEquals struct {
	Field string
	Value string
}

// FieldIn matches rows whose field equals any of the given values.
type FieldIn struct {
	Field  string
	Values []string
}

// And matches rows satisfying every inner filter.
type And struct {
	Filters []Filter
}

func (FieldEquals) isFilter() {}
func (FieldIn) isFilter()     {}
func (And) isFilter()         {}

// ActiveOnly is the filter used to restrict listings to seated members.
func ActiveOnly() Filter {
	return FieldEquals{Field: FieldStatus, Value: string(StatusActive)}
}
