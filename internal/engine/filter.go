package engine

// Filter is the engine's native filter: three buckets of clauses.
// Must clauses all hold, MustNot clauses all fail, and at least one
// Should clause holds when the bucket is non-empty.
type Filter struct {
	Must    []Clause
	Should  []Clause
	MustNot []Clause
}

// IsEmpty reports whether the filter has no clauses. An empty filter means
// "no filter" and is omitted from requests entirely.
func (f Filter) IsEmpty() bool {
	return len(f.Must) == 0 && len(f.Should) == 0 && len(f.MustNot) == 0
}

// Clause is a single native condition. Exactly one of Match, Range,
// ValuesCount, IsEmpty, IsNull, or Group is set; Key names the payload
// field for all variants except Group.
type Clause struct {
	Key         string
	Match       *Match
	Range       *Range
	ValuesCount *Range
	IsEmpty     bool
	IsNull      bool
	Group       *Filter
}

// Match is a value-match condition. Exactly one of the four forms is set:
// Value (exact), Any (one of), Except (none of), Text (full-text).
type Match struct {
	Value  any
	Any    []any
	Except []any
	Text   string
}

// Range is a numeric range with optional open or closed boundaries.
type Range struct {
	GT  *float64
	GTE *float64
	LT  *float64
	LTE *float64
}
