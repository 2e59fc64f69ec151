// Package filter provides declarative boolean predicates over record fields.
// Conditions are built through factory methods on a Field handle and combined
// with And/Or into groups; no validation against the record schema happens
// until the query translates the tree into the engine's native grammar.
package filter

// Op is a comparison operator token.
type Op string

const (
	OpEq          Op = "=="
	OpNe          Op = "!="
	OpGt          Op = ">"
	OpGte         Op = ">="
	OpLt          Op = "<"
	OpLte         Op = "<="
	OpIn          Op = "in"
	OpNotIn       Op = "not_in"
	OpContains    Op = "contains"
	OpContainsAny Op = "contains_any"
	OpContainsAll Op = "contains_all"
	OpIsEmpty     Op = "is_empty"
	OpIsNull      Op = "is_null"
	OpTextMatch   Op = "text_match"
	OpValuesCount Op = "values_count"
)

// Logic combines group members.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Node is a predicate: either a Condition leaf or a Group.
type Node interface {
	node()
}

// Condition is a single (field, operator, value) predicate. A nil value
// causes the condition to be dropped at translation time rather than
// translated; use IsNull for an explicit null check.
type Condition struct {
	field string
	op    Op
	value any
}

func (Condition) node() {}

// NewCondition creates a raw condition. Prefer the Field factory methods.
func NewCondition(field string, op Op, value any) Condition {
	return Condition{field: field, op: op, value: value}
}

// FieldName returns the payload field the condition applies to.
func (c Condition) FieldName() string { return c.field }

// Operator returns the comparison operator.
func (c Condition) Operator() Op { return c.op }

// Value returns the comparison operand.
func (c Condition) Value() any { return c.value }

// Group is a boolean combination of predicates.
type Group struct {
	logic Logic
	nodes []Node
}

func (Group) node() {}

// And combines predicates so that all of them must hold.
func And(nodes ...Node) Group { return Group{logic: LogicAnd, nodes: nodes} }

// Or combines predicates so that at least one of them should hold.
func Or(nodes ...Node) Group { return Group{logic: LogicOr, nodes: nodes} }

// Logic returns the group combinator.
func (g Group) Logic() Logic { return g.logic }

// Nodes returns the group members.
func (g Group) Nodes() []Node { return g.nodes }

// CountRange is the operand of a values_count condition: a numeric range
// over the length of an array field. At least one boundary must be set.
type CountRange struct {
	GT  *float64
	GTE *float64
	LT  *float64
	LTE *float64
}

// Field is a handle for building conditions on one named field, obtained
// from Schema.F or the package-level F.
type Field struct {
	name string
}

// F creates a field handle by name. The name is checked against the record
// schema only when the condition is translated.
func F(name string) Field { return Field{name: name} }

// Name returns the field name.
func (f Field) Name() string { return f.name }

// Eq matches records whose field equals v. On array fields equality means
// containment of v.
func (f Field) Eq(v any) Condition { return NewCondition(f.name, OpEq, v) }

// Ne matches records whose field does not equal v.
func (f Field) Ne(v any) Condition { return NewCondition(f.name, OpNe, v) }

// Gt matches records whose field is greater than v.
func (f Field) Gt(v any) Condition { return NewCondition(f.name, OpGt, v) }

// Gte matches records whose field is greater than or equal to v.
func (f Field) Gte(v any) Condition { return NewCondition(f.name, OpGte, v) }

// Lt matches records whose field is less than v.
func (f Field) Lt(v any) Condition { return NewCondition(f.name, OpLt, v) }

// Lte matches records whose field is less than or equal to v.
func (f Field) Lte(v any) Condition { return NewCondition(f.name, OpLte, v) }

// In matches records whose field is any of the given values.
func (f Field) In(values ...any) Condition { return NewCondition(f.name, OpIn, values) }

// NotIn matches records whose field is none of the given values.
// Not supported on float fields; use range conditions instead.
func (f Field) NotIn(values ...any) Condition { return NewCondition(f.name, OpNotIn, values) }

// Contains matches records whose array field contains v.
func (f Field) Contains(v any) Condition { return NewCondition(f.name, OpContains, v) }

// ContainsAny matches records whose array field contains at least one
// of the given values.
func (f Field) ContainsAny(values ...any) Condition {
	return NewCondition(f.name, OpContainsAny, values)
}

// ContainsAll matches records whose array field contains every one of the
// given values.
func (f Field) ContainsAll(values ...any) Condition {
	return NewCondition(f.name, OpContainsAll, values)
}

// IsEmpty matches records whose field is absent or an empty array.
func (f Field) IsEmpty() Condition { return NewCondition(f.name, OpIsEmpty, true) }

// IsNull matches records whose field is explicitly null.
func (f Field) IsNull() Condition { return NewCondition(f.name, OpIsNull, true) }

// TextMatch matches records whose text field matches the given query.
func (f Field) TextMatch(text string) Condition {
	return NewCondition(f.name, OpTextMatch, text)
}

// ValuesCount matches records whose array field length falls in r.
func (f Field) ValuesCount(r CountRange) Condition {
	return NewCondition(f.name, OpValuesCount, r)
}
