// Package translate converts filter predicate trees into the engine's
// native must/should/must_not filter grammar. One rule per operator, with
// type-aware casting driven by the declared field kinds. Translation is
// fully recursive over nested groups.
package translate

import (
	"errors"
	"fmt"

	"github.com/vormdb/vorm/filter"
	"github.com/vormdb/vorm/internal/engine"
)

var (
	// ErrUnsupportedOperator signals an operator with no translation rule.
	ErrUnsupportedOperator = errors.New("unsupported filter operator")
	// ErrUnknownField signals a condition on a field absent from the schema.
	ErrUnknownField = errors.New("unknown filter field")
	// ErrFloatNotIn signals not_in on a float field, which the engine's
	// negated-match representation cannot express reliably.
	ErrFloatNotIn = errors.New("not_in is not supported for float fields")
	// ErrInvalidFilterValue signals a condition value whose shape does not
	// fit its operator: a non-numeric range operand, a non-string
	// text_match, a cast failure in not_in, a boundary-less values_count.
	ErrInvalidFilterValue = errors.New("invalid filter value")
)

// FieldInfo is the declared shape of one payload field.
type FieldInfo struct {
	Kind  engine.FieldKind
	Array bool
}

// Filter translates predicate nodes (implicitly ANDed) into a native
// filter. Conditions with a nil value are skipped. An empty result means
// "no filter" and must be omitted from the request.
func Filter(nodes []filter.Node, kinds map[string]FieldInfo) (engine.Filter, error) {
	var out engine.Filter
	for _, n := range nodes {
		if err := addNode(&out, n, kinds); err != nil {
			return engine.Filter{}, err
		}
	}
	return out, nil
}

// addNode distributes one predicate into the destination buckets with AND
// semantics: conditions go to must or must_not by operator, and-groups are
// flattened, or-groups become a single nested alternative in should.
func addNode(dst *engine.Filter, n filter.Node, kinds map[string]FieldInfo) error {
	switch v := n.(type) {
	case filter.Condition:
		clauses, negated, err := conditionClauses(v, kinds)
		if err != nil {
			return err
		}
		if negated {
			dst.MustNot = append(dst.MustNot, clauses...)
		} else {
			dst.Must = append(dst.Must, clauses...)
		}
		return nil

	case filter.Group:
		return addGroup(dst, v, kinds)

	case nil:
		return nil

	default:
		return fmt.Errorf("unexpected filter node %T", n)
	}
}

func addGroup(dst *engine.Filter, g filter.Group, kinds map[string]FieldInfo) error {
	if g.Logic() == filter.LogicAnd {
		for _, child := range g.Nodes() {
			if err := addNode(dst, child, kinds); err != nil {
				return err
			}
		}
		return nil
	}

	alts, err := alternatives(g.Nodes(), kinds)
	if err != nil {
		return err
	}
	if len(alts) == 0 {
		return nil
	}
	dst.Should = append(dst.Should, engine.Clause{
		Group: &engine.Filter{Should: alts},
	})
	return nil
}

// alternatives translates or-group members, each into one should clause.
// Negated or multi-clause conditions are wrapped in a nested group so the
// alternative stays a single clause.
func alternatives(nodes []filter.Node, kinds map[string]FieldInfo) ([]engine.Clause, error) {
	var alts []engine.Clause
	for _, n := range nodes {
		switch v := n.(type) {
		case filter.Condition:
			clauses, negated, err := conditionClauses(v, kinds)
			if err != nil {
				return nil, err
			}
			switch {
			case len(clauses) == 0:
				// nil value, skipped
			case negated:
				alts = append(alts, engine.Clause{Group: &engine.Filter{MustNot: clauses}})
			case len(clauses) == 1:
				alts = append(alts, clauses[0])
			default:
				alts = append(alts, engine.Clause{Group: &engine.Filter{Must: clauses}})
			}

		case filter.Group:
			var sub engine.Filter
			if err := addNode(&sub, v, kinds); err != nil {
				return nil, err
			}
			if sub.IsEmpty() {
				continue
			}
			// An or-subgroup already translated to a single nested clause.
			if len(sub.Must) == 0 && len(sub.MustNot) == 0 && len(sub.Should) == 1 {
				alts = append(alts, sub.Should[0])
			} else {
				alts = append(alts, engine.Clause{Group: &sub})
			}

		case nil:
			// skipped

		default:
			return nil, fmt.Errorf("unexpected filter node %T", n)
		}
	}
	return alts, nil
}

// conditionClauses translates one leaf condition. It returns the native
// clauses (usually one; contains_all expands to N), whether they belong in
// the must_not bucket, or no clauses at all when the value is nil.
func conditionClauses(c filter.Condition, kinds map[string]FieldInfo) ([]engine.Clause, bool, error) {
	if c.Value() == nil {
		return nil, false, nil
	}
	key := c.FieldName()
	info, known := kinds[key]
	if !known {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}

	switch c.Operator() {
	case filter.OpEq, filter.OpContains:
		return one(engine.Clause{Key: key, Match: &engine.Match{Value: c.Value()}}), false, nil

	case filter.OpNe:
		return one(engine.Clause{Key: key, Match: &engine.Match{Value: c.Value()}}), true, nil

	case filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
		f, err := toFloat(c.Value())
		if err != nil {
			return nil, false, fmt.Errorf("field %q: %w", key, err)
		}
		r := &engine.Range{}
		switch c.Operator() {
		case filter.OpGt:
			r.GT = &f
		case filter.OpGte:
			r.GTE = &f
		case filter.OpLt:
			r.LT = &f
		case filter.OpLte:
			r.LTE = &f
		}
		return one(engine.Clause{Key: key, Range: r}), false, nil

	case filter.OpIn:
		return one(engine.Clause{Key: key, Match: &engine.Match{Any: toSlice(c.Value())}}), false, nil

	case filter.OpNotIn:
		except, err := castExcept(key, info.Kind, toSlice(c.Value()))
		if err != nil {
			return nil, false, err
		}
		return one(engine.Clause{Key: key, Match: &engine.Match{Except: except}}), true, nil

	case filter.OpContainsAny:
		return one(engine.Clause{Key: key, Match: &engine.Match{Any: toSlice(c.Value())}}), false, nil

	case filter.OpContainsAll:
		values := toSlice(c.Value())
		clauses := make([]engine.Clause, 0, len(values))
		for _, v := range values {
			clauses = append(clauses, engine.Clause{Key: key, Match: &engine.Match{Value: v}})
		}
		return clauses, false, nil

	case filter.OpIsEmpty:
		return one(engine.Clause{Key: key, IsEmpty: true}), false, nil

	case filter.OpIsNull:
		return one(engine.Clause{Key: key, IsNull: true}), false, nil

	case filter.OpTextMatch:
		text, ok := c.Value().(string)
		if !ok {
			return nil, false, fmt.Errorf("%w: text_match on %q requires a string, got %T",
				ErrInvalidFilterValue, key, c.Value())
		}
		return one(engine.Clause{Key: key, Match: &engine.Match{Text: text}}), false, nil

	case filter.OpValuesCount:
		r, err := countRange(c.Value())
		if err != nil {
			return nil, false, fmt.Errorf("field %q: %w", key, err)
		}
		return one(engine.Clause{Key: key, ValuesCount: r}), false, nil

	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnsupportedOperator, c.Operator())
	}
}

func one(c engine.Clause) []engine.Clause { return []engine.Clause{c} }

// castExcept casts exclusion-list members to the declared scalar kind.
// Float fields reject not_in outright: exact float exclusion is unreliable,
// range conditions are the documented alternative.
func castExcept(key string, kind engine.FieldKind, values []any) ([]any, error) {
	out := make([]any, 0, len(values))
	switch kind {
	case engine.FieldInteger:
		for _, v := range values {
			n, err := toInt(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			out = append(out, n)
		}
	case engine.FieldFloat:
		return nil, fmt.Errorf("%w: field %q (use range conditions >, >=, <, <= instead)", ErrFloatNotIn, key)
	case engine.FieldBoolean:
		for _, v := range values {
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: field %q expected bool, got %T", ErrInvalidFilterValue, key, v)
			}
			out = append(out, b)
		}
	default:
		for _, v := range values {
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, nil
}

func countRange(v any) (*engine.Range, error) {
	var cr filter.CountRange
	switch r := v.(type) {
	case filter.CountRange:
		cr = r
	case *filter.CountRange:
		cr = *r
	default:
		return nil, fmt.Errorf("%w: values_count requires a CountRange, got %T", ErrInvalidFilterValue, v)
	}
	if cr.GT == nil && cr.GTE == nil && cr.LT == nil && cr.LTE == nil {
		return nil, fmt.Errorf("%w: values_count requires at least one boundary", ErrInvalidFilterValue)
	}
	return &engine.Range{GT: cr.GT, GTE: cr.GTE, LT: cr.LT, LTE: cr.LTE}, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: expected numeric value, got %T", ErrInvalidFilterValue, v)
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: expected integer value, got %T", ErrInvalidFilterValue, v)
	}
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	case []int:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return []any{v}
	}
}
