package vorm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vormdb/vorm/internal/engine"
)

// SparseVector is a sparse embedding: parallel index and value slices.
type SparseVector struct {
	Indices []int
	Values  []float32
}

// Record is one row of a collection, bound to its schema. Records read
// back from a query additionally carry a similarity score.
type Record struct {
	schema *Schema
	values map[string]any
	dense  map[string][]float32
	sparse map[string]SparseVector

	score    float64
	hasScore bool
}

// NewRecord returns an empty record for the schema.
func NewRecord(s *Schema) *Record {
	return &Record{
		schema: s,
		values: make(map[string]any),
		dense:  make(map[string][]float32),
		sparse: make(map[string]SparseVector),
	}
}

// NewRecord returns an empty record for this schema.
func (s *Schema) NewRecord() *Record { return NewRecord(s) }

// Schema returns the schema the record is bound to.
func (r *Record) Schema() *Schema { return r.schema }

// Set assigns a payload field value. The field must be declared.
func (r *Record) Set(name string, v any) error {
	if _, ok := r.schema.field(name); !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.schema.name, name)
	}
	r.values[name] = v
	return nil
}

// SetVector assigns a dense vector. The dimension must match the schema.
func (r *Record) SetVector(name string, vec []float32) error {
	vd, ok := r.schema.vector(name)
	if !ok {
		return fmt.Errorf("%w: vector %s.%s", ErrUnknownField, r.schema.name, name)
	}
	if len(vec) != vd.Dim {
		return fmt.Errorf("%w: %s.%s wants %d, got %d",
			ErrVectorDimMismatch, r.schema.name, name, vd.Dim, len(vec))
	}
	r.dense[name] = vec
	return nil
}

// SetSparse assigns a sparse vector.
func (r *Record) SetSparse(name string, sv SparseVector) error {
	if !r.schema.hasSparse(name) {
		return fmt.Errorf("%w: sparse vector %s.%s", ErrUnknownField, r.schema.name, name)
	}
	r.sparse[name] = sv
	return nil
}

// Get returns a payload field value and whether it is set.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Vector returns a dense vector by name, nil when absent.
func (r *Record) Vector(name string) []float32 { return r.dense[name] }

// Sparse returns a sparse vector by name.
func (r *Record) Sparse(name string) (SparseVector, bool) {
	sv, ok := r.sparse[name]
	return sv, ok
}

// PK returns the primary key value, nil when unset.
func (r *Record) PK() any { return r.values[r.schema.pkName] }

// Score returns the similarity score attached by a search, and whether
// the record came from one.
func (r *Record) Score() (float64, bool) { return r.score, r.hasScore }

// FromMap assigns payload values from a map, validating each field name.
func (r *Record) FromMap(values map[string]any) error {
	for name, v := range values {
		if err := r.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// ToMap returns a copy of the payload values.
func (r *Record) ToMap() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// prepare applies defaults and checks required fields before an insert.
func (r *Record) prepare() error {
	for _, fd := range r.schema.fields {
		v, set := r.values[fd.Name]
		if (!set || v == nil) && fd.Default != nil {
			r.values[fd.Name] = fd.Default
			continue
		}
		if fd.PK {
			continue // generated when absent
		}
		if !fd.Nullable && (!set || v == nil) {
			return fmt.Errorf("vorm: field %s.%s is required", r.schema.name, fd.Name)
		}
	}
	return nil
}

func (r *Record) toPoint(id engine.PointID) engine.Point {
	p := engine.Point{
		ID:      id,
		Payload: make(map[string]any, len(r.values)),
	}
	for k, v := range r.values {
		p.Payload[k] = v
	}
	if len(r.dense) > 0 {
		p.Dense = make(map[string][]float32, len(r.dense))
		for k, v := range r.dense {
			p.Dense[k] = v
		}
	}
	if len(r.sparse) > 0 {
		p.Sparse = make(map[string]engine.SparseVector, len(r.sparse))
		for k, sv := range r.sparse {
			p.Sparse[k] = engine.SparseVector{Indices: sv.Indices, Values: sv.Values}
		}
	}
	return p
}

// recordFromPoint rebuilds a record from an engine point. Payload values
// arrive stringly typed from hash storage and are coerced back to the
// declared kind. The primary key comes from the payload when present,
// falling back to the engine point id.
func recordFromPoint(s *Schema, p engine.Point) *Record {
	r := NewRecord(s)

	for name, raw := range p.Payload {
		fd, ok := s.field(name)
		if !ok {
			r.values[name] = raw
			continue
		}
		r.values[name] = coerceValue(fd, raw)
	}

	if _, set := r.values[s.pkName]; !set && !p.ID.IsZero() {
		if p.ID.IsNum() {
			r.values[s.pkName] = int64(p.ID.Num())
		} else {
			r.values[s.pkName] = p.ID.String()
		}
	}

	for name, vec := range p.Dense {
		r.dense[name] = vec
	}
	for name, sv := range p.Sparse {
		r.sparse[name] = SparseVector{Indices: sv.Indices, Values: sv.Values}
	}
	return r
}

func coerceValue(fd *FieldDescriptor, raw any) any {
	if fd.Array {
		return coerceArray(fd, raw)
	}
	return coerceScalar(fd.Kind, raw)
}

func coerceArray(fd *FieldDescriptor, raw any) any {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	if s == "" {
		return []any{}
	}
	parts := strings.Split(s, engine.ArraySeparator)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = coerceScalar(fd.Kind, p)
	}
	return out
}

func coerceScalar(kind Kind, raw any) any {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	switch kind {
	case Integer:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case Float:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case Boolean:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return s
}
