package vorm

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/vormdb/vorm/filter"
)

const tagKey = "vorm"

// typedMeta holds parsed struct tag metadata, cached per Index.
type typedMeta struct {
	typ    reflect.Type // struct type for reconstruction
	schema *Schema

	// Struct field index per schema field name.
	payloadIdx map[string]int
	vectorIdx  map[string]int
	sparseIdx  map[string]int
}

// parseTyped reflects on T and builds a schema from its vorm struct tags.
//
// Tag format: `vorm:"name"` or `vorm:"name,modifier"` with modifiers
// pk, fulltext, array, sparse and vector=<dim>:<metric>. The payload
// kind comes from the Go field type.
func parseTyped[T any](collection string) (*typedMeta, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("vorm: type %s is not a struct", t)
	}

	meta := &typedMeta{
		typ:        t,
		payloadIdx: make(map[string]int),
		vectorIdx:  make(map[string]int),
		sparseIdx:  make(map[string]int),
	}
	builder := NewSchema(collection)

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get(tagKey)
		if tag == "" || tag == "-" {
			continue
		}
		if err := applyTag(meta, builder, i, f, tag); err != nil {
			return nil, err
		}
	}

	schema, err := builder.Build()
	if err != nil {
		return nil, err
	}
	meta.schema = schema
	return meta, nil
}

// applyTag processes a single struct field's vorm tag.
func applyTag(meta *typedMeta, b *SchemaBuilder, idx int, f reflect.StructField, tag string) error {
	parts := strings.SplitN(tag, ",", 2)
	name := parts[0]
	modifier := ""
	if len(parts) == 2 {
		modifier = parts[1]
	}

	switch {
	case modifier == "sparse":
		if f.Type != reflect.TypeOf(SparseVector{}) {
			return fmt.Errorf("vorm: sparse field %s must be vorm.SparseVector", f.Name)
		}
		b.SparseVector(name)
		meta.sparseIdx[name] = idx
		return nil

	case strings.HasPrefix(modifier, "vector="):
		dim, metric, err := parseVectorModifier(modifier)
		if err != nil {
			return fmt.Errorf("vorm: field %s: %w", f.Name, err)
		}
		if f.Type != reflect.TypeOf([]float32(nil)) {
			return fmt.Errorf("vorm: vector field %s must be []float32", f.Name)
		}
		b.Vector(name, dim, metric)
		meta.vectorIdx[name] = idx
		return nil
	}

	kind, isArray, err := kindOf(f.Type)
	if err != nil {
		return fmt.Errorf("vorm: field %s: %w", f.Name, err)
	}

	var opts []FieldOption
	switch modifier {
	case "":
	case "pk":
		opts = append(opts, PrimaryKey())
	case "fulltext":
		opts = append(opts, FullText())
	case "array":
		isArray = true
	default:
		return fmt.Errorf("vorm: unknown modifier %q on field %s", modifier, f.Name)
	}

	if isArray {
		b.Array(name, kind, opts...)
	} else {
		b.Field(name, kind, opts...)
	}
	meta.payloadIdx[name] = idx
	return nil
}

func parseVectorModifier(modifier string) (int, Metric, error) {
	spec := strings.TrimPrefix(modifier, "vector=")
	dimStr, metricStr, _ := strings.Cut(spec, ":")
	dim, err := strconv.Atoi(dimStr)
	if err != nil || dim <= 0 {
		return 0, Cosine, fmt.Errorf("bad vector dimension %q", dimStr)
	}
	switch metricStr {
	case "", "cosine":
		return dim, Cosine, nil
	case "l2", "euclid":
		return dim, Euclid, nil
	case "ip", "dot":
		return dim, Dot, nil
	default:
		return 0, Cosine, fmt.Errorf("unknown metric %q", metricStr)
	}
}

func kindOf(t reflect.Type) (Kind, bool, error) {
	if t.Kind() == reflect.Slice {
		kind, _, err := kindOf(t.Elem())
		return kind, true, err
	}
	switch t.Kind() {
	case reflect.String:
		return String, false, nil
	case reflect.Int, reflect.Int32, reflect.Int64:
		return Integer, false, nil
	case reflect.Float32, reflect.Float64:
		return Float, false, nil
	case reflect.Bool:
		return Boolean, false, nil
	default:
		return String, false, fmt.Errorf("unsupported payload type %s", t)
	}
}

// toRecord converts a typed struct to a Record using schema metadata.
func (m *typedMeta) toRecord(item any) (*Record, error) {
	v := reflect.ValueOf(item)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	r := NewRecord(m.schema)
	for name, idx := range m.payloadIdx {
		fv := v.Field(idx)
		if fv.IsZero() {
			continue
		}
		if err := r.Set(name, fv.Interface()); err != nil {
			return nil, err
		}
	}
	for name, idx := range m.vectorIdx {
		vec := v.Field(idx).Interface().([]float32)
		if len(vec) == 0 {
			continue
		}
		if err := r.SetVector(name, vec); err != nil {
			return nil, err
		}
	}
	for name, idx := range m.sparseIdx {
		sv := v.Field(idx).Interface().(SparseVector)
		if len(sv.Indices) == 0 {
			continue
		}
		if err := r.SetSparse(name, sv); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// fromRecord converts a Record back to a typed struct.
func (m *typedMeta) fromRecord(r *Record) any {
	v := reflect.New(m.typ).Elem()

	for name, idx := range m.payloadIdx {
		raw, ok := r.Get(name)
		if !ok || raw == nil {
			continue
		}
		setPayloadField(v.Field(idx), raw)
	}
	for name, idx := range m.vectorIdx {
		if vec := r.Vector(name); vec != nil {
			v.Field(idx).Set(reflect.ValueOf(vec))
		}
	}
	for name, idx := range m.sparseIdx {
		if sv, ok := r.Sparse(name); ok {
			v.Field(idx).Set(reflect.ValueOf(sv))
		}
	}
	return v.Interface()
}

func setPayloadField(fv reflect.Value, raw any) {
	if fv.Kind() == reflect.Slice {
		items, ok := raw.([]any)
		if !ok {
			return
		}
		out := reflect.MakeSlice(fv.Type(), len(items), len(items))
		for i, item := range items {
			setPayloadField(out.Index(i), item)
		}
		fv.Set(out)
		return
	}

	switch fv.Kind() {
	case reflect.String:
		if s, ok := raw.(string); ok {
			fv.SetString(s)
		} else {
			fv.SetString(fmt.Sprint(raw))
		}
	case reflect.Int, reflect.Int32, reflect.Int64:
		switch n := raw.(type) {
		case int64:
			fv.SetInt(n)
		case int:
			fv.SetInt(int64(n))
		case float64:
			fv.SetInt(int64(n))
		}
	case reflect.Float32, reflect.Float64:
		switch n := raw.(type) {
		case float64:
			fv.SetFloat(n)
		case int64:
			fv.SetFloat(float64(n))
		}
	case reflect.Bool:
		if b, ok := raw.(bool); ok {
			fv.SetBool(b)
		}
	}
}

// Index is a typed front over a schema derived from struct tags: the
// declarations live on the struct, records are converted both ways by
// reflection.
type Index[T any] struct {
	eng  *Engine
	meta *typedMeta
}

// NewIndex builds a typed index for T over the named collection.
func NewIndex[T any](eng *Engine, collection string) (*Index[T], error) {
	meta, err := parseTyped[T](collection)
	if err != nil {
		return nil, err
	}
	return &Index[T]{eng: eng, meta: meta}, nil
}

// Schema returns the schema derived from T's struct tags.
func (ix *Index[T]) Schema() *Schema { return ix.meta.schema }

// Ensure creates the collection when it does not exist yet.
func (ix *Index[T]) Ensure(ctx context.Context) error {
	return ix.eng.CreateCollection(ctx, ix.meta.schema)
}

// Save upserts the items in one commit.
func (ix *Index[T]) Save(ctx context.Context, items ...T) error {
	session := ix.eng.NewSession()
	for _, item := range items {
		r, err := ix.meta.toRecord(item)
		if err != nil {
			return err
		}
		session.Add(r)
	}
	return session.Commit(ctx)
}

// Get fetches one item by primary key.
func (ix *Index[T]) Get(ctx context.Context, id any) (T, error) {
	var zero T
	r, err := ix.eng.NewSession().Get(ctx, ix.meta.schema, id)
	if err != nil {
		return zero, err
	}
	item, ok := ix.meta.fromRecord(r).(T)
	if !ok {
		return zero, fmt.Errorf("vorm: cannot rebuild %T from record", zero)
	}
	return item, nil
}

// Delete removes items by primary key.
func (ix *Index[T]) Delete(ctx context.Context, ids ...any) error {
	return ix.eng.NewSession().BulkDelete(ctx, ix.meta.schema, ids...)
}

// Search starts a typed search query.
func (ix *Index[T]) Search() *TypedSearch[T] {
	return &TypedSearch[T]{ix: ix}
}

// Hit is a typed search result.
type Hit[T any] struct {
	Item  T
	Score float64
}

// TypedSearch is a fluent builder for typed queries.
type TypedSearch[T any] struct {
	ix *Index[T]

	denseField string
	denseVec   []float32
	combined   map[string]WeightedVector
	conditions []filter.Node
	limit      int
}

// Vector selects dense similarity search on the named vector field.
func (b *TypedSearch[T]) Vector(field string, vec []float32) *TypedSearch[T] {
	b.denseField = field
	b.denseVec = vec
	return b
}

// Combined selects weighted multi-vector fusion.
func (b *TypedSearch[T]) Combined(arms map[string]WeightedVector) *TypedSearch[T] {
	b.combined = arms
	return b
}

// Where adds filter conditions; all of them must hold.
func (b *TypedSearch[T]) Where(conditions ...filter.Node) *TypedSearch[T] {
	b.conditions = append(b.conditions, conditions...)
	return b
}

// Limit sets the maximum number of results.
func (b *TypedSearch[T]) Limit(n int) *TypedSearch[T] {
	b.limit = n
	return b
}

// Do executes the search and returns typed results.
func (b *TypedSearch[T]) Do(ctx context.Context) ([]Hit[T], error) {
	q := b.ix.eng.NewSession().Query(b.ix.meta.schema).
		Filter(b.conditions...).
		WithVectors(true)
	if b.limit > 0 {
		q.Limit(b.limit)
	}
	if len(b.combined) > 0 {
		q.CombinedVectorSearch(b.combined)
	} else if b.denseField != "" {
		q.VectorSearch(b.denseField, b.denseVec)
	}

	records, err := q.All(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit[T], 0, len(records))
	for _, r := range records {
		item, ok := b.ix.meta.fromRecord(r).(T)
		if !ok {
			continue
		}
		score, _ := r.Score()
		hits = append(hits, Hit[T]{Item: item, Score: score})
	}
	return hits, nil
}
