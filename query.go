package vorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vormdb/vorm/filter"
	"github.com/vormdb/vorm/internal/engine"
	"github.com/vormdb/vorm/internal/translate"
)

// Query is a fluent read query. Exactly one retrieval mode runs per
// execution: a combined multi-vector search when given, otherwise a
// single vector search when given, otherwise a filtered scroll.
type Query struct {
	session *Session
	schema  *Schema

	conditions []filter.Node

	denseField  string
	denseVec    []float32
	sparseField string
	sparseVec   SparseVector
	hasSparse   bool

	combined map[string]WeightedVector

	limit          int
	offset         int
	withPayload    bool
	withVectors    bool
	scoreThreshold *float64
}

// WeightedVector is one arm of a combined vector search.
type WeightedVector struct {
	Vector []float32
	Weight float64
}

// Filter adds conditions; all of them must hold.
func (q *Query) Filter(conditions ...filter.Node) *Query {
	q.conditions = append(q.conditions, conditions...)
	return q
}

// VectorSearch selects dense similarity search on the named vector field.
func (q *Query) VectorSearch(field string, vec []float32) *Query {
	q.denseField = field
	q.denseVec = vec
	return q
}

// SparseVectorSearch selects sparse similarity search on the named field.
func (q *Query) SparseVectorSearch(field string, sv SparseVector) *Query {
	q.sparseField = field
	q.sparseVec = sv
	q.hasSparse = true
	return q
}

// CombinedVectorSearch selects weighted multi-vector fusion. Each entry
// searches its own field; per-point scores are combined by normalized
// weight. Entries with a missing vector or a non-positive weight are
// skipped.
func (q *Query) CombinedVectorSearch(arms map[string]WeightedVector) *Query {
	q.combined = arms
	return q
}

// Limit caps the number of results. Defaults to the engine's default
// limit.
func (q *Query) Limit(n int) *Query {
	if n > 0 {
		q.limit = n
	}
	return q
}

// Offset skips the first n results.
func (q *Query) Offset(n int) *Query {
	if n >= 0 {
		q.offset = n
	}
	return q
}

// WithPayload controls whether payload fields are fetched. Default true.
func (q *Query) WithPayload(v bool) *Query {
	q.withPayload = v
	return q
}

// WithVectors controls whether vectors are fetched. Default false.
func (q *Query) WithVectors(v bool) *Query {
	q.withVectors = v
	return q
}

// ScoreThreshold drops vector search hits scoring below the value.
func (q *Query) ScoreThreshold(v float64) *Query {
	q.scoreThreshold = &v
	return q
}

// All executes the query and returns the matching records. Engine
// failures are logged and reported as an empty result; only query
// construction errors (unknown fields, unsupported operators, bad
// vectors) are returned.
func (q *Query) All(ctx context.Context) ([]*Record, error) {
	records, err := q.all(ctx)
	if err != nil {
		if isQueryConstructionErr(err) {
			return nil, err
		}
		q.session.eng.loggerFrom(ctx).Warn("query failed",
			zap.String("collection", q.schema.name),
			zap.Error(err),
		)
		return []*Record{}, nil
	}
	return records, nil
}

// First executes the query with limit 1 and returns the first record, or
// ErrNotFound when nothing matches.
func (q *Query) First(ctx context.Context) (*Record, error) {
	q.limit = 1
	records, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, q.schema.name)
	}
	return records[0], nil
}

// Get ignores the configured filters and search modes and fetches a
// single record by its primary key.
func (q *Query) Get(ctx context.Context, id any) (*Record, error) {
	return q.session.Get(ctx, q.schema, id)
}

// Count returns how many records match the conditions. Engine failures
// are logged and reported as zero.
func (q *Query) Count(ctx context.Context) (int, error) {
	f, err := translate.Filter(q.conditions, q.schema.fieldKinds())
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := q.session.eng.store.Count(ctx, q.schema.name, f)
	q.session.eng.obs.observe("count", start, err)
	if err != nil {
		q.session.eng.loggerFrom(ctx).Warn("count failed",
			zap.String("collection", q.schema.name),
			zap.Error(err),
		)
		return 0, nil
	}
	return n, nil
}

// all executes without the permissive error handling of All. Write paths
// built on queries use it so their failures surface.
func (q *Query) all(ctx context.Context) ([]*Record, error) {
	f, err := translate.Filter(q.conditions, q.schema.fieldKinds())
	if err != nil {
		return nil, err
	}

	switch {
	case len(q.combined) > 0:
		return q.runFusion(ctx, f)
	case q.denseField != "":
		return q.runDense(ctx, f)
	case q.hasSparse:
		return q.runSparse(ctx, f)
	default:
		return q.runScroll(ctx, f)
	}
}

func (q *Query) runDense(ctx context.Context, f engine.Filter) ([]*Record, error) {
	vd, ok := q.schema.vector(q.denseField)
	if !ok {
		return nil, fmt.Errorf("%w: vector %s.%s", ErrUnknownField, q.schema.name, q.denseField)
	}
	if len(q.denseVec) != vd.Dim {
		return nil, fmt.Errorf("%w: %s.%s wants %d, got %d",
			ErrVectorDimMismatch, q.schema.name, q.denseField, vd.Dim, len(q.denseVec))
	}

	start := time.Now()
	hits, err := q.session.eng.store.Search(ctx, &engine.SearchRequest{
		Collection:     q.schema.name,
		Field:          q.denseField,
		Vector:         q.denseVec,
		Metric:         vd.Metric.engineMetric(),
		Filter:         f,
		Limit:          q.limit,
		Offset:         q.offset,
		ScoreThreshold: q.scoreThreshold,
		WithPayload:    q.withPayload,
		WithVectors:    q.withVectors,
	})
	q.session.eng.obs.observe("vector_search", start, err)
	if err != nil {
		return nil, err
	}
	return q.toRecords(hits), nil
}

func (q *Query) runSparse(ctx context.Context, f engine.Filter) ([]*Record, error) {
	if !q.schema.hasSparse(q.sparseField) {
		return nil, fmt.Errorf("%w: sparse vector %s.%s", ErrUnknownField, q.schema.name, q.sparseField)
	}

	sv := engine.SparseVector{Indices: q.sparseVec.Indices, Values: q.sparseVec.Values}
	start := time.Now()
	hits, err := q.session.eng.store.Search(ctx, &engine.SearchRequest{
		Collection:     q.schema.name,
		Field:          q.sparseField,
		Sparse:         &sv,
		Filter:         f,
		Limit:          q.limit,
		Offset:         q.offset,
		ScoreThreshold: q.scoreThreshold,
		WithPayload:    q.withPayload,
		WithVectors:    q.withVectors,
	})
	q.session.eng.obs.observe("sparse_search", start, err)
	if err != nil {
		return nil, err
	}
	return q.toRecords(hits), nil
}

func (q *Query) runScroll(ctx context.Context, f engine.Filter) ([]*Record, error) {
	start := time.Now()
	points, _, err := q.session.eng.store.Scroll(ctx, &engine.ScrollRequest{
		Collection:  q.schema.name,
		Filter:      f,
		Limit:       q.limit,
		Offset:      q.offset,
		WithPayload: q.withPayload,
		WithVectors: q.withVectors,
	})
	q.session.eng.obs.observe("scroll", start, err)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, len(points))
	for i, p := range points {
		records[i] = recordFromPoint(q.schema, p)
	}
	return records, nil
}

func (q *Query) toRecords(hits []engine.ScoredPoint) []*Record {
	records := make([]*Record, len(hits))
	for i, h := range hits {
		r := recordFromPoint(q.schema, h.Point)
		r.score = h.Score
		r.hasScore = true
		records[i] = r
	}
	return records
}

// isQueryConstructionErr reports whether the error is the caller's to
// fix, as opposed to an engine failure the read path absorbs.
func isQueryConstructionErr(err error) bool {
	return errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrUnsupportedOperator) ||
		errors.Is(err, ErrFloatNotIn) ||
		errors.Is(err, ErrInvalidFilterValue) ||
		errors.Is(err, ErrVectorDimMismatch) ||
		errors.Is(err, ErrInvalidWeights)
}
