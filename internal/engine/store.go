package engine

import (
	"context"
	"time"
)

// SearchRequest is a nearest-neighbor query against one named vector field.
// Either Vector (dense) or Sparse is set, never both.
type SearchRequest struct {
	Collection     string
	Field          string
	Vector         []float32
	Sparse         *SparseVector
	Metric         Metric
	Filter         Filter
	Limit          int
	Offset         int
	ScoreThreshold *float64
	WithPayload    bool
	WithVectors    bool
}

// ScrollRequest is a filtered enumeration query. Ordering beyond the
// engine's native enumeration order is not guaranteed.
type ScrollRequest struct {
	Collection  string
	Filter      Filter
	Limit       int
	Offset      int
	WithPayload bool
	WithVectors bool
}

// Store is the vector-engine collaborator. Retrieve preserves no particular
// order relative to the requested ids; Delete tolerates absent ids.
type Store interface {
	CreateCollection(ctx context.Context, def *CollectionDef) error
	DropCollection(ctx context.Context, name string) error

	Upsert(ctx context.Context, collection string, points []Point) error
	Retrieve(ctx context.Context, collection string, ids []PointID, withPayload, withVectors bool) ([]Point, error)
	Delete(ctx context.Context, collection string, ids []PointID) error

	Search(ctx context.Context, req *SearchRequest) ([]ScoredPoint, error)
	Scroll(ctx context.Context, req *ScrollRequest) ([]Point, int, error)
	Count(ctx context.Context, collection string, f Filter) (int, error)

	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}
