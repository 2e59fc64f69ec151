package vorm

import (
	"context"
	"testing"
	"time"

	"github.com/vormdb/vorm/internal/engine"
	"github.com/vormdb/vorm/internal/ident"
)

// --- engine.Store mock ---

type mockStore struct {
	createFn   func(ctx context.Context, def *engine.CollectionDef) error
	dropFn     func(ctx context.Context, name string) error
	upsertFn   func(ctx context.Context, collection string, points []engine.Point) error
	retrieveFn func(ctx context.Context, collection string, ids []engine.PointID, withPayload, withVectors bool) ([]engine.Point, error)
	deleteFn   func(ctx context.Context, collection string, ids []engine.PointID) error
	searchFn   func(ctx context.Context, req *engine.SearchRequest) ([]engine.ScoredPoint, error)
	scrollFn   func(ctx context.Context, req *engine.ScrollRequest) ([]engine.Point, int, error)
	countFn    func(ctx context.Context, collection string, f engine.Filter) (int, error)
}

func (m *mockStore) CreateCollection(ctx context.Context, def *engine.CollectionDef) error {
	if m.createFn == nil {
		return nil
	}
	return m.createFn(ctx, def)
}

func (m *mockStore) DropCollection(ctx context.Context, name string) error {
	if m.dropFn == nil {
		return nil
	}
	return m.dropFn(ctx, name)
}

func (m *mockStore) Upsert(ctx context.Context, collection string, points []engine.Point) error {
	if m.upsertFn == nil {
		return nil
	}
	return m.upsertFn(ctx, collection, points)
}

func (m *mockStore) Retrieve(
	ctx context.Context, collection string, ids []engine.PointID, withPayload, withVectors bool,
) ([]engine.Point, error) {
	if m.retrieveFn == nil {
		return nil, nil
	}
	return m.retrieveFn(ctx, collection, ids, withPayload, withVectors)
}

func (m *mockStore) Delete(ctx context.Context, collection string, ids []engine.PointID) error {
	if m.deleteFn == nil {
		return nil
	}
	return m.deleteFn(ctx, collection, ids)
}

func (m *mockStore) Search(ctx context.Context, req *engine.SearchRequest) ([]engine.ScoredPoint, error) {
	if m.searchFn == nil {
		return nil, nil
	}
	return m.searchFn(ctx, req)
}

func (m *mockStore) Scroll(ctx context.Context, req *engine.ScrollRequest) ([]engine.Point, int, error) {
	if m.scrollFn == nil {
		return nil, 0, nil
	}
	return m.scrollFn(ctx, req)
}

func (m *mockStore) Count(ctx context.Context, collection string, f engine.Filter) (int, error) {
	if m.countFn == nil {
		return 0, nil
	}
	return m.countFn(ctx, collection, f)
}

func (m *mockStore) Ping(context.Context) error                        { return nil }
func (m *mockStore) WaitForReady(context.Context, time.Duration) error { return nil }
func (m *mockStore) Close()                                            {}

// --- fixtures ---

func newTestEngine(store engine.Store) *Engine {
	return &Engine{
		store:             store,
		ids:               ident.NewCache(ident.DefaultCacheSize),
		defaultLimit:      defaultLimit,
		fusionConcurrency: 1,
	}
}

func bookSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema("books").
		Field("id", String, PrimaryKey()).
		Field("title", String, FullText()).
		Field("genre", String).
		Field("year", Integer).
		Field("price", Float).
		Field("published", Boolean).
		Array("tags", String).
		Vector("text", 4, Cosine).
		Vector("image", 4, Cosine).
		SparseVector("keywords").
		Build()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	return s
}

func mustSet(t *testing.T, r *Record, name string, v any) {
	t.Helper()
	if err := r.Set(name, v); err != nil {
		t.Fatalf("set %s: %v", name, err)
	}
}
