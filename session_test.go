package vorm

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/uuid"

	"github.com/vormdb/vorm/filter"
	"github.com/vormdb/vorm/internal/engine"
	"github.com/vormdb/vorm/internal/ident"
)

func TestSessionCommit_GroupsByCollection(t *testing.T) {
	upserts := make(map[string]int)
	store := &mockStore{
		upsertFn: func(_ context.Context, collection string, points []engine.Point) error {
			upserts[collection] += len(points)
			return nil
		},
	}
	eng := newTestEngine(store)
	books := bookSchema(t)
	authors, err := NewSchema("authors").Field("id", String, PrimaryKey()).Field("name", String).Build()
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}

	session := eng.NewSession()
	for _, title := range []string{"Dune", "Solaris"} {
		r := books.NewRecord()
		mustSet(t, r, "id", "book-"+title)
		mustSet(t, r, "title", title)
		session.Add(r)
	}
	a := authors.NewRecord()
	mustSet(t, a, "id", "a1")
	mustSet(t, a, "name", "Lem")
	session.Add(a)

	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if upserts["books"] != 2 || upserts["authors"] != 1 {
		t.Errorf("upserts = %v, want books:2 authors:1", upserts)
	}
}

func TestSessionCommit_GeneratesPK(t *testing.T) {
	var committed []engine.Point
	store := &mockStore{
		upsertFn: func(_ context.Context, _ string, points []engine.Point) error {
			committed = points
			return nil
		},
	}
	eng := newTestEngine(store)
	s := bookSchema(t)

	r := s.NewRecord()
	mustSet(t, r, "title", "Dune")

	session := eng.NewSession()
	session.Add(r)
	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	pk, ok := r.PK().(string)
	if !ok || pk == "" {
		t.Fatalf("pk = %v, want generated uuid written back", r.PK())
	}
	if _, err := uuid.Parse(pk); err != nil {
		t.Fatalf("generated pk %q is not a uuid: %v", pk, err)
	}
	if len(committed) != 1 {
		t.Fatalf("committed %d points, want 1", len(committed))
	}
	if committed[0].Payload["id"] != pk {
		t.Errorf("payload pk = %v, want %q stored alongside the point", committed[0].Payload["id"], pk)
	}
	if committed[0].ID != ident.EngineID(pk) {
		t.Errorf("engine id = %v, want derived from pk", committed[0].ID)
	}
}

func TestSessionCommit_RemembersIDMapping(t *testing.T) {
	eng := newTestEngine(&mockStore{})
	s := bookSchema(t)

	r := s.NewRecord()
	mustSet(t, r, "id", "my-book")
	session := eng.NewSession()
	session.Add(r)
	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := eng.ids.Resolve("books", "my-book"); got != ident.EngineID("my-book") {
		t.Errorf("resolved id = %v, want remembered derivation", got)
	}
}

func TestSessionCommit_ClearsPending(t *testing.T) {
	var upserted int
	store := &mockStore{
		upsertFn: func(_ context.Context, _ string, points []engine.Point) error {
			upserted += len(points)
			return nil
		},
	}
	eng := newTestEngine(store)
	s := bookSchema(t)

	session := eng.NewSession()
	r := s.NewRecord()
	mustSet(t, r, "id", "b1")
	session.Add(r)

	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if upserted != 1 {
		t.Errorf("upserted = %d, want 1 (second commit empty)", upserted)
	}
}

func TestSessionRollback(t *testing.T) {
	var upserted bool
	store := &mockStore{
		upsertFn: func(context.Context, string, []engine.Point) error {
			upserted = true
			return nil
		},
	}
	eng := newTestEngine(store)
	s := bookSchema(t)

	session := eng.NewSession()
	r := s.NewRecord()
	mustSet(t, r, "id", "b1")
	session.Add(r)
	session.Rollback()

	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if upserted {
		t.Error("rolled back insert reached the store")
	}
}

func TestSessionDelete_ResolvesIDs(t *testing.T) {
	var deleted []engine.PointID
	store := &mockStore{
		deleteFn: func(_ context.Context, _ string, ids []engine.PointID) error {
			deleted = ids
			return nil
		},
	}
	eng := newTestEngine(store)
	s := bookSchema(t)

	session := eng.NewSession()
	session.Delete(s, "my-book")
	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != ident.EngineID("my-book") {
		t.Errorf("deleted = %v, want derived id", deleted)
	}
}

func TestSessionGet(t *testing.T) {
	s := bookSchema(t)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		store := &mockStore{
			retrieveFn: func(_ context.Context, _ string, ids []engine.PointID, _, _ bool) ([]engine.Point, error) {
				return []engine.Point{
					{ID: ids[0], Payload: map[string]any{"id": "b1", "title": "Dune"}},
				}, nil
			},
		}
		r, err := newTestEngine(store).NewSession().Get(ctx, s, "b1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v, _ := r.Get("title"); v != "Dune" {
			t.Errorf("title = %v", v)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := newTestEngine(&mockStore{}).NewSession().Get(ctx, s, "b1")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("engine failure reads as not found", func(t *testing.T) {
		store := &mockStore{
			retrieveFn: func(context.Context, string, []engine.PointID, bool, bool) ([]engine.Point, error) {
				return nil, errors.New("connection reset")
			},
		}
		_, err := newTestEngine(store).NewSession().Get(ctx, s, "b1")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestSessionGetOrCreate(t *testing.T) {
	s := bookSchema(t)
	ctx := context.Background()

	t.Run("existing record returned", func(t *testing.T) {
		store := &mockStore{
			retrieveFn: func(_ context.Context, _ string, ids []engine.PointID, _, _ bool) ([]engine.Point, error) {
				return []engine.Point{{ID: ids[0], Payload: map[string]any{"id": "b1"}}}, nil
			},
		}
		_, created, err := newTestEngine(store).NewSession().GetOrCreate(ctx, s, "b1", nil)
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if created {
			t.Error("created = true for an existing record")
		}
	})

	t.Run("missing record created", func(t *testing.T) {
		var upserted []engine.Point
		store := &mockStore{
			upsertFn: func(_ context.Context, _ string, points []engine.Point) error {
				upserted = points
				return nil
			},
		}
		r, created, err := newTestEngine(store).NewSession().GetOrCreate(ctx, s, "b2", func(r *Record) error {
			return r.Set("title", "Solaris")
		})
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if !created {
			t.Error("created = false for a new record")
		}
		if r.PK() != "b2" {
			t.Errorf("pk = %v, want b2", r.PK())
		}
		if len(upserted) != 1 || upserted[0].Payload["title"] != "Solaris" {
			t.Errorf("upserted = %+v, want initialized record", upserted)
		}
	})
}

func TestSessionUpdateOrCreate(t *testing.T) {
	s := bookSchema(t)
	ctx := context.Background()

	store := &mockStore{
		retrieveFn: func(_ context.Context, _ string, ids []engine.PointID, _, _ bool) ([]engine.Point, error) {
			return []engine.Point{
				{ID: ids[0], Payload: map[string]any{"id": "b1", "title": "Dune", "genre": "scifi"}},
			}, nil
		},
	}
	var upserted []engine.Point
	store.upsertFn = func(_ context.Context, _ string, points []engine.Point) error {
		upserted = points
		return nil
	}

	r, err := newTestEngine(store).NewSession().UpdateOrCreate(ctx, s, "b1", map[string]any{
		"title": "Dune (revised)",
	})
	if err != nil {
		t.Fatalf("UpdateOrCreate: %v", err)
	}
	if v, _ := r.Get("title"); v != "Dune (revised)" {
		t.Errorf("title = %v", v)
	}
	if v, _ := r.Get("genre"); v != "scifi" {
		t.Errorf("genre = %v, want untouched field kept", v)
	}
	if len(upserted) != 1 {
		t.Fatalf("upserted = %d points, want 1", len(upserted))
	}
}

func TestSessionDeleteWhere(t *testing.T) {
	var deleted []engine.PointID
	store := &mockStore{
		scrollFn: func(_ context.Context, req *engine.ScrollRequest) ([]engine.Point, int, error) {
			if len(req.Filter.Must) != 1 {
				t.Errorf("filter = %+v, want one must clause", req.Filter)
			}
			return []engine.Point{
				{ID: engine.TextID("p1"), Payload: map[string]any{"id": "p1"}},
				{ID: engine.TextID("p2"), Payload: map[string]any{"id": "p2"}},
			}, -1, nil
		},
		deleteFn: func(_ context.Context, _ string, ids []engine.PointID) error {
			deleted = ids
			return nil
		},
	}
	eng := newTestEngine(store)
	s := bookSchema(t)

	n, err := eng.NewSession().DeleteWhere(context.Background(), s, filter.F("genre").Eq("pulp"))
	if err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if n != 2 || len(deleted) != 2 {
		t.Errorf("deleted %d/%d, want 2", n, len(deleted))
	}
}

func TestSessionDeleteWhere_EngineFailureSurfaces(t *testing.T) {
	store := &mockStore{
		scrollFn: func(context.Context, *engine.ScrollRequest) ([]engine.Point, int, error) {
			return nil, -1, errors.New("timeout")
		},
	}
	eng := newTestEngine(store)
	s := bookSchema(t)

	// Write paths do not get the permissive read-path treatment.
	if _, err := eng.NewSession().DeleteWhere(context.Background(), s); err == nil {
		t.Fatal("expected the scroll failure to surface")
	}
}

func TestSessionUpdateWhere(t *testing.T) {
	var upserted []engine.Point
	store := &mockStore{
		scrollFn: func(_ context.Context, req *engine.ScrollRequest) ([]engine.Point, int, error) {
			if !req.WithVectors {
				t.Error("update must fetch vectors to carry them through")
			}
			return []engine.Point{
				{
					ID:      engine.TextID("p1"),
					Payload: map[string]any{"id": "p1", "genre": "scifi"},
					Dense:   map[string][]float32{"text": {1, 2, 3, 4}},
				},
			}, -1, nil
		},
		upsertFn: func(_ context.Context, _ string, points []engine.Point) error {
			upserted = points
			return nil
		},
	}
	eng := newTestEngine(store)
	s := bookSchema(t)

	n, err := eng.NewSession().UpdateWhere(context.Background(), s,
		map[string]any{"genre": "classic"},
		filter.F("genre").Eq("scifi"),
	)
	if err != nil {
		t.Fatalf("UpdateWhere: %v", err)
	}
	if n != 1 || len(upserted) != 1 {
		t.Fatalf("updated %d/%d, want 1", n, len(upserted))
	}
	if upserted[0].Payload["genre"] != "classic" {
		t.Errorf("genre = %v, want patched value", upserted[0].Payload["genre"])
	}
	if len(upserted[0].Dense["text"]) != 4 {
		t.Errorf("dense vector dropped on rewrite: %+v", upserted[0].Dense)
	}
}

func TestSessionBulkInsert_Batches(t *testing.T) {
	var commits, total int
	store := &mockStore{
		upsertFn: func(_ context.Context, _ string, points []engine.Point) error {
			commits++
			total += len(points)
			if len(points) > bulkBatchSize {
				t.Errorf("batch of %d points exceeds %d", len(points), bulkBatchSize)
			}
			return nil
		},
	}
	eng := newTestEngine(store)
	books := bookSchema(t)

	records := make([]*Record, 0, 250)
	for i := 0; i < 250; i++ {
		r := books.NewRecord()
		mustSet(t, r, "id", "book-"+strconv.Itoa(i))
		records = append(records, r)
	}
	if err := eng.NewSession().BulkInsert(context.Background(), records...); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	if commits != 3 {
		t.Errorf("upsert calls = %d, want 3", commits)
	}
	if total != 250 {
		t.Errorf("points upserted = %d, want 250", total)
	}
}

func TestSessionDeleteWhere_PagesToExhaustion(t *testing.T) {
	remaining := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		remaining = append(remaining, "book-"+strconv.Itoa(i))
	}
	var deleteCalls int
	store := &mockStore{
		scrollFn: func(_ context.Context, req *engine.ScrollRequest) ([]engine.Point, int, error) {
			n := min(req.Limit, len(remaining))
			page := make([]engine.Point, 0, n)
			for _, id := range remaining[:n] {
				page = append(page, engine.Point{ID: engine.TextID(id), Payload: map[string]any{"id": id}})
			}
			return page, -1, nil
		},
		deleteFn: func(_ context.Context, _ string, ids []engine.PointID) error {
			deleteCalls++
			remaining = remaining[len(ids):]
			return nil
		},
	}
	eng := newTestEngine(store)
	s := bookSchema(t)

	n, err := eng.NewSession().DeleteWhere(context.Background(), s, filter.F("genre").Eq("scifi"))
	if err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if n != 25 {
		t.Errorf("deleted %d, want all 25", n)
	}
	if deleteCalls != 3 {
		t.Errorf("delete calls = %d, want 3 pages", deleteCalls)
	}
	if len(remaining) != 0 {
		t.Errorf("%d records left behind", len(remaining))
	}
}
