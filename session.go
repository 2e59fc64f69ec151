package vorm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vormdb/vorm/filter"
	"github.com/vormdb/vorm/internal/engine"
	"github.com/vormdb/vorm/internal/ident"
)

// Session is a unit of work: staged inserts and deletes are held in
// memory until Commit flushes them to the engine, grouped by collection.
// Sessions are not safe for concurrent use.
type Session struct {
	eng *Engine

	inserts []*Record
	deletes []pendingDelete
}

type pendingDelete struct {
	schema *Schema
	id     any
}

// Add stages a record for insertion on the next Commit.
func (s *Session) Add(records ...*Record) {
	s.inserts = append(s.inserts, records...)
}

// Delete stages a delete by primary key on the next Commit.
func (s *Session) Delete(schema *Schema, id any) {
	s.deletes = append(s.deletes, pendingDelete{schema: schema, id: id})
}

// Rollback discards all staged changes.
func (s *Session) Rollback() {
	s.inserts = nil
	s.deletes = nil
}

// Commit flushes staged changes. Records without a primary key get a
// generated UUID written back before the upsert, so the caller observes
// the assigned key. The derived engine id for each inserted record is
// remembered for later lookups.
func (s *Session) Commit(ctx context.Context) error {
	start := time.Now()
	err := s.commit(ctx)
	s.eng.obs.observe("commit", start, err)
	if err != nil {
		return err
	}
	s.inserts = nil
	s.deletes = nil
	return nil
}

func (s *Session) commit(ctx context.Context) error {
	byCollection := make(map[string][]engine.Point)
	order := make([]string, 0)

	for _, r := range s.inserts {
		if err := r.prepare(); err != nil {
			return err
		}
		pk := r.PK()
		if pk == nil {
			pk = ident.NewDomainID()
			r.values[r.schema.pkName] = pk
		}
		id := ident.EngineID(pk)
		s.eng.ids.Remember(r.schema.name, pk, id)

		name := r.schema.name
		if _, seen := byCollection[name]; !seen {
			order = append(order, name)
		}
		byCollection[name] = append(byCollection[name], r.toPoint(id))
	}

	for _, name := range order {
		if err := s.eng.store.Upsert(ctx, name, byCollection[name]); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
	}

	delByCollection := make(map[string][]engine.PointID)
	delOrder := make([]string, 0)
	for _, d := range s.deletes {
		name := d.schema.name
		if _, seen := delByCollection[name]; !seen {
			delOrder = append(delOrder, name)
		}
		delByCollection[name] = append(delByCollection[name], s.resolveID(d.schema, d.id))
	}
	for _, name := range delOrder {
		if err := s.eng.store.Delete(ctx, name, delByCollection[name]); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
	}
	return nil
}

// resolveID prefers the mapping remembered at insert time and falls back
// to deriving the engine id from the value.
func (s *Session) resolveID(schema *Schema, id any) engine.PointID {
	return s.eng.ids.Resolve(schema.name, id)
}

// Get fetches one record by primary key. A missing record and a failed
// lookup both come back as ErrNotFound; the failure itself is logged.
func (s *Session) Get(ctx context.Context, schema *Schema, id any) (*Record, error) {
	start := time.Now()
	points, err := s.eng.store.Retrieve(
		ctx, schema.name, []engine.PointID{s.resolveID(schema, id)}, true, true,
	)
	s.eng.obs.observe("get", start, err)
	if err != nil {
		s.eng.loggerFrom(ctx).Warn("get failed",
			zap.String("collection", schema.name),
			zap.Any("id", id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, schema.name, id)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, schema.name, id)
	}
	return recordFromPoint(schema, points[0]), nil
}

// bulkBatchSize bounds the number of staged changes per commit in the
// bulk helpers, to keep individual engine round trips small.
const bulkBatchSize = 100

// BulkInsert stages the records and commits them in batches.
func (s *Session) BulkInsert(ctx context.Context, records ...*Record) error {
	for len(records) > 0 {
		n := min(bulkBatchSize, len(records))
		s.Add(records[:n]...)
		if err := s.Commit(ctx); err != nil {
			return err
		}
		records = records[n:]
	}
	return nil
}

// BulkDelete stages deletes for the ids and commits them in batches.
func (s *Session) BulkDelete(ctx context.Context, schema *Schema, ids ...any) error {
	for len(ids) > 0 {
		n := min(bulkBatchSize, len(ids))
		for _, id := range ids[:n] {
			s.Delete(schema, id)
		}
		if err := s.Commit(ctx); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

// GetOrCreate returns the record with the given primary key, creating it
// with init when it does not exist. The second result reports whether a
// new record was created.
func (s *Session) GetOrCreate(
	ctx context.Context, schema *Schema, id any, init func(*Record) error,
) (*Record, bool, error) {
	r, err := s.Get(ctx, schema, id)
	if err == nil {
		return r, false, nil
	}

	r = NewRecord(schema)
	r.values[schema.pkName] = id
	if init != nil {
		if err := init(r); err != nil {
			return nil, false, err
		}
	}
	if err := s.BulkInsert(ctx, r); err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// UpdateOrCreate applies the patch to the record with the given primary
// key, creating it when it does not exist.
func (s *Session) UpdateOrCreate(
	ctx context.Context, schema *Schema, id any, patch map[string]any,
) (*Record, error) {
	r, err := s.Get(ctx, schema, id)
	if err != nil {
		r = NewRecord(schema)
		r.values[schema.pkName] = id
	}
	for name, v := range patch {
		if err := r.Set(name, v); err != nil {
			return nil, err
		}
	}
	if err := s.BulkInsert(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteWhere removes every record matching the conditions, paging
// through matches until none remain, and returns how many were deleted.
func (s *Session) DeleteWhere(
	ctx context.Context, schema *Schema, conditions ...filter.Node,
) (int, error) {
	total := 0
	for {
		records, err := s.Query(schema).Filter(conditions...).WithVectors(false).all(ctx)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			return total, nil
		}
		ids := make([]engine.PointID, len(records))
		for i, r := range records {
			ids[i] = s.resolveID(schema, r.PK())
		}
		if err := s.eng.store.Delete(ctx, schema.name, ids); err != nil {
			return total, err
		}
		total += len(records)
		if len(records) < s.eng.defaultLimit {
			return total, nil
		}
	}
}

// UpdateWhere applies the patch to one page of matching records, up to
// the query's default limit, and returns how many were updated. Vectors
// are carried through the rewrite unchanged. One page per call because a
// patched record can still match the conditions; calling in a loop is
// the caller's decision.
func (s *Session) UpdateWhere(
	ctx context.Context, schema *Schema, patch map[string]any, conditions ...filter.Node,
) (int, error) {
	records, err := s.Query(schema).Filter(conditions...).WithVectors(true).all(ctx)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	for _, r := range records {
		for name, v := range patch {
			if err := r.Set(name, v); err != nil {
				return 0, err
			}
		}
	}
	if err := s.BulkInsert(ctx, records...); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Query starts a read query against a schema's collection.
func (s *Session) Query(schema *Schema) *Query {
	return &Query{
		session:     s,
		schema:      schema,
		limit:       s.eng.defaultLimit,
		withPayload: true,
	}
}
