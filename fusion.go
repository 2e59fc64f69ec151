package vorm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vormdb/vorm/internal/engine"
)

// fusionOverFetch is how many times the requested limit each arm fetches,
// so points ranked highly by only one vector still reach the merge.
const fusionOverFetch = 3

type fusionArm struct {
	field  string
	vector []float32
	metric engine.Metric
	weight float64 // normalized
}

// runFusion executes one search per usable arm, accumulates weighted
// scores per point, ranks the merged set and retrieves the winners in
// rank order. A failed arm contributes nothing; the failure is logged.
func (q *Query) runFusion(ctx context.Context, f engine.Filter) ([]*Record, error) {
	arms, err := q.fusionArms()
	if err != nil {
		return nil, err
	}

	fetch := (q.limit + q.offset) * fusionOverFetch

	var mu sync.Mutex
	partials := make(map[string][]engine.ScoredPoint, len(arms))
	var g errgroup.Group
	g.SetLimit(q.session.eng.fusionConcurrency)

	start := time.Now()
	for _, arm := range arms {
		arm := arm
		g.Go(func() error {
			hits, err := q.session.eng.store.Search(ctx, &engine.SearchRequest{
				Collection:  q.schema.name,
				Field:       arm.field,
				Vector:      arm.vector,
				Metric:      arm.metric,
				Filter:      f,
				Limit:       fetch,
				WithPayload: false,
				WithVectors: false,
			})
			if err != nil {
				q.session.eng.loggerFrom(ctx).Warn("fusion arm failed",
					zap.String("collection", q.schema.name),
					zap.String("field", arm.field),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			partials[arm.field] = hits
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	q.session.eng.obs.observe("combined_search", start, nil)

	// Merge in sorted arm order so accumulation is deterministic.
	scores := make(map[engine.PointID]float64)
	for _, arm := range arms {
		for _, h := range partials[arm.field] {
			scores[h.Point.ID] += h.Score * arm.weight
		}
	}
	if len(scores) == 0 {
		return []*Record{}, nil
	}

	type ranked struct {
		id    engine.PointID
		score float64
	}
	order := make([]ranked, 0, len(scores))
	for id, score := range scores {
		order = append(order, ranked{id: id, score: score})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].id.String() < order[j].id.String()
	})

	end := q.offset + q.limit
	if end > len(order) {
		end = len(order)
	}
	if q.offset >= end {
		return []*Record{}, nil
	}
	order = order[q.offset:end]

	ids := make([]engine.PointID, len(order))
	for i, r := range order {
		ids[i] = r.id
	}
	points, err := q.session.eng.store.Retrieve(
		ctx, q.schema.name, ids, q.withPayload, q.withVectors,
	)
	if err != nil {
		return nil, err
	}

	// Retrieve gives no order guarantee and may drop vanished points;
	// rebuild the ranked order from what came back.
	byID := make(map[engine.PointID]engine.Point, len(points))
	for _, p := range points {
		byID[p.ID] = p
	}
	records := make([]*Record, 0, len(order))
	for _, rk := range order {
		p, ok := byID[rk.id]
		if !ok {
			continue
		}
		r := recordFromPoint(q.schema, p)
		r.score = rk.score
		r.hasScore = true
		records = append(records, r)
	}
	return records, nil
}

// fusionArms validates the combined search arms and normalizes their
// weights so they sum to one. Arms without a vector or with a
// non-positive weight are skipped.
func (q *Query) fusionArms() ([]fusionArm, error) {
	fields := make([]string, 0, len(q.combined))
	for field := range q.combined {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var total float64
	arms := make([]fusionArm, 0, len(fields))
	for _, field := range fields {
		wv := q.combined[field]
		if len(wv.Vector) == 0 || wv.Weight <= 0 {
			continue
		}
		vd, ok := q.schema.vector(field)
		if !ok {
			return nil, fmt.Errorf("%w: vector %s.%s", ErrUnknownField, q.schema.name, field)
		}
		if len(wv.Vector) != vd.Dim {
			return nil, fmt.Errorf("%w: %s.%s wants %d, got %d",
				ErrVectorDimMismatch, q.schema.name, field, vd.Dim, len(wv.Vector))
		}
		arms = append(arms, fusionArm{
			field:  field,
			vector: wv.Vector,
			metric: vd.Metric.engineMetric(),
			weight: wv.Weight,
		})
		total += wv.Weight
	}
	if len(arms) == 0 || total <= 0 {
		return nil, ErrInvalidWeights
	}
	for i := range arms {
		arms[i].weight /= total
	}
	return arms, nil
}
