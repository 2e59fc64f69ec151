package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/vormdb/vorm/internal/engine"
)

// Reserved hash-field prefixes for vector data. Everything else in a point
// hash is a scalar payload field stored as a string.
const (
	denseFieldPrefix  = "__vec_"
	sparseFieldPrefix = "__sparse_"
)

// Upsert writes all points in a single pipelined round-trip.
func (s *Store) Upsert(ctx context.Context, collection string, points []engine.Point) error {
	if len(points) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(points))
	for i, p := range points {
		fields, err := encodePoint(p)
		if err != nil {
			return &engine.Error{Op: engine.OpUpsert, Err: fmt.Errorf("point %s: %w", p.ID, err)}
		}
		cmd := s.b().Hset().Key(s.pointKey(collection, p.ID)).FieldValue()
		for k, v := range fields {
			cmd = cmd.FieldValue(k, v)
		}
		cmds[i] = cmd.Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &engine.Error{Op: engine.OpUpsert, Err: fmt.Errorf("point %s: %w", points[i].ID, err)}
		}
	}
	return nil
}

// Retrieve fetches points by identifier in one pipelined round-trip.
// Absent identifiers are silently omitted from the result.
func (s *Store) Retrieve(
	ctx context.Context, collection string, ids []engine.PointID,
	withPayload, withVectors bool,
) ([]engine.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(ids))
	for i, id := range ids {
		cmds[i] = s.b().Hgetall().Key(s.pointKey(collection, id)).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	points := make([]engine.Point, 0, len(ids))
	for i, res := range results {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, &engine.Error{Op: engine.OpRetrieve, Err: fmt.Errorf("point %s: %w", ids[i], err)}
		}
		if len(m) == 0 {
			continue
		}
		points = append(points, decodePoint(ids[i], m, withPayload, withVectors))
	}
	return points, nil
}

// Delete removes points by identifier; absent identifiers are not an error.
func (s *Store) Delete(ctx context.Context, collection string, ids []engine.PointID) error {
	if len(ids) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(ids))
	for i, id := range ids {
		cmds[i] = s.b().Del().Key(s.pointKey(collection, id)).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &engine.Error{Op: engine.OpDelete, Err: fmt.Errorf("point %s: %w", ids[i], err)}
		}
	}
	return nil
}

// --- Point codec ---

func encodePoint(p engine.Point) (map[string]string, error) {
	fields := make(map[string]string, len(p.Payload)+len(p.Dense)+len(p.Sparse))

	for name, v := range p.Payload {
		if v == nil {
			continue
		}
		fields[name] = encodeScalar(v)
	}
	for name, vec := range p.Dense {
		fields[denseFieldPrefix+name] = vectorToBytes(vec)
	}
	for name, sv := range p.Sparse {
		data, err := json.Marshal(struct {
			Indices []int     `json:"indices"`
			Values  []float32 `json:"values"`
		}{sv.Indices, sv.Values})
		if err != nil {
			return nil, fmt.Errorf("sparse vector %s: %w", name, err)
		}
		fields[sparseFieldPrefix+name] = string(data)
	}
	return fields, nil
}

func decodePoint(id engine.PointID, fields map[string]string, withPayload, withVectors bool) engine.Point {
	p := engine.Point{ID: id}
	if withPayload {
		p.Payload = make(map[string]any)
	}
	if withVectors {
		p.Dense = make(map[string][]float32)
		p.Sparse = make(map[string]engine.SparseVector)
	}

	for k, v := range fields {
		switch {
		case strings.HasPrefix(k, denseFieldPrefix):
			if withVectors {
				p.Dense[strings.TrimPrefix(k, denseFieldPrefix)] = bytesToVector(v)
			}
		case strings.HasPrefix(k, sparseFieldPrefix):
			if withVectors {
				var sv struct {
					Indices []int     `json:"indices"`
					Values  []float32 `json:"values"`
				}
				if err := json.Unmarshal([]byte(v), &sv); err == nil {
					p.Sparse[strings.TrimPrefix(k, sparseFieldPrefix)] = engine.SparseVector{
						Indices: sv.Indices, Values: sv.Values,
					}
				}
			}
		default:
			if withPayload {
				p.Payload[k] = v
			}
		}
	}
	return p
}

// encodeScalar stringifies one payload value for hash storage. Arrays are
// joined with engine.ArraySeparator, which is also the TAG separator of the
// index, so each element stays individually matchable.
func encodeScalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []string:
		return strings.Join(x, engine.ArraySeparator)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = encodeScalar(e)
		}
		return strings.Join(parts, engine.ArraySeparator)
	case []int:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = strconv.Itoa(e)
		}
		return strings.Join(parts, engine.ArraySeparator)
	case []float64:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = strconv.FormatFloat(e, 'g', -1, 64)
		}
		return strings.Join(parts, engine.ArraySeparator)
	default:
		return fmt.Sprint(x)
	}
}

// vectorToBytes serializes a []float32 as little-endian binary.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
