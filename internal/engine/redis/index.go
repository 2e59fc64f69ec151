package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vormdb/vorm/internal/engine"
)

// CreateCollection declares an FT index over the collection's key prefix.
// An already existing index is not an error.
func (s *Store) CreateCollection(ctx context.Context, def *engine.CollectionDef) error {
	if len(def.Sparse) > 0 {
		return &engine.Error{
			Op:  engine.OpCreateCollection,
			Err: fmt.Errorf("%w: sparse vector fields", engine.ErrUnsupported),
		}
	}

	args := buildCreateArgs(s.indexName(def.Name), s.keyPrefix(def.Name), *def)
	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return &engine.Error{Op: engine.OpCreateCollection, Err: err}
	}
	return nil
}

// DropCollection removes the index together with the indexed hashes.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(s.indexName(name), "DD").Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index") || isRedisErr(err, "no such index") {
			return nil
		}
		return &engine.Error{Op: engine.OpDropCollection, Err: err}
	}
	return nil
}

func buildCreateArgs(indexName, keyPrefix string, def engine.CollectionDef) []string {
	args := []string{
		indexName,
		"ON", "HASH",
		"PREFIX", "1", keyPrefix,
		"SCHEMA",
	}
	for _, f := range def.Payload {
		args = append(args, buildFieldArgs(f)...)
	}
	for _, v := range def.Dense {
		args = append(args, buildVectorFieldArgs(v)...)
	}
	return args
}

func buildFieldArgs(f engine.PayloadField) []string {
	switch f.Kind {
	case engine.FieldInteger, engine.FieldFloat:
		return []string{f.Name, "NUMERIC"}
	default:
		if f.FullText {
			return []string{f.Name, "TEXT"}
		}
		if f.Array {
			return []string{f.Name, "TAG", "SEPARATOR", engine.ArraySeparator}
		}
		return []string{f.Name, "TAG"}
	}
}

func buildVectorFieldArgs(v engine.DenseVectorDef) []string {
	return []string{
		denseFieldPrefix + v.Name, "VECTOR", "FLAT", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(v.Dim),
		"DISTANCE_METRIC", metricName(v.Metric),
	}
}

func metricName(m engine.Metric) string {
	switch m {
	case engine.MetricEuclid:
		return "L2"
	case engine.MetricDot:
		return "IP"
	default:
		return "COSINE"
	}
}
