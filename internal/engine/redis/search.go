package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/vormdb/vorm/internal/engine"
)

// scoreField is the KNN distance alias in FT.SEARCH results.
const scoreField = "__score"

// similarity converts the engine-reported distance to a higher-is-better
// score. RediSearch reports cosine distance as 1-cos and inner product as
// 1-ip, so both invert the same way; L2 distance is negated to keep the
// ordering without collapsing far hits.
func similarity(metric engine.Metric, d float64) float64 {
	switch metric {
	case engine.MetricEuclid:
		return -d
	default: // cosine, dot
		return 1.0 - d
	}
}

// Search runs a KNN query via FT.SEARCH. The reported distance is
// converted to a similarity per the request's metric so that higher is
// always better. Sparse vectors have no RediSearch representation.
func (s *Store) Search(ctx context.Context, req *engine.SearchRequest) ([]engine.ScoredPoint, error) {
	if req.Sparse != nil {
		return nil, &engine.Error{
			Op:  engine.OpSearch,
			Err: fmt.Errorf("%w: sparse vector search", engine.ErrUnsupported),
		}
	}
	if len(req.Vector) == 0 {
		return nil, &engine.Error{Op: engine.OpSearch, Err: fmt.Errorf("vector is required")}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	filterStr, err := renderFilter(req.Filter)
	if err != nil {
		return nil, &engine.Error{Op: engine.OpSearch, Err: err}
	}

	k := limit + req.Offset
	knnPart := fmt.Sprintf("[KNN %d @%s%s $BLOB AS %s]", k, denseFieldPrefix, req.Field, scoreField)
	var queryStr string
	if filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	} else {
		queryStr = fmt.Sprintf("*=>%s", knnPart)
	}

	args := []string{
		s.indexName(req.Collection), queryStr,
		"SORTBY", scoreField,
		"LIMIT", strconv.Itoa(req.Offset), strconv.Itoa(limit),
		"PARAMS", "2", "BLOB", vectorToBytes(req.Vector),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &engine.Error{Op: engine.OpSearch, Err: err}
	}

	entries, err := parseEntries(raw)
	if err != nil {
		return nil, &engine.Error{Op: engine.OpSearch, Err: err}
	}

	prefix := s.keyPrefix(req.Collection)
	hits := make([]engine.ScoredPoint, 0, len(entries))
	for _, e := range entries {
		score := 0.0
		if distStr, ok := e.fields[scoreField]; ok {
			if d, err := strconv.ParseFloat(distStr, 64); err == nil {
				score = similarity(req.Metric, d)
			}
			delete(e.fields, scoreField)
		}
		if req.ScoreThreshold != nil && score < *req.ScoreThreshold {
			continue
		}
		id := engine.ParseID(strings.TrimPrefix(e.key, prefix))
		hits = append(hits, engine.ScoredPoint{
			Point: decodePoint(id, e.fields, req.WithPayload, req.WithVectors),
			Score: score,
		})
	}
	return hits, nil
}

// Scroll enumerates points matching the filter in index order. The returned
// next offset is -1 when the collection is exhausted.
func (s *Store) Scroll(ctx context.Context, req *engine.ScrollRequest) ([]engine.Point, int, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	queryStr, err := renderFilter(req.Filter)
	if err != nil {
		return nil, -1, &engine.Error{Op: engine.OpScroll, Err: err}
	}
	if queryStr == "" {
		queryStr = "*"
	}

	args := []string{
		s.indexName(req.Collection), queryStr,
		"LIMIT", strconv.Itoa(req.Offset), strconv.Itoa(limit),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, -1, &engine.Error{Op: engine.OpScroll, Err: err}
	}

	total, entries, err := parseTotalAndEntries(raw)
	if err != nil {
		return nil, -1, &engine.Error{Op: engine.OpScroll, Err: err}
	}

	prefix := s.keyPrefix(req.Collection)
	points := make([]engine.Point, 0, len(entries))
	for _, e := range entries {
		id := engine.ParseID(strings.TrimPrefix(e.key, prefix))
		points = append(points, decodePoint(id, e.fields, req.WithPayload, req.WithVectors))
	}

	next := req.Offset + len(points)
	if next >= total || len(points) == 0 {
		next = -1
	}
	return points, next, nil
}

// Count returns the number of points matching the filter.
func (s *Store) Count(ctx context.Context, collection string, f engine.Filter) (int, error) {
	queryStr, err := renderFilter(f)
	if err != nil {
		return 0, &engine.Error{Op: engine.OpCount, Err: err}
	}
	if queryStr == "" {
		queryStr = "*"
	}

	cmd := s.b().Arbitrary("FT.SEARCH").
		Args(s.indexName(collection), queryStr, "LIMIT", "0", "0", "DIALECT", "2").
		Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, &engine.Error{Op: engine.OpCount, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, &engine.Error{Op: engine.OpCount, Err: fmt.Errorf("parse count: %w", err)}
	}
	return int(total), nil
}

// --- Result parsing ---

type searchEntry struct {
	key    string
	fields map[string]string
}

func parseEntries(raw []rueidis.RedisMessage) ([]searchEntry, error) {
	_, entries, err := parseTotalAndEntries(raw)
	return entries, err
}

func parseTotalAndEntries(raw []rueidis.RedisMessage) (int, []searchEntry, error) {
	if len(raw) == 0 {
		return 0, nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return 0, nil, nil
	}

	entries := make([]searchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fieldList, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		entries = append(entries, searchEntry{key: key, fields: parseFieldPairs(fieldList)})
	}
	return int(total), entries, nil
}

func parseFieldPairs(raw []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		name, err := raw[i].ToString()
		if err != nil {
			continue
		}
		value, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter rendering ---

// renderFilter translates a native filter into FT.SEARCH query syntax.
func renderFilter(f engine.Filter) (string, error) {
	if f.IsEmpty() {
		return "", nil
	}

	var parts []string

	for _, c := range f.Must {
		part, err := renderClause(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}

	if len(f.Should) > 0 {
		alts := make([]string, 0, len(f.Should))
		for _, c := range f.Should {
			part, err := renderClause(c)
			if err != nil {
				return "", err
			}
			alts = append(alts, part)
		}
		parts = append(parts, "("+strings.Join(alts, " | ")+")")
	}

	for _, c := range f.MustNot {
		part, negated, err := renderMustNot(c)
		if err != nil {
			return "", err
		}
		if negated {
			parts = append(parts, part)
		} else {
			parts = append(parts, "-"+part)
		}
	}

	return strings.Join(parts, " "), nil
}

// renderMustNot renders one must_not clause. An except-match arrives here
// from not_in translation and is rendered as a single negated any-match;
// the result is already negated so the caller must not prepend another "-".
func renderMustNot(c engine.Clause) (string, bool, error) {
	if c.Match != nil && len(c.Match.Except) > 0 {
		part, err := renderAnyMatch(c.Key, c.Match.Except)
		if err != nil {
			return "", false, err
		}
		return "-" + part, true, nil
	}
	part, err := renderClause(c)
	if err != nil {
		return "", false, err
	}
	return part, false, nil
}

func renderClause(c engine.Clause) (string, error) {
	switch {
	case c.Group != nil:
		inner, err := renderFilter(*c.Group)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil

	case c.Match != nil:
		return renderMatch(c.Key, c.Match)

	case c.Range != nil:
		return renderRange(c.Key, c.Range), nil

	case c.IsEmpty || c.IsNull:
		// Hash storage has no null/absent distinction; both render as a
		// missing-field probe.
		return fmt.Sprintf("ismissing(@%s)", c.Key), nil

	case c.ValuesCount != nil:
		return "", fmt.Errorf("%w: values_count condition", engine.ErrUnsupported)

	default:
		return "", fmt.Errorf("empty filter clause for key %q", c.Key)
	}
}

func renderMatch(key string, m *engine.Match) (string, error) {
	switch {
	case m.Text != "":
		return fmt.Sprintf("@%s:(%s)", key, escapeQuery(m.Text)), nil
	case len(m.Any) > 0:
		return renderAnyMatch(key, m.Any)
	case len(m.Except) > 0:
		part, err := renderAnyMatch(key, m.Except)
		if err != nil {
			return "", err
		}
		return "-" + part, nil
	default:
		return renderExact(key, m.Value), nil
	}
}

func renderExact(key string, v any) string {
	if f, ok := asNumber(v); ok {
		return fmt.Sprintf("@%s:[%g %g]", key, f, f)
	}
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(encodeScalar(v)))
}

func renderAnyMatch(key string, values []any) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("empty value list for field %q", key)
	}
	if _, numeric := asNumber(values[0]); numeric {
		alts := make([]string, 0, len(values))
		for _, v := range values {
			f, ok := asNumber(v)
			if !ok {
				return "", fmt.Errorf("mixed numeric/tag values for field %q", key)
			}
			alts = append(alts, fmt.Sprintf("@%s:[%g %g]", key, f, f))
		}
		return "(" + strings.Join(alts, " | ") + ")", nil
	}
	tags := make([]string, 0, len(values))
	for _, v := range values {
		tags = append(tags, tagEscaper.Replace(encodeScalar(v)))
	}
	return fmt.Sprintf("@%s:{%s}", key, strings.Join(tags, " | ")), nil
}

func renderRange(key string, r *engine.Range) string {
	minBound := "-inf"
	maxBound := "+inf"

	if r.GT != nil {
		minBound = fmt.Sprintf("(%g", *r.GT)
	} else if r.GTE != nil {
		minBound = fmt.Sprintf("%g", *r.GTE)
	}

	if r.LT != nil {
		maxBound = fmt.Sprintf("(%g", *r.LT)
	} else if r.LTE != nil {
		maxBound = fmt.Sprintf("%g", *r.LTE)
	}

	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// --- Query escaping ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)
