// Package engine defines the contract between the mapping layer and the
// external vector-search engine: point and vector types, the native filter
// grammar, and the Store interface every backend implements.
package engine

import "strconv"

// ArraySeparator joins array payload elements in flat storage backends.
// Backends that store payload natively may ignore it.
const ArraySeparator = "\x1f"

// PointID is an engine-native point identifier: either an unsigned integer
// or a UUID-formatted string. The zero value is the empty text id.
type PointID struct {
	text  string
	num   uint64
	isNum bool
}

// NumID creates a numeric point identifier.
func NumID(n uint64) PointID { return PointID{num: n, isNum: true} }

// TextID creates a UUID-string point identifier.
func TextID(s string) PointID { return PointID{text: s} }

// IsNum reports whether the identifier is numeric.
func (p PointID) IsNum() bool { return p.isNum }

// Num returns the numeric form; valid only when IsNum is true.
func (p PointID) Num() uint64 { return p.num }

// String returns the wire form of the identifier.
func (p PointID) String() string {
	if p.isNum {
		return strconv.FormatUint(p.num, 10)
	}
	return p.text
}

// IsZero reports whether the identifier is unset.
func (p PointID) IsZero() bool { return !p.isNum && p.text == "" }

// ParseID reconstructs a PointID from its wire form.
func ParseID(s string) PointID {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return NumID(n)
	}
	return TextID(s)
}

// SparseVector is an index/value pair list for a mostly-zero vector.
type SparseVector struct {
	Indices []int
	Values  []float32
}

// Point is one engine record: identifier, scalar payload, named vectors.
// Flat backends return payload values as strings; the mapping layer casts
// them by declared field kind.
type Point struct {
	ID      PointID
	Payload map[string]any
	Dense   map[string][]float32
	Sparse  map[string]SparseVector
}

// ScoredPoint is a Point with a similarity score from a search.
type ScoredPoint struct {
	Point
	Score float64
}

// FieldKind is the declared scalar kind of a payload field.
type FieldKind string

const (
	FieldString  FieldKind = "string"
	FieldInteger FieldKind = "integer"
	FieldFloat   FieldKind = "float"
	FieldBoolean FieldKind = "boolean"
)

// Metric is a dense-vector distance metric.
type Metric string

const (
	MetricCosine Metric = "Cosine"
	MetricEuclid Metric = "Euclid"
	MetricDot    Metric = "Dot"
)

// PayloadField describes one scalar payload attribute for index creation.
type PayloadField struct {
	Name     string
	Kind     FieldKind
	Array    bool
	FullText bool
}

// DenseVectorDef describes one named dense vector space.
type DenseVectorDef struct {
	Name   string
	Dim    int
	Metric Metric
}

// CollectionDef is the provisioning schema for one collection.
type CollectionDef struct {
	Name    string
	Payload []PayloadField
	Dense   []DenseVectorDef
	Sparse  []string
}
