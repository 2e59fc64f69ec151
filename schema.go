package vorm

import (
	"context"
	"fmt"

	"github.com/vormdb/vorm/filter"
	"github.com/vormdb/vorm/internal/engine"
	"github.com/vormdb/vorm/internal/translate"
)

// Kind is the declared type of a payload field.
type Kind int

const (
	String Kind = iota
	Integer
	Float
	Boolean
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	default:
		return "string"
	}
}

func (k Kind) engineKind() engine.FieldKind {
	switch k {
	case Integer:
		return engine.FieldInteger
	case Float:
		return engine.FieldFloat
	case Boolean:
		return engine.FieldBoolean
	default:
		return engine.FieldString
	}
}

// Metric is a dense vector distance function.
type Metric int

const (
	Cosine Metric = iota
	Euclid
	Dot
)

func (m Metric) engineMetric() engine.Metric {
	switch m {
	case Euclid:
		return engine.MetricEuclid
	case Dot:
		return engine.MetricDot
	default:
		return engine.MetricCosine
	}
}

// FieldDescriptor describes one payload field of a schema.
type FieldDescriptor struct {
	Name     string
	Kind     Kind
	Array    bool
	PK       bool
	Nullable bool
	Default  any
	FullText bool
}

// VectorDescriptor describes one dense vector field of a schema.
type VectorDescriptor struct {
	Name   string
	Dim    int
	Metric Metric
}

// FieldOption tweaks a field declaration.
type FieldOption func(*FieldDescriptor)

// PrimaryKey marks the field as the schema's primary key.
func PrimaryKey() FieldOption {
	return func(f *FieldDescriptor) { f.PK = true }
}

// NotNullable makes the field required on insert.
func NotNullable() FieldOption {
	return func(f *FieldDescriptor) { f.Nullable = false }
}

// WithDefault sets a value applied on insert when the field is unset.
func WithDefault(v any) FieldOption {
	return func(f *FieldDescriptor) { f.Default = v }
}

// FullText enables full-text indexing for a string field, making it
// searchable with filter.F(name).TextMatch.
func FullText() FieldOption {
	return func(f *FieldDescriptor) { f.FullText = true }
}

// Schema is an immutable description of a collection: its payload fields,
// vector fields and primary key. Build one with NewSchema.
type Schema struct {
	name    string
	fields  []FieldDescriptor // declaration order
	vectors []VectorDescriptor
	sparse  []string

	pkName  string
	byName  map[string]*FieldDescriptor
	vecDims map[string]VectorDescriptor
	kinds   map[string]translate.FieldInfo
}

// SchemaBuilder accumulates field declarations for a Schema.
type SchemaBuilder struct {
	name    string
	fields  []FieldDescriptor
	vectors []VectorDescriptor
	sparse  []string
}

// NewSchema starts a schema for the named collection.
func NewSchema(name string) *SchemaBuilder {
	return &SchemaBuilder{name: name}
}

// Field declares a scalar payload field. Fields are nullable unless the
// NotNullable option is given.
func (b *SchemaBuilder) Field(name string, kind Kind, opts ...FieldOption) *SchemaBuilder {
	fd := FieldDescriptor{Name: name, Kind: kind, Nullable: true}
	for _, opt := range opts {
		opt(&fd)
	}
	b.fields = append(b.fields, fd)
	return b
}

// Array declares an array payload field holding values of the given kind.
func (b *SchemaBuilder) Array(name string, kind Kind, opts ...FieldOption) *SchemaBuilder {
	fd := FieldDescriptor{Name: name, Kind: kind, Array: true, Nullable: true}
	for _, opt := range opts {
		opt(&fd)
	}
	b.fields = append(b.fields, fd)
	return b
}

// Vector declares a named dense vector field.
func (b *SchemaBuilder) Vector(name string, dim int, metric Metric) *SchemaBuilder {
	b.vectors = append(b.vectors, VectorDescriptor{Name: name, Dim: dim, Metric: metric})
	return b
}

// SparseVector declares a named sparse vector field.
func (b *SchemaBuilder) SparseVector(name string) *SchemaBuilder {
	b.sparse = append(b.sparse, name)
	return b
}

// Extend copies every declaration of the parent schema into the builder.
// Later declarations with the same name override the inherited ones, which
// lets a child schema redefine an inherited field.
func (b *SchemaBuilder) Extend(parent *Schema) *SchemaBuilder {
	b.fields = append(b.fields, parent.fields...)
	b.vectors = append(b.vectors, parent.vectors...)
	b.sparse = append(b.sparse, parent.sparse...)
	return b
}

// Build validates the declarations and produces the Schema. Exactly one
// primary key field is required.
func (b *SchemaBuilder) Build() (*Schema, error) {
	if b.name == "" {
		return nil, fmt.Errorf("vorm: schema requires a collection name")
	}

	s := &Schema{
		name:    b.name,
		byName:  make(map[string]*FieldDescriptor),
		vecDims: make(map[string]VectorDescriptor),
		kinds:   make(map[string]translate.FieldInfo),
	}

	// Later declarations win so Extend-then-redeclare overrides.
	ordered := make([]string, 0, len(b.fields))
	byName := make(map[string]FieldDescriptor, len(b.fields))
	for _, fd := range b.fields {
		if _, seen := byName[fd.Name]; !seen {
			ordered = append(ordered, fd.Name)
		}
		byName[fd.Name] = fd
	}

	for _, name := range ordered {
		fd := byName[name]
		if fd.PK {
			if s.pkName != "" {
				return nil, fmt.Errorf("%w: %s and %s in %s",
					ErrMultiplePrimaryKeys, s.pkName, fd.Name, b.name)
			}
			s.pkName = fd.Name
		}
		s.fields = append(s.fields, fd)
		s.byName[fd.Name] = &s.fields[len(s.fields)-1]
		s.kinds[fd.Name] = translate.FieldInfo{Kind: fd.Kind.engineKind(), Array: fd.Array}
	}
	if s.pkName == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingPrimaryKey, b.name)
	}

	seenVec := make(map[string]bool)
	for _, vd := range b.vectors {
		if vd.Dim <= 0 {
			return nil, fmt.Errorf("vorm: vector %s.%s requires a positive dimension", b.name, vd.Name)
		}
		if !seenVec[vd.Name] {
			seenVec[vd.Name] = true
			s.vectors = append(s.vectors, vd)
		}
		s.vecDims[vd.Name] = vd
	}
	for i, vd := range s.vectors {
		s.vectors[i] = s.vecDims[vd.Name]
	}

	seenSparse := make(map[string]bool)
	for _, name := range b.sparse {
		if !seenSparse[name] {
			seenSparse[name] = true
			s.sparse = append(s.sparse, name)
		}
	}

	return s, nil
}

// MustBuild is Build that panics on error, for package-level schema vars.
func (b *SchemaBuilder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the collection name.
func (s *Schema) Name() string { return s.name }

// PK returns the primary key field name.
func (s *Schema) PK() string { return s.pkName }

// Fields returns the payload field descriptors in declaration order.
func (s *Schema) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(s.fields))
	copy(out, s.fields)
	return out
}

// Vectors returns the dense vector descriptors.
func (s *Schema) Vectors() []VectorDescriptor {
	out := make([]VectorDescriptor, len(s.vectors))
	copy(out, s.vectors)
	return out
}

// F returns a filter field handle for a declared field name.
func (s *Schema) F(name string) filter.Field {
	return filter.F(name)
}

func (s *Schema) field(name string) (*FieldDescriptor, bool) {
	fd, ok := s.byName[name]
	return fd, ok
}

func (s *Schema) vector(name string) (VectorDescriptor, bool) {
	vd, ok := s.vecDims[name]
	return vd, ok
}

func (s *Schema) hasSparse(name string) bool {
	for _, n := range s.sparse {
		if n == name {
			return true
		}
	}
	return false
}

func (s *Schema) fieldKinds() map[string]translate.FieldInfo { return s.kinds }

func (s *Schema) collectionDef() engine.CollectionDef {
	def := engine.CollectionDef{Name: s.name}
	for _, fd := range s.fields {
		def.Payload = append(def.Payload, engine.PayloadField{
			Name:     fd.Name,
			Kind:     fd.Kind.engineKind(),
			Array:    fd.Array,
			FullText: fd.FullText,
		})
	}
	for _, vd := range s.vectors {
		def.Dense = append(def.Dense, engine.DenseVectorDef{
			Name:   vd.Name,
			Dim:    vd.Dim,
			Metric: vd.Metric.engineMetric(),
		})
	}
	def.Sparse = append(def.Sparse, s.sparse...)
	return def
}

// Registry tracks schemas so collections can be created and dropped as a
// group.
type Registry struct {
	schemas []*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds schemas to the registry.
func (r *Registry) Register(schemas ...*Schema) {
	r.schemas = append(r.schemas, schemas...)
}

// Schemas returns the registered schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// CreateAll creates a collection for every registered schema.
func (r *Registry) CreateAll(ctx context.Context, e *Engine) error {
	for _, s := range r.schemas {
		if err := e.CreateCollection(ctx, s); err != nil {
			return fmt.Errorf("create collection %s: %w", s.name, err)
		}
	}
	return nil
}

// DropAll drops the collection of every registered schema.
func (r *Registry) DropAll(ctx context.Context, e *Engine) error {
	for _, s := range r.schemas {
		if err := e.DropCollection(ctx, s); err != nil {
			return fmt.Errorf("drop collection %s: %w", s.name, err)
		}
	}
	return nil
}
