package vorm

import (
	"errors"

	"github.com/vormdb/vorm/internal/translate"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("vorm: record not found")

	// ErrMissingPrimaryKey is returned by Build when a schema declares no
	// primary key field.
	ErrMissingPrimaryKey = errors.New("vorm: schema has no primary key field")

	// ErrMultiplePrimaryKeys is returned by Build when a schema declares
	// more than one primary key field.
	ErrMultiplePrimaryKeys = errors.New("vorm: schema has multiple primary key fields")

	// ErrVectorDimMismatch is returned when a vector value does not match
	// the dimension declared by the schema.
	ErrVectorDimMismatch = errors.New("vorm: vector dimension mismatch")

	// ErrInvalidWeights is returned by combined vector search when the
	// usable weights sum to zero or less.
	ErrInvalidWeights = errors.New("vorm: combined search weights must sum to a positive value")

	// ErrUnknownField is returned when a filter or record references a
	// field the schema does not declare.
	ErrUnknownField = translate.ErrUnknownField

	// ErrUnsupportedOperator is returned for filter operators the engine
	// cannot translate.
	ErrUnsupportedOperator = translate.ErrUnsupportedOperator

	// ErrInvalidFilterValue is returned when a condition value does not
	// fit its operator, such as a non-numeric range operand.
	ErrInvalidFilterValue = translate.ErrInvalidFilterValue

	// ErrFloatNotIn is returned for not_in conditions on float fields,
	// where exact-match exclusion is unreliable.
	ErrFloatNotIn = translate.ErrFloatNotIn
)
