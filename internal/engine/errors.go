package engine

import "errors"

// ErrUnsupported signals that a backend cannot express a request.
var ErrUnsupported = errors.New("engine: not supported by backend")

// Op constants name the contract operations for error context.
const (
	OpCreateCollection = "create_collection"
	OpDropCollection   = "drop_collection"
	OpUpsert           = "upsert"
	OpRetrieve         = "retrieve"
	OpDelete           = "delete"
	OpSearch           = "search"
	OpScroll           = "scroll"
	OpCount            = "count"
)

// Error wraps an underlying backend error with the operation name.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
