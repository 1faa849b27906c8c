package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed signals that the backing index service is unreachable
	// or rejected the credentials. Fatal at startup after retries are exhausted.
	ErrConnectionFailed = errors.New("vector backend connection failed")
	// ErrSchemaFailed signals that collection definition or index creation failed.
	ErrSchemaFailed = errors.New("collection schema setup failed")
	// ErrDimensionMismatch signals a caller-supplied vector of the wrong length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProvider signals an embedding inference failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrNotFound signals a missing collection.
	ErrNotFound = errors.New("collection not found")
	// ErrCollectionExists signals a duplicate collection on create.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrInvalidQuery signals a malformed search request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNotServing signals an operation issued before startup completed.
	ErrNotServing = errors.New("service is not serving")
)

// DimensionMismatchError wraps ErrDimensionMismatch with the offending field
// and the expected vs actual vector lengths.
type DimensionMismatchError struct {
	Field string
	Want  int
	Got   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: field %q: want %d, got %d", ErrDimensionMismatch.Error(), e.Field, e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error for a vector field.
func NewDimensionMismatch(field string, want, got int) error {
	return &DimensionMismatchError{Field: field, Want: want, Got: got}
}
