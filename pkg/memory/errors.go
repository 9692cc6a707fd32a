package memory

import (
	"errors"
	"fmt"
)

// ErrNoTransaction is returned when committing without an active transaction.
var ErrNoTransaction = errors.New("no transaction in progress")

// ErrTransactionEnded is returned by BeginTransaction when the transaction
// was rolled back or closed while its snapshot was being taken.
var ErrTransactionEnded = errors.New("transaction ended before its snapshot was recorded")

// DimensionMismatchError reports an embedding of the wrong length.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// InvalidValueError reports a non-finite or non-numeric embedding element.
type InvalidValueError struct {
	Index int
	Value any
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid embedding value at index %d: %v", e.Index, e.Value)
}

// QueryExecutionError wraps a failed request to a SPARQL endpoint. StatusCode
// is zero when the request never produced a response.
type QueryExecutionError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *QueryExecutionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("SPARQL request to %s failed: %v", e.Endpoint, e.Err)
	}

	if e.Err != nil {
		return fmt.Sprintf("SPARQL request to %s returned status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("SPARQL request to %s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// TransactionConflictError is returned by BeginTransaction when a
// transaction is already active on the store.
type TransactionConflictError struct{}

func (e *TransactionConflictError) Error() string {
	return "transaction already in progress"
}

// PersistenceError wraps a failed write of the interaction history.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
