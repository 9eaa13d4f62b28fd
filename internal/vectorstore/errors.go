// Package vectorstore provides the storage-agnostic vector index abstraction:
// a capability interface, a shared validation/instrumentation layer, a
// relational (pgvector) backend, an embedded in-memory backend, and
// loud-failing placeholders for backends that are not implemented.
package vectorstore

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by every operation invoked before Initialize.
var ErrNotInitialized = errors.New("vector store not initialized")

// ErrNotImplemented is returned by placeholder backends. It must never be
// masked as an empty success.
var ErrNotImplemented = errors.New("vector store backend not implemented")

// ErrDestructiveDisabled is returned by Clear unless destructive operations
// were explicitly allowed at construction time.
var ErrDestructiveDisabled = errors.New("destructive operations not allowed")

// ErrValidation marks input errors: dimension mismatches, empty vectors,
// malformed filters. Validation errors are never retried.
var ErrValidation = errors.New("validation failed")

// validationf wraps ErrValidation with a formatted reason.
func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ProviderError wraps a backend failure (network, SQL, index) with the
// provider and operation it came from.
type ProviderError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// providerErr wraps err unless it is nil or already part of the local taxonomy.
func providerErr(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrNotImplemented) || errors.Is(err, ErrDestructiveDisabled) {
		return err
	}
	return &ProviderError{Provider: provider, Operation: operation, Err: err}
}
