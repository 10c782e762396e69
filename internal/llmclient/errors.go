// File: internal/llmclient/errors.go
package llmclient

import (
	"errors"
	"fmt"
)

// ModelCallError reports a failed model backend call: transport failure,
// timeout, upstream rejection, or a response that could not be parsed.
// Callers distinguish it from domain-level failures with errors.As.
type ModelCallError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed (%s/%s): %v", e.Provider, e.Model, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// NewModelCallError wraps err with backend identity for upstream classification.
func NewModelCallError(provider, model string, err error) *ModelCallError {
	return &ModelCallError{Provider: provider, Model: model, Err: err}
}

// IsModelCallError reports whether err (or anything it wraps) is a ModelCallError.
func IsModelCallError(err error) bool {
	var mce *ModelCallError
	return errors.As(err, &mce)
}
