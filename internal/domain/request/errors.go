package request

import (
	"errors"
	"fmt"

	"github.com/okian/agropredict/internal/domain/model"
)

// ErrValidation is the sentinel every ValidationError unwraps to.
var ErrValidation = errors.New("validation failed")

// ValidationError describes why an input record was rejected.
type ValidationError struct {
	Domain model.Domain
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Domain, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Domain, e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }
