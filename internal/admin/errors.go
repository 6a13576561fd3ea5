package admin

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned before any state is read when the
// invoking principal lacks the tenant-management capability.
var ErrPermissionDenied = errors.New("tenant-management capability required")

// InputError reports invalid command input. No state was mutated.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func inputErr(field, format string, args ...any) error {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err should be surfaced to the command
// caller as their own mistake rather than an internal failure.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
