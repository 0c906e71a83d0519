package reconcile

import "errors"

// ErrValidation marks malformed input detected at the boundary, before any
// remote state is read or written. Callers test for it with errors.Is.
var ErrValidation = errors.New("validation error")
