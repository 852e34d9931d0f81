package breaker

import "errors"

// ErrOpen is returned by Execute when the breaker denies admission.
var ErrOpen = errors.New("circuit breaker is open")
