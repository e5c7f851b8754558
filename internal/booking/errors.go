package booking

import (
	"errors"
	"fmt"
)

// ErrInsufficientAvailability matches any *InsufficientError.
var ErrInsufficientAvailability = errors.New("booking: insufficient availability")

// InsufficientError reports a request for more tickets than remain.
type InsufficientError struct {
	Requested int
	Remaining int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("requested %d tickets but only %d remain", e.Requested, e.Remaining)
}

func (e *InsufficientError) Is(target error) bool { return target == ErrInsufficientAvailability }
