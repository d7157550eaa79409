package contact

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError lists every rule a submission violated. It is user-fixable.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ", ")
}

// RateLimitError reports that the origin used up its submission allowance.
type RateLimitError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d submissions per %s exceeded, retry after %s",
		e.Limit, e.Window, e.RetryAfter.Round(time.Second))
}
