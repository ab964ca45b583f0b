package engine

import (
	"fmt"
	"time"
)

// QuotaError reports a call skipped because its service quota is spent.
type QuotaError struct {
	Service string
	Wait    time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exhausted, retry in %s", e.Service, e.Wait.Round(time.Second))
}
