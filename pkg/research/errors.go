package research

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled is returned when a cancellation request is observed at a
// checkpoint. It is a control outcome, not a failure.
var ErrCancelled = errors.New("research cancelled")

// SetupError wraps a tool server connection failure. It aborts the whole
// session.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// DiscoveryError reports that sector discovery produced no usable tickers,
// either because the discovery run failed (Err set) or because its answer
// named none. Text is what the session reports in place of a ranking.
type DiscoveryError struct {
	Sector string
	Text   string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sector discovery for %s failed: %v", e.Sector, e.Err)
	}
	return fmt.Sprintf("no tickers found in discovery output for %s", e.Sector)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// IsCancellation reports whether err ends a session as cancelled rather
// than failed.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
