package proxy

import (
	"errors"
	"fmt"
)

// Stage identifies where in the fetch pipeline a failure originated. It
// is preserved across recovery and surfaced to the boundary layer.
type Stage string

const (
	// StageInit covers engine/driver start failures.
	StageInit Stage = "init"
	// StageUpstreamPost covers failures of the hybrid strategy's
	// out-of-band HTTP call.
	StageUpstreamPost Stage = "upstream_post"
	// StageNavigation covers unreachable targets, DNS and engine-level
	// timeouts.
	StageNavigation Stage = "navigation"
	// StageFormInteraction covers form, field or submit elements that
	// could not be located or driven within the wait budget.
	StageFormInteraction Stage = "form_interaction"
	// StageReset covers clear-state failures. These are recovered
	// internally by a full restart and never surface as their own error;
	// the constant exists for logging and metrics.
	StageReset Stage = "reset"
)

// FetchError is the single failure shape the fetch pipeline produces.
type FetchError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchErrorf(stage Stage, err error, format string, args ...any) *FetchError {
	return &FetchError{
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// StageOf extracts the originating stage from an error chain. Errors that
// did not come out of the fetch pipeline report StageNavigation, the
// broadest bucket.
func StageOf(err error) Stage {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return StageNavigation
}
