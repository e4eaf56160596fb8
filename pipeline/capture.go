package pipeline

import (
	"fmt"

	conveyorerrors "github.com/conveyorkit/conveyor/pkg/errors"
)

// ErrorKeyBase is the field under which Capture files its generic
// user-facing message.
const ErrorKeyBase = "base"

// GenericFailureMessage is appended under ErrorKeyBase whenever an
// unexpected error is captured.
const GenericFailureMessage = "An unexpected error occurred and the operation was aborted."

// CaptureOptions controls how Capture reports an unexpected error.
type CaptureOptions struct {
	// Rethrow returns the original error to the caller after recording it.
	// The default is to swallow it once the context reflects the failure.
	Rethrow bool
	// Label overrides the failure-snapshot label; empty means the context's
	// current action.
	Label string
}

// Capture runs fn and converts any unexpected failure, returned error or
// panic alike, into structured context failure: the error is recorded under
// internal diagnostics, a generic message is filed under ErrorKeyBase, the
// failed state is snapshotted, and the context is aborted. Panics carrying a
// *ConfigurationError are re-panicked: pipeline-definition defects are never
// converted into context failure.
func Capture(ctx *Context, opts CaptureOptions, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*conveyorerrors.ConfigurationError); ok {
				panic(r)
			}
			err = CaptureRaised(ctx, panicError(r), opts)
		}
	}()

	if runErr := fn(); runErr != nil {
		return CaptureRaised(ctx, runErr, opts)
	}
	return nil
}

// CaptureRaised records an already-raised error against the context. It
// returns the original error when Rethrow is set, nil otherwise.
func CaptureRaised(ctx *Context, raised error, opts CaptureOptions) error {
	if raised == nil {
		return nil
	}
	ctx.RecordRaisedError(raised)
	ctx.WithErrors(map[string][]string{ErrorKeyBase: {GenericFailureMessage}})
	ctx.SetLastFailedContext(ctx, opts.Label)
	ctx.Abort()
	if opts.Rethrow {
		return raised
	}
	return nil
}

// panicError types a recovered panic value as an ExecutionError so callers
// can match on it with errors.As.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return conveyorerrors.NewExecutionError("", err)
	}
	return conveyorerrors.NewExecutionError("", fmt.Errorf("panic: %v", r))
}
