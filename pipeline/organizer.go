package pipeline

import (
	"fmt"

	"github.com/conveyorkit/conveyor/logging"
	conveyorerrors "github.com/conveyorkit/conveyor/pkg/errors"
)

type stepKind int

const (
	stepInvalid stepKind = iota
	stepAction
	stepFunc
)

// Step is one entry of an organizer's pipeline: either a reference to an
// Action or an inline context-mutating function. The variant is chosen at
// declaration time through the constructors; the zero Step is invalid and
// causes a configuration panic when reduced.
type Step struct {
	kind   stepKind
	name   string
	action *Action
	fn     func(*Context) error
}

// ActionStep wraps an Action reference as a pipeline step.
func ActionStep(action *Action) Step {
	return Step{kind: stepAction, name: action.Name, action: action}
}

// FuncStep wraps an inline function as a pipeline step. The name is used as
// the diagnostic label.
func FuncStep(name string, fn func(*Context) error) Step {
	return Step{kind: stepFunc, name: name, fn: fn}
}

// Label returns the step's diagnostic label.
func (s Step) Label() string { return s.name }

// CallOptions carries the optional arguments of Organizer.Call.
type CallOptions struct {
	Overrides Overrides
	// Before is invoked against the context before any step runs.
	Before func(*Context)
}

// Organizer executes an ordered list of steps against one context,
// short-circuiting as soon as a step leaves the context in a failed state.
type Organizer struct {
	Name   string
	Steps  []Step
	Logger *logging.Logger
}

// Call builds a context from the input and overrides, runs the declared
// steps plus the terminal marker step under Capture (non-rethrowing), and
// marks the context Complete only when it ends in success.
func (o *Organizer) Call(input map[string]any, opts ...CallOptions) *Context {
	var opt CallOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	ctx := NewContext(input, opt.Overrides)
	ctx.setCurrentOrganizer(o.Name)
	if opt.Before != nil {
		opt.Before(ctx)
	}

	o.log(ctx).Debug("starting organizer")
	Capture(ctx, CaptureOptions{Label: o.Name}, func() error {
		return o.Reduce(ctx, o.stepsWithTerminal())
	})
	if ctx.Succeeded() {
		ctx.MarkComplete()
		o.log(ctx).Info("organizer completed")
	} else {
		o.log(ctx).Warn("organizer failed")
	}
	return ctx
}

// Reduce iterates the steps in order against the context. After each step,
// a context in failure state is snapshotted via SetLastFailedContext and the
// remaining steps are skipped; otherwise the step's label joins the
// successful-actions audit trail. A raised error propagates to the caller
// (Call captures it). An invalid step shape is a configuration defect and
// panics immediately.
func (o *Organizer) Reduce(ctx *Context, steps []Step) error {
	for _, step := range steps {
		var err error
		switch step.kind {
		case stepAction:
			err = step.action.Execute(ctx)
		case stepFunc:
			ctx.setCurrentAction(step.name)
			err = step.fn(ctx)
		default:
			panic(conveyorerrors.NewConfigurationError("organizer",
				fmt.Sprintf("invalid step in organizer %s", o.Name), nil))
		}
		if err != nil {
			return err
		}
		if ctx.Failed() {
			ctx.SetLastFailedContext(ctx, step.Label())
			o.log(ctx).WithFields(map[string]any{"step": step.Label()}).Warn("short-circuiting after failed step")
			return nil
		}
		ctx.recordSuccessfulAction(step.Label())
	}
	return nil
}

// ReduceIfSuccess runs Reduce only when the context is currently successful;
// otherwise it is a no-op.
func (o *Organizer) ReduceIfSuccess(ctx *Context, steps []Step) error {
	if ctx.Failed() {
		return nil
	}
	return o.Reduce(ctx, steps)
}

// stepsWithTerminal appends the terminal marker step. Being an ordinary
// step, it only runs when every prior step succeeded.
func (o *Organizer) stepsWithTerminal() []Step {
	steps := make([]Step, 0, len(o.Steps)+1)
	steps = append(steps, o.Steps...)
	steps = append(steps, FuncStep("all_actions_complete", func(ctx *Context) error {
		ctx.WithMeta(map[string]any{MetaAllActionsCompleteKey: true})
		return nil
	}))
	return steps
}

func (o *Organizer) log(ctx *Context) *logging.Logger {
	return o.Logger.WithRun(shortName(o.Name), ctx.ID())
}
