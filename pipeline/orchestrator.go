package pipeline

import (
	"fmt"

	conveyorerrors "github.com/conveyorkit/conveyor/pkg/errors"
)

type organizerStepKind int

const (
	organizerStepInvalid organizerStepKind = iota
	organizerStepDelegate
	organizerStepRunner
	organizerStepAction
)

// dispatchMode is the result of classifying a pre-phase step.
type dispatchMode string

const (
	dispatchDelegate dispatchMode = "delegate"
	dispatchExecute  dispatchMode = "execute"
)

// OrganizerStep is one entry of an orchestrator's pre-phase: a
// context-producing function taking the orchestrator input, a nested
// Organizer delegated to, or an Action run against a fresh sub-context
// seeded from the input. The zero OrganizerStep is invalid and causes a
// configuration panic.
type OrganizerStep struct {
	kind     organizerStepKind
	name     string
	delegate func(input map[string]any) *Context
	runner   *Organizer
	action   *Action
}

// DelegateStep wraps a context-producing function as a pre-phase step.
func DelegateStep(name string, fn func(input map[string]any) *Context) OrganizerStep {
	return OrganizerStep{kind: organizerStepDelegate, name: name, delegate: fn}
}

// RunnerStep wraps a nested Organizer as a pre-phase step.
func RunnerStep(runner *Organizer) OrganizerStep {
	return OrganizerStep{kind: organizerStepRunner, name: runner.Name, runner: runner}
}

// UnitStep wraps an Action as a pre-phase step. The action runs against a
// fresh sub-context seeded from the orchestrator input.
func UnitStep(action *Action) OrganizerStep {
	return OrganizerStep{kind: organizerStepAction, name: action.Name, action: action}
}

// Label returns the pre-phase step's diagnostic label.
func (s OrganizerStep) Label() string { return s.name }

// classify determines the dispatch mode of a pre-phase step: delegate for
// functions and nested runners, execute for unit-of-work references. An
// unrecognized shape is a configuration defect.
func (s OrganizerStep) classify() dispatchMode {
	switch s.kind {
	case organizerStepDelegate, organizerStepRunner:
		return dispatchDelegate
	case organizerStepAction:
		return dispatchExecute
	default:
		panic(conveyorerrors.NewConfigurationError("orchestrator",
			fmt.Sprintf("invalid organizer step %q", s.name), nil))
	}
}

// OrchestrateOptions carries the optional arguments of Orchestrator.Call.
type OrchestrateOptions struct {
	Overrides Overrides
	// Observer is invoked after each pre-phase step with the step's
	// sub-context and the root context. Copying selected fields from the
	// sub-context into the root is the observer's job; sub-contexts are
	// owned values and must never be aliased into the root.
	Observer func(sub, root *Context)
}

// Orchestrator layers a pre-phase of organizer steps, each producing its own
// sub-context, on top of an Organizer's main phase run against the root
// context.
type Orchestrator struct {
	Organizer
	PreSteps []OrganizerStep
}

// Call builds the root context, executes every pre-phase step, invokes the
// reserved late-bound mutator carried in the input (if any), then runs the
// main phase. The whole two-phase sequence runs under Capture
// (non-rethrowing); the root is marked Complete only on final success.
func (o *Orchestrator) Call(input map[string]any, opts ...OrchestrateOptions) *Context {
	var opt OrchestrateOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	root := NewContext(input, opt.Overrides)
	root.setCurrentOrganizer(o.Name)

	o.log(root).Debug("starting orchestrator")
	Capture(root, CaptureOptions{Label: o.Name}, func() error {
		for _, step := range o.PreSteps {
			sub, err := o.runPreStep(step, input)
			if err != nil {
				return err
			}
			if sub != nil {
				if sub.Failed() {
					// Copy by value; the sub-context stays independently
					// owned. Abort is carried explicitly so an aborted but
					// error-free sub-context still stops the run.
					root.WithErrors(copyErrors(sub.Errors()))
					root.Abort()
					root.SetLastFailedContext(sub, step.Label())
				}
				if opt.Observer != nil {
					opt.Observer(sub, root)
				}
			}
			if root.Failed() {
				return nil
			}
		}
		if mutate, ok := root.input[MutatorKey].(func(*Context)); ok {
			mutate(root)
		}
		return o.Reduce(root, o.stepsWithTerminal())
	})
	if root.Succeeded() {
		root.MarkComplete()
		o.log(root).Info("orchestrator completed")
	} else {
		o.log(root).Warn("orchestrator failed")
	}
	return root
}

// runPreStep dispatches one pre-phase step and returns the sub-context it
// produced. The input is copied per step so sub-contexts never share the
// orchestrator's seed map.
func (o *Orchestrator) runPreStep(step OrganizerStep, input map[string]any) (*Context, error) {
	seed := copyMap(input)
	switch step.classify() {
	case dispatchDelegate:
		if step.runner != nil {
			return step.runner.Call(seed), nil
		}
		return step.delegate(seed), nil
	default: // dispatchExecute
		sub := NewContext(seed)
		err := step.action.Execute(sub)
		return sub, err
	}
}
