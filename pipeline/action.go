package pipeline

import (
	conveyorerrors "github.com/conveyorkit/conveyor/pkg/errors"
)

// Hooks bundles the lifecycle callbacks of an Action. Hooks are carried by
// the Action value itself, so independent pipeline runs using distinct
// Action values never interfere. Nil entries are skipped.
type Hooks struct {
	BeforeExecute func(*Context)
	AfterExecute  func(*Context)
	AfterSuccess  func(*Context)
	AfterFailure  func(*Context)
}

// PerformFunc is the concrete unit of work of an Action. It may mutate the
// context's errors, params, and resources, and may return an error.
type PerformFunc func(*Context) error

// Action is a single unit of work with lifecycle hooks, operating on one
// Context per invocation.
type Action struct {
	Name    string
	Hooks   Hooks
	Perform PerformFunc
}

// NewAction builds an Action with the given name and unit of work.
func NewAction(name string, perform PerformFunc) *Action {
	return &Action{Name: name, Perform: perform}
}

// Execute runs the action against the context. A Complete context is
// terminal: Execute returns immediately and no hooks run. Otherwise the
// lifecycle is BeforeExecute, Perform, AfterExecute (unconditionally), then
// AfterSuccess or AfterFailure depending on the outcome. A Perform error
// runs AfterFailure and is returned to the caller unchanged; hooks observe,
// they do not suppress.
func (a *Action) Execute(ctx *Context) error {
	if a.Perform == nil {
		panic(conveyorerrors.NewConfigurationError("action", "action "+a.Name+" has no perform function", nil))
	}
	if ctx.Complete() {
		return nil
	}

	ctx.invokedAction = a
	ctx.setCurrentAction(a.Name)

	if a.Hooks.BeforeExecute != nil {
		a.Hooks.BeforeExecute(ctx)
	}

	err := a.Perform(ctx)

	if a.Hooks.AfterExecute != nil {
		a.Hooks.AfterExecute(ctx)
	}

	if err != nil {
		if a.Hooks.AfterFailure != nil {
			a.Hooks.AfterFailure(ctx)
		}
		return err
	}

	if ctx.Succeeded() {
		if a.Hooks.AfterSuccess != nil {
			a.Hooks.AfterSuccess(ctx)
		}
	} else if a.Hooks.AfterFailure != nil {
		a.Hooks.AfterFailure(ctx)
	}
	return nil
}

// Run builds a fresh context from the seed input and executes the action
// against it, returning the mutated context alongside any Perform error.
func (a *Action) Run(input map[string]any, overrides ...Overrides) (*Context, error) {
	ctx := NewContext(input, overrides...)
	err := a.Execute(ctx)
	return ctx, err
}
