package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	conveyorerrors "github.com/conveyorkit/conveyor/pkg/errors"
)

func TestOrchestratorDelegatePreStepFeedsMainPhase(t *testing.T) {
	lookup := &Organizer{
		Name: "lookup_account",
		Steps: []Step{
			FuncStep("fetch", func(ctx *Context) error {
				ctx.WithParams(map[string]any{"account_id": 55})
				return nil
			}),
		},
	}

	var mainSaw any
	orch := &Orchestrator{
		Organizer: Organizer{
			Name: "billing_run",
			Steps: []Step{
				FuncStep("charge", func(ctx *Context) error {
					mainSaw = ctx.Params()["account_id"]
					return nil
				}),
			},
		},
		PreSteps: []OrganizerStep{RunnerStep(lookup)},
	}

	root := orch.Call(map[string]any{"customer": "acme"}, OrchestrateOptions{
		Observer: func(sub, root *Context) {
			// Merge by value; the sub-context map is never aliased.
			root.WithParams(copyMap(sub.Params()))
		},
	})

	require.True(t, root.Complete())
	require.Equal(t, 55, mainSaw)
}

func TestOrchestratorDelegateFunctionPreStep(t *testing.T) {
	var received map[string]any
	orch := &Orchestrator{
		Organizer: Organizer{Name: "wrapper"},
		PreSteps: []OrganizerStep{
			DelegateStep("produce", func(input map[string]any) *Context {
				received = input
				return NewContext(input)
			}),
		},
	}

	input := map[string]any{"k": "v"}
	root := orch.Call(input)

	require.True(t, root.Complete())
	require.Equal(t, "v", received["k"])
	// The pre-step receives a copy of the orchestrator input.
	received["k"] = "mutated"
	require.Equal(t, "v", input["k"])
}

func TestOrchestratorUnitPreStepFailureStopsMainPhase(t *testing.T) {
	mainRan := false
	orch := &Orchestrator{
		Organizer: Organizer{
			Name: "provisioning",
			Steps: []Step{
				FuncStep("main", func(ctx *Context) error {
					mainRan = true
					return nil
				}),
			},
		},
		PreSteps: []OrganizerStep{
			UnitStep(NewAction("authorize", func(ctx *Context) error {
				ctx.AddError("token", "is invalid")
				return nil
			})),
		},
	}

	root := orch.Call(nil)

	require.False(t, mainRan)
	require.True(t, root.Failed())
	require.False(t, root.Complete())
	require.Equal(t, []string{"is invalid"}, root.Errors()["token"])
	require.Equal(t, "authorize", root.LastFailedContext()["label"])
}

func TestOrchestratorAbortedPreStepStopsMainPhase(t *testing.T) {
	mainRan := false
	orch := &Orchestrator{
		Organizer: Organizer{
			Name: "gated",
			Steps: []Step{
				FuncStep("main", func(ctx *Context) error {
					mainRan = true
					return nil
				}),
			},
		},
		PreSteps: []OrganizerStep{
			DelegateStep("halt", func(input map[string]any) *Context {
				sub := NewContext(input)
				sub.Abort()
				return sub
			}),
		},
	}

	root := orch.Call(nil)

	// A manual abort carries no errors but must still short-circuit the run.
	require.False(t, mainRan)
	require.True(t, root.Aborted())
	require.True(t, root.Failed())
	require.False(t, root.Complete())
	require.Empty(t, root.Errors())
	require.Equal(t, "halt", root.LastFailedContext()["label"])
}

func TestOrchestratorSubContextErrorsAreCopied(t *testing.T) {
	orch := &Orchestrator{
		Organizer: Organizer{Name: "isolating"},
		PreSteps: []OrganizerStep{
			UnitStep(NewAction("fail", func(ctx *Context) error {
				ctx.AddError("field", "bad")
				return nil
			})),
		},
	}

	var sub *Context
	root := orch.Call(nil, OrchestrateOptions{Observer: func(s, r *Context) { sub = s }})

	require.NotNil(t, sub)
	require.NotSame(t, sub, root)
	root.Errors()["field"][0] = "changed"
	require.Equal(t, "bad", sub.Errors()["field"][0])
}

func TestOrchestratorInvokesLateBoundMutator(t *testing.T) {
	mutated := false
	orch := &Orchestrator{Organizer: Organizer{Name: "mutable"}}

	root := orch.Call(map[string]any{
		MutatorKey: func(ctx *Context) {
			mutated = true
			ctx.WithParams(map[string]any{"late": true})
		},
	})

	require.True(t, mutated)
	require.Equal(t, true, root.Params()["late"])
}

func TestOrchestratorCapturesDelegateError(t *testing.T) {
	orch := &Orchestrator{
		Organizer: Organizer{Name: "brittle"},
		PreSteps: []OrganizerStep{
			UnitStep(NewAction("blow_up", func(ctx *Context) error {
				return errors.New("downstream unavailable")
			})),
		},
	}

	root := orch.Call(nil)

	require.True(t, root.Failed())
	require.Equal(t, []string{GenericFailureMessage}, root.Errors()[ErrorKeyBase])
	require.Equal(t, "downstream unavailable", root.ErrorInfo()["message"])
}

func TestOrchestratorInvalidPreStepPanics(t *testing.T) {
	orch := &Orchestrator{
		Organizer: Organizer{Name: "broken"},
		PreSteps:  []OrganizerStep{{}},
	}

	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*conveyorerrors.ConfigurationError)
		require.True(t, ok, "expected a configuration error, got %T", r)
	}()
	orch.Call(nil)
}

func TestOrganizerStepClassify(t *testing.T) {
	require.Equal(t, dispatchDelegate, DelegateStep("f", func(map[string]any) *Context { return nil }).classify())
	require.Equal(t, dispatchDelegate, RunnerStep(&Organizer{Name: "o"}).classify())
	require.Equal(t, dispatchExecute, UnitStep(NewAction("a", func(*Context) error { return nil })).classify())
}
