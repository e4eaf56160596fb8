package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	conveyorerrors "github.com/conveyorkit/conveyor/pkg/errors"
)

func TestOrganizerCallRunsAllSteps(t *testing.T) {
	org := &Organizer{
		Name: "register_user",
		Steps: []Step{
			FuncStep("normalize", func(ctx *Context) error {
				ctx.WithParams(map[string]any{"email": "ada@example.com"})
				return nil
			}),
			ActionStep(NewAction("persist", func(ctx *Context) error {
				ctx.WithResource("db.user_id", 101)
				return nil
			})),
		},
	}

	ctx := org.Call(map[string]any{"email": "ADA@example.com"})

	require.True(t, ctx.Complete())
	require.True(t, ctx.Succeeded())
	require.Equal(t, true, ctx.Meta()[MetaAllActionsCompleteKey])
	require.Equal(t, "register_user", ctx.CurrentOrganizer())
	require.Equal(t, []string{"normalize", "persist", "all_actions_complete"}, ctx.SuccessfulActions())
}

func TestOrganizerShortCircuitsOnError(t *testing.T) {
	metaStepRan := false
	org := &Organizer{
		Name: "checkout",
		Steps: []Step{
			FuncStep("sets_error", func(ctx *Context) error {
				ctx.AddError("card", "is expired")
				return nil
			}),
			FuncStep("sets_meta", func(ctx *Context) error {
				metaStepRan = true
				ctx.WithMeta(map[string]any{"charged": true})
				return nil
			}),
		},
	}

	ctx := org.Call(nil)

	require.False(t, metaStepRan)
	require.False(t, ctx.Succeeded())
	require.False(t, ctx.Complete())
	require.Equal(t, []string{"is expired"}, ctx.Errors()["card"])
	require.NotContains(t, ctx.Meta(), "charged")
	require.NotContains(t, ctx.Meta(), MetaAllActionsCompleteKey)
	require.NotNil(t, ctx.LastFailedContext())
	require.Equal(t, "sets_error", ctx.LastFailedContext()["label"])
	require.Empty(t, ctx.SuccessfulActions())
}

func TestOrganizerCapturesRaisedError(t *testing.T) {
	org := &Organizer{
		Name: "fragile",
		Steps: []Step{
			FuncStep("throws", func(ctx *Context) error {
				return errors.New("connection reset")
			}),
		},
	}

	ctx := org.Call(nil)

	require.True(t, ctx.Failed())
	require.False(t, ctx.Complete())
	require.Equal(t, []string{GenericFailureMessage}, ctx.Errors()[ErrorKeyBase])
	require.NotNil(t, ctx.LastFailedContext())
	require.Equal(t, "connection reset", ctx.ErrorInfo()["message"])
}

func TestOrganizerCapturesPanic(t *testing.T) {
	org := &Organizer{
		Name: "panicky",
		Steps: []Step{
			FuncStep("explodes", func(ctx *Context) error {
				panic("index out of range")
			}),
		},
	}

	var ctx *Context
	require.NotPanics(t, func() { ctx = org.Call(nil) })
	require.True(t, ctx.Failed())
	require.Equal(t, "execution error: panic: index out of range", ctx.ErrorInfo()["message"])
}

func TestOrganizerInvalidStepPanics(t *testing.T) {
	org := &Organizer{Name: "misconfigured", Steps: []Step{{}}}

	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*conveyorerrors.ConfigurationError)
		require.True(t, ok, "expected a configuration error, got %T", r)
	}()
	org.Call(nil)
}

func TestOrganizerBeforeHookRunsFirst(t *testing.T) {
	var seen []string
	org := &Organizer{
		Name: "hooked",
		Steps: []Step{
			FuncStep("step", func(ctx *Context) error {
				seen = append(seen, "step")
				return nil
			}),
		},
	}

	org.Call(nil, CallOptions{Before: func(ctx *Context) {
		seen = append(seen, "before")
		ctx.WithParams(map[string]any{"prepared": true})
	}})

	require.Equal(t, []string{"before", "step"}, seen)
}

func TestOrganizerCallAppliesOverrides(t *testing.T) {
	org := &Organizer{Name: "plain"}
	ctx := org.Call(map[string]any{"in": 1}, CallOptions{
		Overrides: Overrides{Params: map[string]any{"preset": true}},
	})

	require.Equal(t, true, ctx.Params()["preset"])
	require.True(t, ctx.Complete())
}

func TestReduceIfSuccessSkipsFailedContext(t *testing.T) {
	org := &Organizer{Name: "guarded"}
	ran := false
	steps := []Step{FuncStep("later", func(ctx *Context) error {
		ran = true
		return nil
	})}

	ctx := NewContext(nil)
	ctx.AddError("base", "previous failure")
	require.NoError(t, org.ReduceIfSuccess(ctx, steps))
	require.False(t, ran)

	healthy := NewContext(nil)
	require.NoError(t, org.ReduceIfSuccess(healthy, steps))
	require.True(t, ran)
}

func TestReduceSetsDiagnosticLabels(t *testing.T) {
	org := &Organizer{Name: "labels"}
	ctx := NewContext(nil)

	require.NoError(t, org.Reduce(ctx, []Step{
		FuncStep("inline_label", func(ctx *Context) error { return nil }),
	}))
	require.Equal(t, "inline_label", ctx.CurrentAction())
}
