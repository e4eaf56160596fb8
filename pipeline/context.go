// Package pipeline implements the business-pipeline orchestration core: a
// shared mutable Context threaded through ordered steps, Actions as units of
// work with lifecycle hooks, Organizers that run step lists with
// short-circuit-on-failure semantics, and Orchestrators that layer a
// pre-phase of delegated steps on top.
package pipeline

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"github.com/conveyorkit/conveyor/backtrace"
	"github.com/conveyorkit/conveyor/dotpath"
)

// Status tracks whether a pipeline run finished all of its steps.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusComplete   Status = "complete"
)

// Operation distinguishes create-style from update-style pipeline runs.
// Downstream rule evaluation uses it to decide identifier-field exclusion.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

// Well-known meta and internal-only keys.
const (
	MetaOperationKey          = "operation"
	MetaAllActionsCompleteKey = "all_actions_complete"

	internalErrorInfoKey         = "error_info"
	internalLastFailedContextKey = "last_failed_context"
	internalSuccessfulActionsKey = "successful_actions"
)

// MutatorKey is the reserved input entry an Orchestrator invokes against its
// root context after the pre-phase. The value must be a func(*Context).
const MutatorKey = "_context_mutator"

// errorTraceLines caps the cleaned stack snippet stored in error info.
const errorTraceLines = 5

// Context is the shared mutable state value threaded through a pipeline run.
// A Context is exclusively owned by the call chain that created it and must
// not be shared between concurrent pipeline runs.
type Context struct {
	id           string
	input        map[string]any
	params       map[string]any
	resources    map[string]any
	meta         map[string]any
	extraRules   map[string]any
	internalOnly map[string]any
	errs         map[string][]string
	status       Status
	aborted      bool

	currentOrganizer string
	currentAction    string
	invokedAction    *Action
}

// Overrides carries the optional collections merged into a fresh Context.
// Being a struct, unrecognized entries cannot exist: the shape is checked at
// compile time.
type Overrides struct {
	Params       map[string]any
	Errors       map[string][]string
	Resources    map[string]any
	ExtraRules   map[string]any
	InternalOnly map[string]any
	Meta         map[string]any
}

// NewContext builds a Context from the given input, then merges the optional
// overrides. Operation defaults to OperationUpdate unless the meta override
// supplies one.
func NewContext(input map[string]any, overrides ...Overrides) *Context {
	c := &Context{
		id:           uuid.NewString(),
		input:        make(map[string]any),
		params:       make(map[string]any),
		resources:    make(map[string]any),
		meta:         map[string]any{MetaOperationKey: OperationUpdate},
		extraRules:   make(map[string]any),
		internalOnly: make(map[string]any),
		errs:         make(map[string][]string),
		status:       StatusIncomplete,
	}
	c.WithInputs(input)
	for _, o := range overrides {
		c.WithParams(o.Params)
		c.WithErrors(o.Errors)
		c.WithResources(o.Resources)
		c.WithExtraRules(o.ExtraRules)
		c.WithInternalOnly(o.InternalOnly)
		c.WithMeta(o.Meta)
	}
	return c
}

// ID returns the run identifier assigned at creation.
func (c *Context) ID() string { return c.id }

// Input returns the input collection, or a filtered view resolved through
// dotted keys when a filter is given. Missing keys appear with a nil value.
// Without a filter the live collection is returned, not a copy; the same
// holds for the other unfiltered accessors. Write through the With* mutators
// so the context's state stays consistent.
func (c *Context) Input(keys ...string) map[string]any {
	return view(c.input, keys)
}

// Params returns the params collection, optionally filtered by dotted keys.
func (c *Context) Params(keys ...string) map[string]any {
	return view(c.params, keys)
}

// Resources returns the resources collection, optionally filtered by dotted keys.
func (c *Context) Resources(keys ...string) map[string]any {
	return view(c.resources, keys)
}

// Meta returns the meta collection, optionally filtered by dotted keys.
func (c *Context) Meta(keys ...string) map[string]any {
	return view(c.meta, keys)
}

// InternalOnly returns the internal diagnostics collection, optionally
// filtered by dotted keys.
func (c *Context) InternalOnly(keys ...string) map[string]any {
	return view(c.internalOnly, keys)
}

// ExtraRules returns the extra validation rules attached to this run.
func (c *Context) ExtraRules() map[string]any { return c.extraRules }

// Errors returns the field-indexed error messages, optionally filtered to
// the given fields. Filtered-out and missing fields are absent. Without a
// filter the live collection is returned; record errors through WithErrors
// or AddError so the failure state stays coupled to the collection.
func (c *Context) Errors(fields ...string) map[string][]string {
	if len(fields) == 0 {
		return c.errs
	}
	out := make(map[string][]string, len(fields))
	for _, f := range fields {
		if msgs, ok := c.errs[f]; ok {
			out[f] = msgs
		}
	}
	return out
}

func view(source map[string]any, keys []string) map[string]any {
	if len(keys) == 0 {
		return source
	}
	return dotpath.SelectOrNull(source, keys)
}

// WithInputs shallow-merges values into the input collection.
func (c *Context) WithInputs(values map[string]any) *Context {
	shallowMerge(c.input, values)
	return c
}

// WithParams shallow-merges values into the params collection.
func (c *Context) WithParams(values map[string]any) *Context {
	shallowMerge(c.params, values)
	return c
}

// WithMeta shallow-merges values into the meta collection.
func (c *Context) WithMeta(values map[string]any) *Context {
	shallowMerge(c.meta, values)
	return c
}

// WithInternalOnly shallow-merges values into the internal diagnostics
// collection.
func (c *Context) WithInternalOnly(values map[string]any) *Context {
	shallowMerge(c.internalOnly, values)
	return c
}

// WithResources shallow-merges values into the resources collection.
func (c *Context) WithResources(values map[string]any) *Context {
	shallowMerge(c.resources, values)
	return c
}

// WithExtraRules shallow-merges values into the extra-rules collection.
func (c *Context) WithExtraRules(values map[string]any) *Context {
	shallowMerge(c.extraRules, values)
	return c
}

// WithResource writes a single value at a dotted path inside resources,
// creating intermediate structure as needed. Sibling resource keys are
// unaffected.
func (c *Context) WithResource(path string, value any) *Context {
	dotpath.Set(c.resources, path, value)
	return c
}

// WithErrors appends messages per field, deduplicating while preserving
// first-seen order, and marks the context aborted when the merged error set
// is non-empty. An empty argument is a no-op and does not flip aborted.
func (c *Context) WithErrors(errs map[string][]string) *Context {
	for field, messages := range errs {
		existing := c.errs[field]
		for _, msg := range messages {
			if !containsString(existing, msg) {
				existing = append(existing, msg)
			}
		}
		if len(existing) > 0 {
			c.errs[field] = existing
		}
	}
	if len(c.errs) > 0 {
		c.aborted = true
	}
	return c
}

// AddError appends a single message for a field.
func (c *Context) AddError(field, message string) *Context {
	return c.WithErrors(map[string][]string{field: {message}})
}

// MarkComplete transitions the context to its terminal Complete status.
// There is no inverse.
func (c *Context) MarkComplete() {
	c.status = StatusComplete
}

// Complete reports whether the context reached its terminal status.
func (c *Context) Complete() bool { return c.status == StatusComplete }

// Status returns the current run status.
func (c *Context) Status() Status { return c.status }

// Abort flags the context as failed without recording an error. Used for
// explicit manual short-circuiting; never cleared.
func (c *Context) Abort() {
	c.aborted = true
}

// Aborted reports whether the context was aborted.
func (c *Context) Aborted() bool { return c.aborted }

// Failed reports whether the context was aborted or carries errors.
func (c *Context) Failed() bool {
	return c.aborted || len(c.errs) > 0
}

// Succeeded is the negation of Failed.
func (c *Context) Succeeded() bool { return !c.Failed() }

// Operation returns the operation stored in meta, defaulting to
// OperationUpdate when the entry was overwritten with something unexpected.
func (c *Context) Operation() Operation {
	switch v := c.meta[MetaOperationKey].(type) {
	case Operation:
		return v
	case string:
		if Operation(v) == OperationCreate {
			return OperationCreate
		}
		return OperationUpdate
	default:
		return OperationUpdate
	}
}

// SetOperation stores the operation in meta.
func (c *Context) SetOperation(op Operation) *Context {
	c.meta[MetaOperationKey] = op
	return c
}

// CurrentOrganizer returns the short name of the organizer running this
// context.
func (c *Context) CurrentOrganizer() string { return c.currentOrganizer }

// CurrentAction returns the short name of the step currently (or most
// recently) applied to this context.
func (c *Context) CurrentAction() string { return c.currentAction }

// InvokedAction returns the last Action that touched this context. It is
// observational only; the context does not own the action.
func (c *Context) InvokedAction() *Action { return c.invokedAction }

func (c *Context) setCurrentOrganizer(name string) {
	c.currentOrganizer = shortName(name)
}

func (c *Context) setCurrentAction(name string) {
	c.currentAction = shortName(name)
}

// FieldErrors is implemented by errors that expose per-field messages, such
// as rule-evaluation failures. RecordRaisedError merges them into the
// context errors.
type FieldErrors interface {
	FieldErrors() map[string][]string
}

// RecordRaisedError stores a structured record of an unexpected error under
// internal diagnostics: its type, message, and a cleaned stack snippet
// capped to a few lines. Errors exposing field-level messages are merged via
// WithErrors.
func (c *Context) RecordRaisedError(raised error) *Context {
	if raised == nil {
		return c
	}
	trace := backtrace.Default().Clean(string(debug.Stack()))
	if len(trace) > errorTraceLines {
		trace = trace[:errorTraceLines]
	}
	c.internalOnly[internalErrorInfoKey] = map[string]any{
		"type":      typeName(raised),
		"message":   raised.Error(),
		"backtrace": trace,
	}
	if fe, ok := raised.(FieldErrors); ok {
		c.WithErrors(fe.FieldErrors())
	}
	return c
}

// ErrorInfo returns the structured record of the last raised error, or nil.
func (c *Context) ErrorInfo() map[string]any {
	info, _ := c.internalOnly[internalErrorInfoKey].(map[string]any)
	return info
}

// SetLastFailedContext stores a snapshot of the source context's state under
// internal diagnostics. The label defaults to the source's current action.
func (c *Context) SetLastFailedContext(source *Context, label string) *Context {
	if source == nil {
		return c
	}
	if label == "" {
		label = source.currentAction
	}
	c.internalOnly[internalLastFailedContextKey] = map[string]any{
		"label":     label,
		"input":     copyMap(source.input),
		"params":    copyMap(source.params),
		"meta":      copyMap(source.meta),
		"resources": copyMap(source.resources),
		"errors":    copyErrors(source.errs),
		"status":    source.status,
	}
	return c
}

// LastFailedContext returns the stored failure snapshot, or nil.
func (c *Context) LastFailedContext() map[string]any {
	snapshot, _ := c.internalOnly[internalLastFailedContextKey].(map[string]any)
	return snapshot
}

// SuccessfulActions returns the audit trail of step labels that completed
// without failing the context.
func (c *Context) SuccessfulActions() []string {
	trail, _ := c.internalOnly[internalSuccessfulActionsKey].([]string)
	return trail
}

func (c *Context) recordSuccessfulAction(label string) {
	trail := c.SuccessfulActions()
	if containsString(trail, label) {
		return
	}
	c.internalOnly[internalSuccessfulActionsKey] = append(trail, label)
}

func shallowMerge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyErrors(src map[string][]string) map[string][]string {
	dst := make(map[string][]string, len(src))
	for field, messages := range src {
		dst[field] = append([]string(nil), messages...)
	}
	return dst
}

func containsString(list []string, s string) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

// shortName keeps the last segment of a slash- or dot-qualified name.
func shortName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func typeName(err error) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
