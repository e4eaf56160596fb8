// Package rules evaluates field validation rules against nested payloads.
// It implements the rule-evaluation contract the pipeline core depends on:
// callers hand in a payload, per-run extra rules, dotted omit paths, and the
// run operation, and receive a pass/fail result with a field-indexed error
// map. Rule syntax is go-playground/validator tag syntax.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conveyorkit/conveyor/dotpath"
	"github.com/conveyorkit/conveyor/pipeline"
)

// Errors maps field paths to their ordered validation messages. It doubles
// as an error value so rule failures can be raised and later merged back
// into a pipeline context via pipeline.FieldErrors.
type Errors map[string][]string

// Error implements the error interface.
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+" "+strings.Join(e[field], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldErrors exposes the per-field messages for context merging.
func (e Errors) FieldErrors() map[string][]string { return e }

// Result is the outcome of one rule evaluation.
type Result struct {
	Valid  bool
	Errors Errors
}

// Err returns the error map as an error, or nil when the payload passed.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return r.Errors
}

// Evaluator is the rule-evaluation contract consumed by validation-augmented
// actions.
type Evaluator interface {
	Evaluate(payload, extraRules map[string]any, omitPaths []string, op pipeline.Operation) Result
}

// MapEvaluator evaluates validator tag rules against map payloads. Omit
// paths always apply regardless of operation; the operation only controls
// identifier-field exclusion (create-style runs drop identifier rules, since
// the identifier does not exist yet).
type MapEvaluator struct {
	validate *validator.Validate
	// Rules is the base rule set: field (or nested map) to validator tags.
	Rules map[string]any
	// IdentifierFields are excluded on OperationCreate. Defaults to ["id"].
	IdentifierFields []string
}

// NewMapEvaluator builds an evaluator over the given base rule set.
func NewMapEvaluator(base map[string]any) *MapEvaluator {
	return &MapEvaluator{
		validate:         validator.New(),
		Rules:            base,
		IdentifierFields: []string{"id"},
	}
}

// Evaluate merges the base rules with the per-run extra rules (extra wins on
// colliding fields), removes omitted and operation-excluded rules, and runs
// the remainder against the payload.
func (e *MapEvaluator) Evaluate(payload, extraRules map[string]any, omitPaths []string, op pipeline.Operation) Result {
	merged := make(map[string]any, len(e.Rules)+len(extraRules))
	for field, rule := range e.Rules {
		merged[field] = rule
	}
	for field, rule := range extraRules {
		merged[field] = rule
	}

	merged = dotpath.Omit(merged, omitPaths)
	if op == pipeline.OperationCreate {
		for _, field := range e.IdentifierFields {
			delete(merged, field)
		}
	}
	if len(merged) == 0 {
		return Result{Valid: true, Errors: Errors{}}
	}

	raw := e.validate.ValidateMap(payload, merged)
	errs := make(Errors)
	collectMessages(errs, "", raw)
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// collectMessages flattens ValidateMap output into dotted field paths.
// Values are either errors for leaf fields or nested maps for nested rule
// sets.
func collectMessages(dst Errors, prefix string, raw map[string]any) {
	for field, value := range raw {
		path := field
		if prefix != "" {
			path = prefix + "." + field
		}
		switch v := value.(type) {
		case map[string]any:
			collectMessages(dst, path, v)
		case validator.ValidationErrors:
			for _, fe := range v {
				dst[path] = append(dst[path], ruleMessage(fe.Tag(), fe.Param()))
			}
		case error:
			dst[path] = append(dst[path], v.Error())
		}
	}
}

func ruleMessage(tag, param string) string {
	if param != "" {
		return fmt.Sprintf("failed %s=%s validation", tag, param)
	}
	return fmt.Sprintf("failed %s validation", tag)
}
