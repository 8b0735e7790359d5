// Package policy implements C6: expression-driven input gating and output
// field redaction (spec §3.3, §4.6). Conditions are compiled once, at load
// or reload time, into CEL programs and evaluated per request against the
// {user, input, response} bindings.
package policy

import (
	"fmt"

	"github.com/raw-labs/mxcp/internal/logger"
	"github.com/raw-labs/mxcp/internal/types"
)

// Stage identifies which phase of the executor a Policy applies to.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// Action is the effect a matched policy applies.
type Action string

const (
	ActionDeny                  Action = "deny"
	ActionFilterFields          Action = "filter_fields"
	ActionMaskFields            Action = "mask_fields"
	ActionFilterSensitiveFields Action = "filter_sensitive_fields"
)

// Policy is one rule from an endpoint's policies.input or policies.output
// list (spec §3.3). Condition is compiled by Compile before Evaluate* can
// use it; an uncompiled Policy is a loader bug, not a runtime condition.
type Policy struct {
	Stage     Stage
	Condition string
	Action    Action
	Fields    []string
	Reason    string

	compiled *compiledCondition
}

// Compile compiles the Condition of every policy in place, sharing one CEL
// environment, and returns the same slice. Call this once per endpoint at
// load/reload time; Evaluate* never compiles.
func Compile(policies []Policy) ([]Policy, error) {
	if len(policies) == 0 {
		return policies, nil
	}
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("building policy CEL environment: %w", err)
	}
	out := make([]Policy, len(policies))
	for i, p := range policies {
		cc, err := compileCondition(env, p.Condition)
		if err != nil {
			return nil, fmt.Errorf("policy %d (%s stage): %w", i, p.Stage, err)
		}
		p.compiled = cc
		out[i] = p
	}
	return out, nil
}

// Decision is the outcome of evaluating the input-stage policy list.
type Decision struct {
	Denied bool
	Reason string
}

// EvaluateInput applies the input-stage rule from spec §4.6: the first
// matching policy decides; only `deny` is meaningful at this stage; once one
// matches with deny, remaining policies are not evaluated.
func EvaluateInput(policies []Policy, user, input map[string]any) (Decision, error) {
	bindings := map[string]any{
		"user":  newBindingMap(user),
		"input": newBindingMap(input),
	}
	for _, p := range policies {
		if p.Stage != StageInput {
			continue
		}
		matched, err := p.eval(bindings)
		if err != nil {
			return Decision{}, err
		}
		if matched && p.Action == ActionDeny {
			return Decision{Denied: true, Reason: p.Reason}, nil
		}
	}
	return Decision{}, nil
}

// AppliedAction records one output-stage mutation for the audit record's
// output_redacted_summary (spec §3.6).
type AppliedAction struct {
	Action Action
	Fields []string
}

// OutputResult is the outcome of evaluating the output-stage policy list.
type OutputResult struct {
	Response any
	Applied  []AppliedAction
}

// EvaluateOutput applies every matching output-stage policy in declared
// order, composing mutations on the response (spec §4.6). responseSpec is
// the endpoint's return_type, consulted only for filter_sensitive_fields.
func EvaluateOutput(policies []Policy, user, input map[string]any, response any, responseSpec *types.TypeSpec) (*OutputResult, error) {
	result := &OutputResult{Response: response}
	bindings := map[string]any{
		"user":  newBindingMap(user),
		"input": newBindingMap(input),
	}
	for _, p := range policies {
		if p.Stage != StageOutput {
			continue
		}
		bindings["response"] = newBindingMap(asMap(result.Response))
		matched, err := p.eval(bindings)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		switch p.Action {
		case ActionFilterFields:
			result.Response = filterFields(result.Response, p.Fields)
			result.Applied = append(result.Applied, AppliedAction{Action: p.Action, Fields: p.Fields})
		case ActionMaskFields:
			result.Response = maskFields(result.Response, p.Fields)
			result.Applied = append(result.Applied, AppliedAction{Action: p.Action, Fields: p.Fields})
		case ActionFilterSensitiveFields:
			var removed []string
			result.Response, removed = filterSensitive(result.Response, responseSpec)
			result.Applied = append(result.Applied, AppliedAction{Action: p.Action, Fields: removed})
		}
	}
	return result, nil
}

// asMap adapts an arbitrary response value into the map binding CEL expects
// for "response"; non-object responses bind as {"value": response} so
// conditions may still write `response.value`.
func asMap(response any) map[string]any {
	if m, ok := response.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": response}
}

func (p Policy) eval(bindings map[string]any) (bool, error) {
	if p.compiled == nil {
		return false, fmt.Errorf("policy condition %q was never compiled", p.Condition)
	}
	out, _, err := p.compiled.program.Eval(bindings)
	if err != nil {
		logger.Debugf("policy condition %q evaluation error, treating as non-matching: %v", p.Condition, err)
		return false, nil
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}
