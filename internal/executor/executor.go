// Package executor implements C7, the heart of the core: the
// NEW→VALIDATING_INPUT→INPUT_POLICY→RUNNING→VALIDATING_OUTPUT→OUTPUT_POLICY
// →AUDITING→DONE state machine that every invocation passes through (spec
// §4.7). Each stage's contract is enforced in the order the spec lists;
// exactly one audit record is produced regardless of which stage fails.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/raw-labs/mxcp/internal/audit"
	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/identity"
	"github.com/raw-labs/mxcp/internal/mxerrors"
	"github.com/raw-labs/mxcp/internal/policy"
	"github.com/raw-labs/mxcp/internal/runner"
	"github.com/raw-labs/mxcp/internal/sqlsession"
	"github.com/raw-labs/mxcp/internal/types"
)

// Stage names the §4.7 state the executor is currently in. Tests assert on
// the sequence of stages an invocation passes through (spec §8 property 7).
type Stage string

const (
	StageNew              Stage = "NEW"
	StageValidatingInput  Stage = "VALIDATING_INPUT"
	StageInputPolicy      Stage = "INPUT_POLICY"
	StageRunning          Stage = "RUNNING"
	StageValidatingOutput Stage = "VALIDATING_OUTPUT"
	StageOutputPolicy     Stage = "OUTPUT_POLICY"
	StageAuditing         Stage = "AUDITING"
	StageDone             Stage = "DONE"
	StageFailed           Stage = "FAILED"
)

// Tracer, when set, is notified of every stage transition an invocation
// makes. Used by tests asserting spec §8 property 7; never required for
// correct operation.
type Tracer func(requestID string, stage Stage)

// Invocation is everything C7 needs for one request; fields mirror
// RequestContext (spec §3.5) plus the resources C11 supplies from the
// current registry snapshot and the shared session.
type Invocation struct {
	RequestID string
	Endpoint  *endpoint.Endpoint
	Args      map[string]any
	User      *identity.UserContext
	Session   *sqlsession.Session
	Deadline  time.Time
	TraceID   string
}

// Result is the executor's outcome: either Value is populated (success) or
// Err names the failure, always paired with the audit record that was
// enqueued for this invocation.
type Result struct {
	Value any
	Err   error
	Audit *audit.Record
}

// Executor wires C1/C6/C5/C8 together behind the §4.7 state machine. It
// holds no per-request state itself; every field is a shared collaborator
// handed a fresh Invocation on each Run call.
type Executor struct {
	Runner       runner.Runner
	AuditWriter  *audit.Writer
	Tracer       Tracer
}

// New builds an Executor from its collaborators.
func New(r runner.Runner, w *audit.Writer) *Executor {
	return &Executor{Runner: r, AuditWriter: w}
}

// Run drives one invocation through every §4.7 stage and returns its
// Result. ctx carries cancellation/deadline per spec §5; Run observes it at
// the RUNNING stage's suspension point (the runner) and, more coarsely,
// before starting work that hasn't begun yet.
func (e *Executor) Run(ctx context.Context, inv *Invocation) *Result {
	start := time.Now()
	rec := &audit.Record{
		SchemaID:      audit.SchemaID,
		SchemaVersion: audit.SchemaVersion,
		Timestamp:     start,
		RequestID:     inv.RequestID,
		EndpointKind:  string(inv.Endpoint.Kind),
		EndpointID:    inv.Endpoint.ID,
		TraceID:       inv.TraceID,
	}
	if inv.User != nil {
		rec.UserSubset = map[string]any{"user_id": inv.User.UserID, "role": inv.User.Role}
	}

	value, stageErr, policyDecision, policyReason, appliedOutput := e.run(ctx, inv, rec)

	rec.DurationMS = time.Since(start).Milliseconds()
	rec.PolicyDecision = policyDecision
	rec.PolicyReason = policyReason
	if len(appliedOutput) > 0 {
		rec.OutputRedactedSummary = summarizeAppliedActions(appliedOutput)
	}

	switch {
	case stageErr == nil:
		rec.Status = audit.StatusSuccess
	case mxerrors.IsPolicyDenied(stageErr):
		rec.Status = audit.StatusDenied
	default:
		rec.Status = audit.StatusError
	}
	if stageErr != nil {
		rec.ErrorKind = string(mxerrors.KindOf(stageErr))
		rec.ErrorMessage = stageErr.Error()
	}

	e.trace(inv, StageAuditing)
	if e.AuditWriter != nil {
		e.AuditWriter.Enqueue(rec)
	}
	e.trace(inv, StageDone)

	return &Result{Value: value, Err: stageErr, Audit: rec}
}

// run performs the actual stage sequence, redacting the input/output
// captured on rec as it goes so the audit record never carries a raw
// sensitive value even transiently (spec §4.8: "redaction is applied
// before serialization", here applied as soon as each tree is known).
func (e *Executor) run(ctx context.Context, inv *Invocation, rec *audit.Record) (value any, err error, decision audit.PolicyDecision, reason string, applied []policy.AppliedAction) {
	ep := inv.Endpoint
	paramsSpec := ep.ParametersTypeSpec()

	e.trace(inv, StageValidatingInput)
	coercedArgs, verrs := types.ValidateAndCoerce(inv.Args, paramsSpec)
	rec.InputRedacted = audit.Redact(coercedArgsOrRaw(coercedArgs, inv.Args), paramsSpec)
	if len(verrs) > 0 {
		return nil, mxerrors.NewBadInput(verrs[0].Error(), verrs[0]), audit.PolicyNone, "", nil
	}
	argsMap, _ := coercedArgs.(map[string]any)

	e.trace(inv, StageInputPolicy)
	inputDecision, err := policy.EvaluateInput(ep.Policies.Input, userBinding(inv.User), argsMap)
	if err != nil {
		return nil, mxerrors.NewInternal("evaluating input policy", err), audit.PolicyNone, "", nil
	}
	if inputDecision.Denied {
		return nil, mxerrors.NewPolicyDenied(inputDecision.Reason, nil), audit.PolicyDeny, inputDecision.Reason, nil
	}

	e.trace(inv, StageRunning)
	if err := checkDeadline(ctx, inv); err != nil {
		return nil, err, audit.PolicyNone, "", nil
	}
	raw, err := e.Runner.Run(ctx, ep, argsMap, inv.User, inv.Session)
	if err != nil {
		if ctx.Err() != nil && !mxerrors.IsCancelled(err) {
			return nil, mxerrors.NewCancelled("invocation cancelled", ctx.Err()), audit.PolicyNone, "", nil
		}
		return nil, err, audit.PolicyNone, "", nil
	}

	e.trace(inv, StageValidatingOutput)
	var coercedOut any
	if ep.ReturnType != nil {
		coercedOut, verrs = types.ValidateOutput(raw, ep.ReturnType)
		if len(verrs) > 0 {
			return nil, mxerrors.NewBadOutput(verrs[0].Error(), verrs[0]), audit.PolicyNone, "", nil
		}
	} else {
		coercedOut = raw
	}

	e.trace(inv, StageOutputPolicy)
	outResult, err := policy.EvaluateOutput(ep.Policies.Output, userBinding(inv.User), argsMap, coercedOut, ep.ReturnType)
	if err != nil {
		return nil, mxerrors.NewInternal("evaluating output policy", err), audit.PolicyNone, "", nil
	}
	rec.OutputRedactedSummary = nil // filled by caller from outResult.Applied
	rec.InputRedacted = audit.Redact(argsMap, paramsSpec)

	decision = audit.PolicyNone
	if len(outResult.Applied) > 0 {
		decision = policyDecisionFor(outResult.Applied)
	}
	return outResult.Response, nil, decision, reason, outResult.Applied
}

// coercedArgsOrRaw prefers the coerced map for redaction once it exists,
// falling back to the raw args when validation failed before coercion
// could run (so the audit record still carries something to redact).
func coercedArgsOrRaw(coerced any, raw map[string]any) any {
	if m, ok := coerced.(map[string]any); ok {
		return m
	}
	return raw
}

// summarizeAppliedActions renders each output-policy mutation as
// "action:field1,field2" so the audit record shows which fields were
// masked or filtered, not just that some action fired (spec §3.6
// "output_redacted_summary"; scenario S4 expects the summary to name the
// masked field, e.g. "ssn").
func summarizeAppliedActions(applied []policy.AppliedAction) []string {
	summary := make([]string, 0, len(applied))
	for _, a := range applied {
		if len(a.Fields) == 0 {
			summary = append(summary, string(a.Action))
			continue
		}
		summary = append(summary, string(a.Action)+":"+strings.Join(a.Fields, ","))
	}
	return summary
}

func policyDecisionFor(applied []policy.AppliedAction) audit.PolicyDecision {
	for _, a := range applied {
		switch a.Action {
		case policy.ActionMaskFields:
			return audit.PolicyMask
		case policy.ActionFilterFields, policy.ActionFilterSensitiveFields:
			return audit.PolicyFilter
		}
	}
	return audit.PolicyNone
}

func userBinding(u *identity.UserContext) map[string]any {
	if u == nil {
		return nil
	}
	return map[string]any{
		"user_id":     u.UserID,
		"role":        u.Role,
		"permissions": u.PermissionsList(),
		"provider":    u.Provider,
		"extra":       u.Extra,
	}
}

func checkDeadline(ctx context.Context, inv *Invocation) error {
	if ctx.Err() != nil {
		return mxerrors.NewCancelled("invocation cancelled before running", ctx.Err())
	}
	if !inv.Deadline.IsZero() && time.Now().After(inv.Deadline) {
		return mxerrors.NewCancelled("invocation deadline exceeded", nil)
	}
	return nil
}

func (e *Executor) trace(inv *Invocation, stage Stage) {
	if e.Tracer != nil {
		e.Tracer(inv.RequestID, stage)
	}
}
