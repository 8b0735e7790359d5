// Package orchestrator implements C11: the entry point the external MCP
// transport calls into. It looks the endpoint up in the current registry
// snapshot, waits out a reload drain if one is in progress, builds a
// RequestContext, and delegates to the executor (spec §4.11).
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/raw-labs/mxcp/internal/audit"
	"github.com/raw-labs/mxcp/internal/executor"
	"github.com/raw-labs/mxcp/internal/identity"
	"github.com/raw-labs/mxcp/internal/mxerrors"
	"github.com/raw-labs/mxcp/internal/reload"
	"github.com/raw-labs/mxcp/internal/registry"
)

// DefaultTimeout is the server default applied when neither the edge nor
// the endpoint supplies a deadline (spec §5 "Timeouts").
const DefaultTimeout = 30 * time.Second

// Orchestrator is the invoke(...) seam named in spec §1: "treated as a
// message source/sink yielding invoke(endpoint_id, args, user) calls". The
// MCP wire transport (external, out of scope) calls Invoke for every tool
// call, resource read, or prompt render it receives.
type Orchestrator struct {
	Registry *registry.Registry
	Reload   *reload.Controller
	Executor *executor.Executor
}

// New wires C3, C9, and C7 together behind one Invoke entry point.
func New(reg *registry.Registry, rc *reload.Controller, ex *executor.Executor) *Orchestrator {
	return &Orchestrator{Registry: reg, Reload: rc, Executor: ex}
}

// Invoke is the request orchestrator's sole operation (spec §4.11).
// requestDeadline, when zero, is resolved to DefaultTimeout; when non-zero,
// the sooner of it and DefaultTimeout is taken (spec §5 "per-request
// deadline is the minimum of..."). There is no per-endpoint timeout.
func (o *Orchestrator) Invoke(ctx context.Context, endpointID string, args map[string]any, user *identity.UserContext, requestDeadline time.Time) *executor.Result {
	snap := o.Registry.Current()
	ep, ok := snap.Lookup(endpointID)
	if !ok {
		err := mxerrors.NewNotFound("endpoint "+endpointID+" is unknown or disabled", nil)
		return o.auditedFailure(endpointID, "", user, err, audit.StatusError)
	}

	if err := o.Reload.Enter(ctx); err != nil {
		return o.auditedFailure(ep.ID, string(ep.Kind), user, err, audit.StatusError)
	}
	defer o.Reload.Leave()

	deadline := resolveDeadline(requestDeadline, DefaultTimeout)
	runCtx := ctx
	var cancel context.CancelFunc
	if !deadline.IsZero() {
		runCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	inv := &executor.Invocation{
		RequestID: uuid.NewString(),
		Endpoint:  ep,
		Args:      args,
		User:      user,
		Session:   o.Reload.Session(),
		Deadline:  deadline,
	}
	return o.Executor.Run(runCtx, inv)
}

// auditedFailure builds and enqueues the audit record for a request that
// never reaches the executor's own state machine (unknown/disabled
// endpoint, or a reload drain timeout), so spec §7's "Audited: yes" for
// NotFound and Unavailable holds even though C7 is never entered — every
// accepted invocation still produces exactly one record (spec §8 property
// 4).
func (o *Orchestrator) auditedFailure(endpointID, endpointKind string, user *identity.UserContext, err error, status audit.Status) *executor.Result {
	rec := &audit.Record{
		SchemaID:      audit.SchemaID,
		SchemaVersion: audit.SchemaVersion,
		Timestamp:     time.Now(),
		RequestID:     uuid.NewString(),
		EndpointKind:  endpointKind,
		EndpointID:    endpointID,
		Status:        status,
		PolicyDecision: audit.PolicyNone,
		ErrorKind:     string(mxerrors.KindOf(err)),
		ErrorMessage:  err.Error(),
	}
	if user != nil {
		rec.UserSubset = map[string]any{"user_id": user.UserID, "role": user.Role}
	}
	if o.Executor != nil && o.Executor.AuditWriter != nil {
		o.Executor.AuditWriter.Enqueue(rec)
	}
	return &executor.Result{Err: err, Audit: rec}
}

// resolveDeadline picks the sooner of an explicit request deadline and the
// server default, per spec §5.
func resolveDeadline(requestDeadline time.Time, serverDefault time.Duration) time.Time {
	def := time.Now().Add(serverDefault)
	if requestDeadline.IsZero() {
		return def
	}
	if requestDeadline.Before(def) {
		return requestDeadline
	}
	return def
}
