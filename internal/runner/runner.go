// Package runner implements C5: the uniform run(endpoint, args, user,
// session) -> value contract, with one variant per source language (spec
// §4.5). Both variants share the Runner interface so the executor (C7)
// dispatches without a type switch of its own.
package runner

import (
	"context"

	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/identity"
	"github.com/raw-labs/mxcp/internal/sqlsession"
)

// Runner executes one endpoint invocation and returns its raw (not yet
// output-validated) result.
type Runner interface {
	Run(ctx context.Context, ep *endpoint.Endpoint, args map[string]any, user *identity.UserContext, session *sqlsession.Session) (any, error)
}

// Dispatcher routes an invocation to the runner matching the endpoint's
// source language. It is itself a Runner so the executor can hold a single
// value regardless of how many language runners are registered.
type Dispatcher struct {
	SQL  Runner
	Host Runner
}

func (d *Dispatcher) Run(ctx context.Context, ep *endpoint.Endpoint, args map[string]any, user *identity.UserContext, session *sqlsession.Session) (any, error) {
	switch ep.Source.Language {
	case endpoint.LanguageSQL:
		return d.SQL.Run(ctx, ep, args, user, session)
	default:
		return d.Host.Run(ctx, ep, args, user, session)
	}
}
