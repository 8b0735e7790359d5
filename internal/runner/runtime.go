package runner

import (
	"context"

	"github.com/raw-labs/mxcp/internal/sqlsession"
)

// Runtime is the capability object a host function receives, per spec
// §4.5: read-only config access, db.execute backed by the shared session,
// and secrets.get. It is built fresh per invocation rather than reached for
// through a package-level global, per spec §9's explicit-dependency note.
type Runtime struct {
	session *sqlsession.Session
	config  map[string]any
}

// NewRuntime builds the facade a host function call receives for one
// invocation.
func NewRuntime(session *sqlsession.Session, config map[string]any) *Runtime {
	return &Runtime{session: session, config: config}
}

// Config returns a read-only view of the resolved site configuration.
func (r *Runtime) Config() map[string]any {
	return r.config
}

// Execute runs code against the shared SQL session, for host functions that
// need to query the same database the SQL runner uses.
func (r *Runtime) Execute(ctx context.Context, code string, params map[string]any) (*sqlsession.Rows, error) {
	return r.session.Execute(ctx, code, params)
}

// Secret looks up a named secret installed on the session.
func (r *Runtime) Secret(name string) (string, bool) {
	return r.session.Secret(name)
}
