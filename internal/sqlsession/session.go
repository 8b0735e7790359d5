// Package sqlsession implements C4: a per-server handle wrapping an
// embedded SQL connection and a secrets map, shared by every request until
// a reload swaps it whole (spec §4.4).
//
// The real embedded analytical engine and its extension ecosystem are an
// explicit external collaborator (spec §1); modernc.org/sqlite, opened
// directly through database/sql, stands in as the engine here, both because it is a real pack dependency and
// because it is enough of a relational engine to exercise every operation
// this package defines (open, named-parameter execute, close).
package sqlsession

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/raw-labs/mxcp/internal/logger"
	"github.com/raw-labs/mxcp/internal/mxerrors"
)

// Config carries everything needed to open a Session (spec §4.4 "open").
type Config struct {
	DatabasePath string
	ReadOnly     bool
	Extensions   []string
	Secrets      map[string]string
}

// Session wraps one open database connection plus the secrets resolved for
// it. The executor serializes write access to a Session rather than relying
// on connection pooling, per spec §4.4's concurrency note; mu enforces
// that here directly so callers don't have to.
type Session struct {
	db      *sql.DB
	cfg     Config
	mu      sync.Mutex
}

// Open loads the database at cfg.DatabasePath, applies cfg.Extensions (each
// one forwarded to the engine's load mechanism; modernc.org/sqlite has no
// dynamic extension loader, so this is a logged no-op), and installs
// cfg.Secrets
// for later lookup via Secret.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	dsn := cfg.DatabasePath
	if dsn == "" {
		dsn = ":memory:"
	}
	if cfg.ReadOnly {
		dsn += "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, mxerrors.NewSQLExecution(fmt.Sprintf("opening session at %s", cfg.DatabasePath), err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, mxerrors.NewSQLExecution(fmt.Sprintf("connecting to %s", cfg.DatabasePath), err)
	}
	for _, ext := range cfg.Extensions {
		logger.Warnf("sqlsession: engine does not support loading extension %q, skipping", ext)
	}
	return &Session{db: db, cfg: cfg}, nil
}

// Secret returns a named secret installed at Open, for the host runtime
// facade's secrets.get(name) (spec §4.5).
func (s *Session) Secret(name string) (string, bool) {
	v, ok := s.cfg.Secrets[name]
	return v, ok
}

// Execute binds $name placeholders in code from params by name and returns
// the result set as ordered records (spec §4.4). SQLite natively resolves
// $name/@name/:name parameter markers against driver.NamedValue, so no
// placeholder rewriting is needed.
func (s *Session) Execute(ctx context.Context, code string, params map[string]any) (*Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := make([]any, 0, len(params))
	for name, v := range params {
		args = append(args, sql.Named(name, v))
	}

	rows, err := s.db.QueryContext(ctx, code, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, mxerrors.NewCancelled("query cancelled", ctx.Err())
		}
		return nil, mxerrors.NewSQLExecution(err.Error(), err)
	}
	defer rows.Close()
	return collect(rows)
}

// Close releases the underlying connection.
func (s *Session) Close() error {
	return s.db.Close()
}
