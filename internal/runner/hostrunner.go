package runner

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/identity"
	"github.com/raw-labs/mxcp/internal/mxerrors"
	"github.com/raw-labs/mxcp/internal/sqlsession"
)

// HostFunction is the Go-native stand-in for a resolved host-language
// endpoint function (spec §1 treats the host runtime as an external
// collaborator; this is the seam it plugs into).
type HostFunction func(ctx context.Context, args map[string]any, user *identity.UserContext, rt *Runtime) (any, error)

// HostRegistry resolves {file, function} to a callable, mirroring the
// lookup the endpoint loader's HostModuleTable performs at load time but
// returning something invocable rather than just a signature.
type HostRegistry interface {
	Resolve(file, function string) (HostFunction, bool)
}

// HostRunner dispatches host-language endpoint invocations. Cooperative-
// async functions (Source.Async) are awaited directly on the calling
// goroutine, which is already the executor's own scheduling context;
// synchronous functions run on a bounded worker pool so one slow host call
// can't exhaust the process, per spec §4.5 and §5.
type HostRunner struct {
	registry HostRegistry
	config   map[string]any
	sem      *semaphore.Weighted
}

// NewHostRunner builds a HostRunner whose synchronous dispatch is bounded
// to maxWorkers concurrent in-flight calls.
func NewHostRunner(registry HostRegistry, config map[string]any, maxWorkers int64) *HostRunner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &HostRunner{registry: registry, config: config, sem: semaphore.NewWeighted(maxWorkers)}
}

func (h *HostRunner) Run(ctx context.Context, ep *endpoint.Endpoint, args map[string]any, user *identity.UserContext, session *sqlsession.Session) (any, error) {
	fn, ok := h.registry.Resolve(ep.Source.FilePath, ep.Source.HostFunction)
	if !ok {
		return nil, mxerrors.NewHostExecution("host function "+ep.Source.HostFunction+" is not registered", nil)
	}
	rt := NewRuntime(session, h.config)

	if ep.Source.Async {
		return h.runAwaited(ctx, fn, args, user, rt)
	}
	return h.runOnWorker(ctx, fn, args, user, rt)
}

// runAwaited calls fn directly, trusting it to observe ctx cancellation
// itself (spec: "the runner awaits it on the executor's scheduler").
func (h *HostRunner) runAwaited(ctx context.Context, fn HostFunction, args map[string]any, user *identity.UserContext, rt *Runtime) (any, error) {
	result, err := fn(ctx, args, user, rt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, mxerrors.NewCancelled("host function cancelled", ctx.Err())
		}
		return nil, mxerrors.NewHostExecution(err.Error(), err)
	}
	return result, nil
}

// runOnWorker acquires a worker-pool slot and runs fn synchronously on it.
// Acquire observes ctx, so a cancellation while waiting for a slot surfaces
// as Cancelled rather than hanging; the errgroup then runs fn and waits for
// it.
func (h *HostRunner) runOnWorker(ctx context.Context, fn HostFunction, args map[string]any, user *identity.UserContext, rt *Runtime) (any, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, mxerrors.NewCancelled("waiting for a host worker slot", err)
	}
	defer h.sem.Release(1)

	group, groupCtx := errgroup.WithContext(ctx)
	var result any
	group.Go(func() error {
		r, err := fn(groupCtx, args, user, rt)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err := group.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, mxerrors.NewCancelled("host function cancelled", ctx.Err())
		}
		return nil, mxerrors.NewHostExecution(err.Error(), err)
	}
	return result, nil
}
