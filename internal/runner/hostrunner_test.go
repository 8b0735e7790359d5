package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/identity"
	"github.com/raw-labs/mxcp/internal/mxerrors"
)

type staticRegistry struct {
	fn HostFunction
}

func (r *staticRegistry) Resolve(file, function string) (HostFunction, bool) {
	if r.fn == nil {
		return nil, false
	}
	return r.fn, true
}

func hostEndpoint(async bool) *endpoint.Endpoint {
	return &endpoint.Endpoint{
		ID:   "ep",
		Kind: endpoint.KindTool,
		Source: endpoint.Source{
			Language:     endpoint.LanguageHost,
			FilePath:     "handlers.py",
			HostFunction: "compute",
			Async:        async,
		},
	}
}

func TestHostRunnerDispatchesSynchronousFunction(t *testing.T) {
	reg := &staticRegistry{fn: func(ctx context.Context, args map[string]any, user *identity.UserContext, rt *Runtime) (any, error) {
		return args["x"], nil
	}}
	hr := NewHostRunner(reg, nil, 2)
	out, err := hr.Run(context.Background(), hostEndpoint(false), map[string]any{"x": int64(7)}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), out)
}

func TestHostRunnerDispatchesAsyncFunction(t *testing.T) {
	reg := &staticRegistry{fn: func(ctx context.Context, args map[string]any, user *identity.UserContext, rt *Runtime) (any, error) {
		return "async-result", nil
	}}
	hr := NewHostRunner(reg, nil, 2)
	out, err := hr.Run(context.Background(), hostEndpoint(true), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "async-result", out)
}

func TestHostRunnerUnregisteredFunctionIsHostExecutionError(t *testing.T) {
	hr := NewHostRunner(&staticRegistry{}, nil, 1)
	_, err := hr.Run(context.Background(), hostEndpoint(false), nil, nil, nil)
	assert.True(t, mxerrors.IsHostExecution(err))
}

func TestHostRunnerWrapsFunctionError(t *testing.T) {
	reg := &staticRegistry{fn: func(ctx context.Context, args map[string]any, user *identity.UserContext, rt *Runtime) (any, error) {
		return nil, errors.New("boom")
	}}
	hr := NewHostRunner(reg, nil, 1)
	_, err := hr.Run(context.Background(), hostEndpoint(false), nil, nil, nil)
	assert.True(t, mxerrors.IsHostExecution(err))
}

func TestHostRunnerCancelledContextSurfacesAsCancelled(t *testing.T) {
	reg := &staticRegistry{fn: func(ctx context.Context, args map[string]any, user *identity.UserContext, rt *Runtime) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	hr := NewHostRunner(reg, nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := hr.Run(ctx, hostEndpoint(false), nil, nil, nil)
	assert.True(t, mxerrors.IsCancelled(err))
}
