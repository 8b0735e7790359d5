package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/identity"
	"github.com/raw-labs/mxcp/internal/mxerrors"
	"github.com/raw-labs/mxcp/internal/policy"
	"github.com/raw-labs/mxcp/internal/sqlsession"
	"github.com/raw-labs/mxcp/internal/types"
)

// runnerAdapter stands in for C5 so these tests exercise only the state
// machine, not a real SQL/host dispatch.
type runnerAdapter struct {
	value any
	err   error
}

func (r *runnerAdapter) Run(_ context.Context, _ *endpoint.Endpoint, _ map[string]any, _ *identity.UserContext, _ *sqlsession.Session) (any, error) {
	return r.value, r.err
}

func greetTool() *endpoint.Endpoint {
	boolFalse := false
	return &endpoint.Endpoint{
		ID:      "greet",
		Kind:    endpoint.KindTool,
		Enabled: true,
		Parameters: []endpoint.Parameter{
			{Name: "name", Spec: &types.TypeSpec{Kind: types.KindString}},
		},
		ReturnType: &types.TypeSpec{Kind: types.KindObject, Properties: map[string]*types.TypeSpec{
			"message": {Kind: types.KindString},
		}, AdditionalProperties: &boolFalse},
	}
}

func TestRunSuccessReachesDone(t *testing.T) {
	r := &runnerAdapter{value: map[string]any{"message": "hi"}}
	ex := New(r, nil)

	var stages []Stage
	ex.Tracer = func(_ string, s Stage) { stages = append(stages, s) }

	res := ex.Run(context.Background(), &Invocation{
		RequestID: "req-1",
		Endpoint:  greetTool(),
		Args:      map[string]any{"name": "Ada"},
		User:      identity.Anonymous(),
	})

	require.NoError(t, res.Err)
	assert.Equal(t, map[string]any{"message": "hi"}, res.Value)
	assert.Equal(t, "success", string(res.Audit.Status))
	assert.Equal(t,
		[]Stage{StageValidatingInput, StageInputPolicy, StageRunning, StageValidatingOutput, StageOutputPolicy, StageAuditing, StageDone},
		stages,
	)
}

func TestRunBadInputFailsBeforeRunning(t *testing.T) {
	r := &runnerAdapter{}
	ex := New(r, nil)
	var stages []Stage
	ex.Tracer = func(_ string, s Stage) { stages = append(stages, s) }

	res := ex.Run(context.Background(), &Invocation{
		RequestID: "req-2",
		Endpoint:  greetTool(),
		Args:      map[string]any{"name": 123}, // wrong type
	})

	require.Error(t, res.Err)
	assert.True(t, mxerrors.IsBadInput(res.Err))
	assert.Equal(t, "error", string(res.Audit.Status))
	assert.NotContains(t, stages, StageRunning, "a bad-input failure must never reach RUNNING")
}

func TestRunDeniedByInputPolicy(t *testing.T) {
	ep := greetTool()
	compiled, err := policy.Compile([]policy.Policy{
		{Stage: policy.StageInput, Condition: "user.role != 'admin'", Action: policy.ActionDeny, Reason: "admins only"},
	})
	require.NoError(t, err)
	ep.Policies.Input = compiled

	r := &runnerAdapter{value: "unreachable"}
	ex := New(r, nil)

	res := ex.Run(context.Background(), &Invocation{
		RequestID: "req-3",
		Endpoint:  ep,
		Args:      map[string]any{"name": "Ada"},
		User:      &identity.UserContext{UserID: "u1", Role: "guest"},
	})

	require.Error(t, res.Err)
	assert.True(t, mxerrors.IsPolicyDenied(res.Err))
	assert.Equal(t, "denied", string(res.Audit.Status))
	assert.Equal(t, "admins only", res.Audit.PolicyReason)
}

func TestRunRunnerErrorPropagates(t *testing.T) {
	r := &runnerAdapter{err: errors.New("boom")}
	ex := New(r, nil)

	res := ex.Run(context.Background(), &Invocation{
		RequestID: "req-4",
		Endpoint:  greetTool(),
		Args:      map[string]any{"name": "Ada"},
	})

	require.Error(t, res.Err)
	assert.Equal(t, "error", string(res.Audit.Status))
}

func TestRunOutputMaskSummaryNamesField(t *testing.T) {
	ep := &endpoint.Endpoint{
		ID:      "employee",
		Kind:    endpoint.KindTool,
		Enabled: true,
		Parameters: []endpoint.Parameter{
			{Name: "id", Spec: &types.TypeSpec{Kind: types.KindString}},
		},
		ReturnType: &types.TypeSpec{Kind: types.KindObject, Properties: map[string]*types.TypeSpec{
			"ssn":    {Kind: types.KindString, Sensitive: true},
			"salary": {Kind: types.KindNumber},
		}},
	}
	compiled, err := policy.Compile([]policy.Policy{
		{Stage: policy.StageOutput, Condition: "user.role != 'hr'", Action: policy.ActionMaskFields, Fields: []string{"ssn"}},
	})
	require.NoError(t, err)
	ep.Policies.Output = compiled

	r := &runnerAdapter{value: map[string]any{"ssn": "123-45-6789", "salary": 1000}}
	ex := New(r, nil)

	res := ex.Run(context.Background(), &Invocation{
		RequestID: "req-6",
		Endpoint:  ep,
		Args:      map[string]any{"id": "e1"},
		User:      &identity.UserContext{UserID: "u1", Role: "engineer"},
	})

	require.NoError(t, res.Err)
	value, ok := res.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "****", value["ssn"])
	assert.Equal(t, "mask", string(res.Audit.PolicyDecision))
	assert.Contains(t, res.Audit.OutputRedactedSummary, "mask_fields:ssn")
}

func TestRunDeadlineExceededBeforeRunning(t *testing.T) {
	r := &runnerAdapter{value: "unreachable"}
	ex := New(r, nil)

	res := ex.Run(context.Background(), &Invocation{
		RequestID: "req-5",
		Endpoint:  greetTool(),
		Args:      map[string]any{"name": "Ada"},
		Deadline:  time.Now().Add(-time.Minute),
	})

	require.Error(t, res.Err)
	assert.True(t, mxerrors.IsCancelled(res.Err))
}
