package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raw-labs/mxcp/internal/types"
)

func compileOne(t *testing.T, p Policy) Policy {
	t.Helper()
	out, err := Compile([]Policy{p})
	require.NoError(t, err)
	return out[0]
}

func TestEvaluateInputDenyOnGuest(t *testing.T) {
	p := compileOne(t, Policy{
		Stage:     StageInput,
		Condition: `user.role == "guest"`,
		Action:    ActionDeny,
		Reason:    "no guests",
	})
	d, err := EvaluateInput([]Policy{p}, map[string]any{"role": "guest"}, map[string]any{})
	require.NoError(t, err)
	assert.True(t, d.Denied)
	assert.Equal(t, "no guests", d.Reason)
}

func TestEvaluateInputAllowsNonMatching(t *testing.T) {
	p := compileOne(t, Policy{Stage: StageInput, Condition: `user.role == "guest"`, Action: ActionDeny})
	d, err := EvaluateInput([]Policy{p}, map[string]any{"role": "admin"}, map[string]any{})
	require.NoError(t, err)
	assert.False(t, d.Denied)
}

func TestEvaluateInputStopsAtFirstDeny(t *testing.T) {
	first := compileOne(t, Policy{Stage: StageInput, Condition: `true`, Action: ActionDeny, Reason: "first"})
	second := compileOne(t, Policy{Stage: StageInput, Condition: `true`, Action: ActionDeny, Reason: "second"})
	d, err := EvaluateInput([]Policy{first, second}, map[string]any{}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "first", d.Reason)
}

func TestUndefinedFieldIsNullNotError(t *testing.T) {
	p := compileOne(t, Policy{Stage: StageInput, Condition: `user.nickname == "x"`, Action: ActionDeny})
	d, err := EvaluateInput([]Policy{p}, map[string]any{"role": "guest"}, map[string]any{})
	require.NoError(t, err)
	assert.False(t, d.Denied)
}

func TestNotInOnMissingCollectionIsTrue(t *testing.T) {
	p := compileOne(t, Policy{Stage: StageInput, Condition: `!("admin" in input.roles)`, Action: ActionDeny, Reason: "missing roles"})
	d, err := EvaluateInput([]Policy{p}, map[string]any{}, map[string]any{})
	require.NoError(t, err)
	assert.True(t, d.Denied)
}

func TestEvaluateOutputMaskFields(t *testing.T) {
	p := compileOne(t, Policy{
		Stage:     StageOutput,
		Condition: `user.role != "hr"`,
		Action:    ActionMaskFields,
		Fields:    []string{"ssn"},
	})
	response := map[string]any{"ssn": "123-45-6789", "salary": int64(90000)}
	result, err := EvaluateOutput([]Policy{p}, map[string]any{"role": "engineer"}, map[string]any{}, response, nil)
	require.NoError(t, err)
	out := result.Response.(map[string]any)
	assert.Equal(t, "****", out["ssn"])
	assert.Equal(t, int64(90000), out["salary"])
	require.Len(t, result.Applied, 1)
	assert.Equal(t, ActionMaskFields, result.Applied[0].Action)
}

func TestEvaluateOutputFilterFieldsOnArray(t *testing.T) {
	p := compileOne(t, Policy{Stage: StageOutput, Condition: `true`, Action: ActionFilterFields, Fields: []string{"items.secret"}})
	response := map[string]any{"items": []any{
		map[string]any{"name": "a", "secret": "x"},
		map[string]any{"name": "b", "secret": "y"},
	}}
	result, err := EvaluateOutput([]Policy{p}, map[string]any{}, map[string]any{}, response, nil)
	require.NoError(t, err)
	items := result.Response.(map[string]any)["items"].([]any)
	for _, item := range items {
		_, present := item.(map[string]any)["secret"]
		assert.False(t, present)
	}
}

func TestEvaluateOutputFilterSensitiveFields(t *testing.T) {
	p := compileOne(t, Policy{Stage: StageOutput, Condition: `true`, Action: ActionFilterSensitiveFields})
	spec := &types.TypeSpec{
		Kind: types.KindObject,
		Properties: map[string]*types.TypeSpec{
			"ssn":    {Kind: types.KindString, Sensitive: true},
			"salary": {Kind: types.KindInteger},
		},
	}
	response := map[string]any{"ssn": "123-45-6789", "salary": int64(90000)}
	result, err := EvaluateOutput([]Policy{p}, map[string]any{}, map[string]any{}, response, spec)
	require.NoError(t, err)
	out := result.Response.(map[string]any)
	_, present := out["ssn"]
	assert.False(t, present)
	assert.Equal(t, int64(90000), out["salary"])
	require.Len(t, result.Applied, 1)
	assert.Equal(t, []string{"$.ssn"}, result.Applied[0].Fields)
}

func TestMaskFieldsIdempotent(t *testing.T) {
	response := map[string]any{"ssn": "123-45-6789"}
	once := maskFields(response, []string{"ssn"})
	twice := maskFields(once, []string{"ssn"})
	assert.Equal(t, once, twice)
}

func TestFilterFieldsIdempotent(t *testing.T) {
	response := map[string]any{"ssn": "123-45-6789", "name": "a"}
	once := filterFields(response, []string{"ssn"})
	twice := filterFields(once, []string{"ssn"})
	assert.Equal(t, once, twice)
}
