package identity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithUserContextAndFromContext(t *testing.T) {
	ctx := context.Background()
	u := &UserContext{UserID: "user123", Role: "engineer"}

	ctx = WithUserContext(ctx, u)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, u, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestWithUserContextNilIsNoop(t *testing.T) {
	ctx := context.Background()
	got := WithUserContext(ctx, nil)
	assert.Equal(t, ctx, got)
}

func TestHasPermission(t *testing.T) {
	u := &UserContext{Permissions: map[string]struct{}{"read": {}}}
	assert.True(t, u.HasPermission("read"))
	assert.False(t, u.HasPermission("write"))

	var nilUser *UserContext
	assert.False(t, nilUser.HasPermission("read"))
}

func TestMarshalJSONFlattensPermissions(t *testing.T) {
	u := &UserContext{
		UserID:      "u1",
		Role:        "hr",
		Permissions: map[string]struct{}{"read_ssn": {}},
	}
	data, err := json.Marshal(u)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "u1", decoded["user_id"])
	assert.ElementsMatch(t, []any{"read_ssn"}, decoded["permissions"])
}

func TestMarshalJSONNil(t *testing.T) {
	var u *UserContext
	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestAnonymous(t *testing.T) {
	a := Anonymous()
	assert.Equal(t, "anonymous", a.UserID)
	assert.Equal(t, "anonymous", a.Role)
}
