// Package identity defines UserContext (spec §3.4), the authenticated
// principal carried through one request. Production authentication itself
// (OAuth flows, token validation) is the external Identity Provider
// collaborator named in spec §1; this package only defines the shape that
// collaborator produces and the context plumbing consumers rely on.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
)

// UserContext is the authenticated subject of one invocation. Role and
// Permissions are first-class fields, not buried in Extra, since policy
// conditions (spec §3.3) reference user.role and membership in
// user.permissions by name.
type UserContext struct {
	// UserID identifies the principal (e.g. the 'sub' claim).
	UserID string `json:"user_id,omitempty"`
	// Role is a single coarse role claim used by policy conditions.
	Role string `json:"role,omitempty"`
	// Permissions is the set of fine-grained permission strings granted to
	// this principal.
	Permissions map[string]struct{} `json:"-"`
	// Provider names the Identity Provider that authenticated this request.
	Provider string `json:"provider,omitempty"`
	// Extra carries any additional claims the provider supplied, available
	// to policy conditions as user.extra.<key>.
	Extra map[string]any `json:"extra,omitempty"`
}

// HasPermission reports whether the permission set contains name.
func (u *UserContext) HasPermission(name string) bool {
	if u == nil {
		return false
	}
	_, ok := u.Permissions[name]
	return ok
}

// PermissionsList returns the permission set as a sorted-free slice, the
// shape the policy engine's CEL bindings use for 'in' membership tests.
func (u *UserContext) PermissionsList() []string {
	if u == nil {
		return nil
	}
	out := make([]string, 0, len(u.Permissions))
	for p := range u.Permissions {
		out = append(out, p)
	}
	return out
}

// String gives UserContext a stable, safe representation for logging.
// Nothing here needs redacting since UserContext itself never carries
// tokens or secrets, only identity claims.
func (u *UserContext) String() string {
	if u == nil {
		return "<anonymous>"
	}
	return fmt.Sprintf("UserContext{UserID:%q, Role:%q}", u.UserID, u.Role)
}

// MarshalJSON flattens Permissions into a sorted-free string slice so the
// context can be embedded directly in audit records and policy bindings.
func (u *UserContext) MarshalJSON() ([]byte, error) {
	if u == nil {
		return []byte("null"), nil
	}
	type safeUserContext struct {
		UserID      string         `json:"user_id,omitempty"`
		Role        string         `json:"role,omitempty"`
		Permissions []string       `json:"permissions,omitempty"`
		Provider    string         `json:"provider,omitempty"`
		Extra       map[string]any `json:"extra,omitempty"`
	}
	return json.Marshal(&safeUserContext{
		UserID:      u.UserID,
		Role:        u.Role,
		Permissions: u.PermissionsList(),
		Provider:    u.Provider,
		Extra:       u.Extra,
	})
}

// Anonymous returns the unauthenticated UserContext used when no Identity
// Provider claim is available, a workable default for local/testing use.
func Anonymous() *UserContext {
	return &UserContext{UserID: "anonymous", Role: "anonymous", Provider: "none"}
}

// contextKey is an unexported type so keys in this package never collide
// with keys set by other packages using context.WithValue.
type contextKey struct{}

// WithUserContext stores u in ctx. A nil u leaves ctx unchanged.
func WithUserContext(ctx context.Context, u *UserContext) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext retrieves the UserContext stored in ctx, if any.
func FromContext(ctx context.Context) (*UserContext, bool) {
	u, ok := ctx.Value(contextKey{}).(*UserContext)
	return u, ok
}
