package mxerrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	withCause := New(KindBadInput, "bad param", errors.New("underlying"))
	assert.Equal(t, "bad_input: bad param: underlying", withCause.Error())

	noCause := New(KindInternal, "boom", nil)
	assert.Equal(t, "internal: boom", noCause.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := New(KindSQLExecution, "query failed", cause)
	assert.Same(t, cause, err.Unwrap())
}

func TestCheckersAndCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		code    int
	}{
		{"bad input", NewBadInput("x", nil), IsBadInput, http.StatusBadRequest},
		{"policy denied", NewPolicyDenied("x", nil), IsPolicyDenied, http.StatusForbidden},
		{"not found", NewNotFound("x", nil), IsNotFound, http.StatusNotFound},
		{"unavailable", NewUnavailable("x", nil), IsUnavailable, http.StatusServiceUnavailable},
		{"cancelled", NewCancelled("x", nil), IsCancelled, 499},
		{"no rows", NewNoRows("x", nil), IsNoRows, http.StatusInternalServerError},
		{"internal", NewInternal("x", nil), IsInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.checker(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}

	assert.False(t, IsBadInput(errors.New("plain")))
	assert.Equal(t, http.StatusInternalServerError, Code(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}
