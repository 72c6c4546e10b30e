package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("loading order: %w", NotFound("order not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Infrastructure("publishing event", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInfrastructure)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{Validation(FieldError{Field: "token", Message: "is required"}), http.StatusBadRequest},
		{BusinessRule("Cannot pay for an cancelled order"), http.StatusBadRequest},
		{Unauthenticated(), http.StatusUnauthorized},
		{NotAuthorized(), http.StatusForbidden},
		{NotFound("Not Found"), http.StatusNotFound},
		{Conflict("version conflict"), http.StatusConflict},
		{Infrastructure("db down", nil), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestSerialize(t *testing.T) {
	fields := Serialize(Validation(
		FieldError{Field: "token", Message: "Token must be provided"},
		FieldError{Field: "orderId", Message: "OrderId must be provided"},
	))
	assert.Len(t, fields, 2)
	assert.Equal(t, "orderId", fields[1].Field)

	assert.Equal(t, []FieldError{{Message: "Not Found"}}, Serialize(NotFound("Not Found")))
	assert.Equal(t, []FieldError{{Message: "Something went wrong"}}, Serialize(errors.New("sql: no rows")))
	assert.Equal(t, []FieldError{{Message: "Something went wrong"}}, Serialize(Infrastructure("secret dsn", nil)))
}
