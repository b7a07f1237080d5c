package apperr_test

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"keyframes-backend/internal/apperr"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("duration", "must be positive"), http.StatusBadRequest},
		{apperr.NotFound("track", "abc"), http.StatusNotFound},
		{apperr.Conflict("position %d is taken", 1), http.StatusConflict},
		{apperr.External("export", sql.ErrConnDone), http.StatusBadGateway},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, apperr.HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestWrappedErrorsAreClassified(t *testing.T) {
	err := fmt.Errorf("failed to create item: %w", apperr.NotFound("media asset", "42"))

	assert.True(t, apperr.IsNotFound(err))
	assert.False(t, apperr.IsValidation(err))
	assert.Equal(t, "not_found", apperr.Code(err))
	assert.Contains(t, err.Error(), "media asset 42 not found")
}

func TestExternalNilIsNil(t *testing.T) {
	assert.NoError(t, apperr.External("registry", nil))
}

func TestExternalUnwraps(t *testing.T) {
	err := apperr.External("registry", sql.ErrConnDone)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
