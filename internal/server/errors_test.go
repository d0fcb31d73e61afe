package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	journaldomain "github.com/smallbiznis/virtuepath/internal/journal/domain"
	organizationdomain "github.com/smallbiznis/virtuepath/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/virtuepath/internal/payment/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("join: %w", organizationdomain.ErrCapacityReached), http.StatusConflict, "conflict"},
		{organizationdomain.ErrLastAdmin, http.StatusConflict, "conflict"},
		{organizationdomain.ErrInvalidMaxUsers, http.StatusBadRequest, "validation_error"},
		{journaldomain.ErrEntryNotFound, http.StatusNotFound, "not_found"},
		{paymentdomain.ErrProviderUnavailable, http.StatusBadGateway, "service_unavailable"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{ErrContextUnavailable, http.StatusInternalServerError, "internal_error"},
		{errors.New("pq: deadlock detected"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, payload.Type, tc.err.Error())
	}
}

func TestMapErrorHidesInternalDetail(t *testing.T) {
	_, payload := mapError(errors.New("dial tcp 10.0.0.3:5432: connection refused"))
	assert.Equal(t, "internal server error", payload.Error)
}

func TestValidationErrorField(t *testing.T) {
	_, payload := mapError(journaldomain.ErrInvalidTitle)
	assert.Len(t, payload.Errors, 1)
	assert.Equal(t, "title", payload.Errors[0].Field)
	assert.Equal(t, "invalid_title", payload.Errors[0].Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(organizationdomain.ErrCapacityReached)
	assert.Equal(t, "conflict", kind)
	assert.Equal(t, "organization_capacity_reached", code)

	kind, code = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "internal_error", kind)
	assert.Equal(t, "internal_error", code)
}
