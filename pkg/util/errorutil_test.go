package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorPassesThroughWrapped(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", NewInvalidCredentials())

	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, CodeInvalidCredentials, de.Code)
	assert.Equal(t, http.StatusUnauthorized, de.HTTPStatus)
}

func TestToDomainErrorWrapsUnknownAsInfrastructure(t *testing.T) {
	cause := errors.New("connection refused")

	de := ToDomainError(cause)
	assert.Equal(t, CodeInfrastructure, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.Equal(t, "internal server error", de.Message)
	assert.ErrorIs(t, de, cause)
}

func TestInfrastructureTimeoutIsRetryable(t *testing.T) {
	de := ToDomainError(NewInfrastructure(fmt.Errorf("get user: %w", context.DeadlineExceeded)))
	assert.Equal(t, CodeInfrastructure, de.Code)
	assert.Equal(t, true, de.Details["retryable"])
}

func TestSecondFactorRequiredCarriesUser(t *testing.T) {
	de := ToDomainError(NewSecondFactorRequired("u-42"))
	assert.Equal(t, "u-42", de.Details["userId"])
	assert.Equal(t, true, de.Details["requires2FA"])
	assert.True(t, IsCode(de, CodeSecondFactorRequired))
	assert.False(t, IsCode(de, CodeForbidden))
}
