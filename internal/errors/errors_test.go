package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceErrorCategories(t *testing.T) {
	cases := []struct {
		err      *ServiceError
		category Category
		status   int
	}{
		{InvalidLabels("bad"), CategoryValidation, http.StatusUnprocessableEntity},
		{PastCloseTime(1, 2), CategoryValidation, http.StatusUnprocessableEntity},
		{InvalidAddressList("bad"), CategoryValidation, http.StatusUnprocessableEntity},
		{MalformedAddress("allowedVoters", "xyz", nil), CategoryValidation, http.StatusUnprocessableEntity},
		{ChoiceOutOfRange(4, 3), CategoryValidation, http.StatusUnprocessableEntity},
		{NoChoiceSelected(), CategoryValidation, http.StatusUnprocessableEntity},
		{NoWalletConnected(), CategoryAuth, http.StatusUnauthorized},
		{FetchFailed(stderrors.New("dial")), CategoryRemote, http.StatusBadGateway},
		{SessionNotFound("abc"), CategoryRemote, http.StatusNotFound},
		{SubmissionRejected("Invalid choice index", nil), CategoryRemote, http.StatusBadGateway},
		{TransportFailure(stderrors.New("timeout")), CategoryRemote, http.StatusBadGateway},
		{NumericOverflow("count", "18446744073709551615"), CategoryDecode, http.StatusBadGateway},
		{MalformedAccount("abc", nil), CategoryDecode, http.StatusBadGateway},
		{OperationInFlight("vote"), CategoryConflict, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(string(tc.err.Code), func(t *testing.T) {
			assert.Equal(t, tc.category, tc.err.Category)
			assert.Equal(t, tc.status, tc.err.HTTPStatus)
			assert.NotEmpty(t, tc.err.Message)
		})
	}
}

func TestGetServiceErrorThroughWrapping(t *testing.T) {
	cause := stderrors.New("connection refused")
	wrapped := fmt.Errorf("list sessions: %w", FetchFailed(cause))

	se := GetServiceError(wrapped)
	if assert.NotNil(t, se) {
		assert.Equal(t, CodeFetchFailed, se.Code)
	}
	assert.True(t, HasCode(wrapped, CodeFetchFailed))
	assert.True(t, IsCategory(wrapped, CategoryRemote))
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, &ServiceError{Code: CodeFetchFailed})
	assert.Nil(t, GetServiceError(cause))
}

func TestMalformedAddressNamesToken(t *testing.T) {
	err := MalformedAddress("allowedVoters", "0OIl", nil)
	assert.Contains(t, err.Message, "0OIl")
	assert.Equal(t, "0OIl", err.Details["token"])
	assert.Equal(t, "allowedVoters", err.Field)
}
