package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/services/northpole/api"
)

func TestErrorHandlingMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		expectedCode int
		expectedType string
		expectedMsg  string
	}{
		{
			name: "kerror",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(kerror.Create("UnknownWorkerClass", "uh, what kind of job is this?").
					WithErrorCode(kerror.EC_INVALID_PARAMETER))
			},
			expectedCode: http.StatusBadRequest,
			expectedType: "UnknownWorkerClass",
			expectedMsg:  "uh, what kind of job is this?",
		},
		{
			name: "plain error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(fmt.Errorf("some error"))
			},
			expectedCode: http.StatusInternalServerError,
			expectedType: "InternalServerError",
			expectedMsg:  "an unexpected error occurred",
		},
		{
			name: "string panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("some panic message")
			},
			expectedCode: http.StatusInternalServerError,
			expectedType: "UnknownPanic",
			expectedMsg:  "unexpected panic with non-error value",
		},
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			expectedCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			rr := httptest.NewRecorder()
			ErrorHandlingMiddleware(tt.handler).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedCode, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			if tt.expectedType == "" {
				return
			}
			var resp api.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.expectedType, resp.Error)
			assert.Equal(t, tt.expectedMsg, resp.Msg)
		})
	}
}

func TestErrorHandlingMiddlewareCodeMapping(t *testing.T) {
	tests := []struct {
		errorCode    kerror.ErrorCode
		expectedHTTP int
	}{
		{kerror.EC_INVALID_PARAMETER, http.StatusBadRequest},
		{kerror.EC_NOT_FOUND, http.StatusNotFound},
		{kerror.EC_CONFLICT, http.StatusConflict},
		{kerror.EC_PRECONDITION_FAILED, http.StatusPreconditionFailed},
		{kerror.EC_TIMEOUT, http.StatusRequestTimeout},
		{kerror.EC_INTERNAL_ERROR, http.StatusServiceUnavailable},
		{kerror.EC_RETRYABLE, http.StatusTooManyRequests},
		{kerror.EC_UNKNOWN, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.errorCode), func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(kerror.Create("TestError", "test error").WithErrorCode(tt.errorCode))
			})
			rr := httptest.NewRecorder()
			ErrorHandlingMiddleware(handler).ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, tt.expectedHTTP, rr.Code)
		})
	}
}
