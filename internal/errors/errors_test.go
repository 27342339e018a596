package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ossanalytics/ossanalytics/internal/core"
	"github.com/ossanalytics/ossanalytics/internal/core/fetch"
	"github.com/ossanalytics/ossanalytics/internal/server/middleware"
)

func TestWrapCollectClassifiesFailures(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"not found", &fetch.FetchError{URL: "https://api.github.com/repos/x/y", Status: 404, Attempts: 1}, CodeNotFound},
		{"rate limited", fmt.Errorf("collect d3: %w", &fetch.FetchError{Status: 403, Attempts: 1}), CodeRateLimited},
		{"upstream", &fetch.FetchError{Status: 500, Attempts: 1}, CodeExternalService},
		{"timeout", fmt.Errorf("wait: %w", context.DeadlineExceeded), CodeTimeout},
		{"empty", fmt.Errorf("d3-array: %w", core.ErrEmptyDataset), CodeEmptyDataset},
		{"invalid url", fetch.ErrInvalidURL, CodeInvalidInput},
		{"other", fmt.Errorf("boom"), CodeExternalService},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			envelope := WrapCollect(ctx, tc.err, "collect failed")
			require.Equal(t, tc.code, envelope.Code)
			require.NotEmpty(t, envelope.CorrelationID)
			require.Equal(t, tc.err.Error(), envelope.Context["wrapped_error"])
		})
	}
}

func TestWrapCollectRecordsFetchContext(t *testing.T) {
	envelope := WrapCollect(context.Background(), &fetch.FetchError{URL: "https://x", Status: 502, Attempts: 3}, "collect failed")
	require.Equal(t, "https://x", envelope.Context["url"])
	require.EqualValues(t, 502, envelope.Context["status"])
	require.EqualValues(t, 3, envelope.Context["attempts"])
}

func TestEnsureEnvelope(t *testing.T) {
	original := NewNotFoundError("missing")
	require.Same(t, original, EnsureEnvelope(fmt.Errorf("wrapped: %w", original)))

	generic := EnsureEnvelope(fmt.Errorf("boom"))
	require.Equal(t, CodeInternal, generic.Code)
	require.Equal(t, "boom", generic.Context["wrapped_error"])

	require.Equal(t, CodeInternal, EnsureEnvelope(nil).Code)
}

func TestHTTPStatusFromCode(t *testing.T) {
	require.Equal(t, http.StatusNotFound, HTTPStatusFromCode(CodeEmptyDataset))
	require.Equal(t, http.StatusTooManyRequests, HTTPStatusFromCode(CodeRateLimited))
	require.Equal(t, http.StatusBadGateway, HTTPStatusFromCode(CodeExternalService))
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_ELSE"))
}

func TestRespondWithErrorUsesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/datasets/missing", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDContextKey, "req-123"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, NewNotFoundError("dataset not found"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, CodeNotFound, body.Error.Code)
	require.Equal(t, "req-123", body.Error.RequestID)
}
