// Package api provides the HTTP boundary of the newsfeed service, including
// standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/newsfeed/internal/feed"
	"github.com/onnwee/newsfeed/internal/middleware"
	"github.com/onnwee/newsfeed/internal/profile"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeUserNotFound indicates no preference profile exists for the user.
	ErrCodeUserNotFound = "user_not_found"

	// ErrCodeCacheUnavailable indicates the ordered-set cache could not be read.
	ErrCodeCacheUnavailable = "cache_unavailable"

	// ErrCodeCacheWriteFailed indicates the user's feed could not be replaced.
	ErrCodeCacheWriteFailed = "cache_write_failed"

	// ErrCodeStoreTimeout indicates a store call exceeded its deadline.
	ErrCodeStoreTimeout = "store_timeout"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The logging middleware records the error code when the caller sets it on
// ctx first:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeUserNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeUserNotFound, "User not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound, ErrCodeUserNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeCacheUnavailable, ErrCodeCacheWriteFailed:
		return http.StatusServiceUnavailable
	case ErrCodeStoreTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// feedErrorCode classifies a newsfeed error. Timeouts are checked first since
// they are reported together with the cache sentinel they happened in.
func feedErrorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, feed.ErrEmptyUserID):
		return ErrCodeValidation, "User ID is required"
	case errors.Is(err, profile.ErrUserNotFound):
		return ErrCodeUserNotFound, "User not found"
	case errors.Is(err, feed.ErrStoreTimeout):
		return ErrCodeStoreTimeout, "Newsfeed store timed out"
	case errors.Is(err, feed.ErrCacheWriteFailed):
		return ErrCodeCacheWriteFailed, "Failed to cache newsfeed"
	case errors.Is(err, feed.ErrCacheUnavailable):
		return ErrCodeCacheUnavailable, "Newsfeed cache unavailable"
	default:
		return ErrCodeInternal, "Failed to generate newsfeed"
	}
}

// writeFeedError maps err to its error code and status and writes it.
func writeFeedError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := feedErrorCode(err)
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, StatusCodeMapping(code), code, message)
}
