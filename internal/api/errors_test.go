package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/newsfeed/internal/feed"
	"github.com/onnwee/newsfeed/internal/middleware"
	"github.com/onnwee/newsfeed/internal/profile"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		code    string
		message string
	}{
		{"validation", http.StatusBadRequest, ErrCodeValidation, "limit must be between 1 and 100"},
		{"forbidden", http.StatusForbidden, ErrCodeForbidden, "Cannot generate another user's newsfeed"},
		{"rate limited", http.StatusTooManyRequests, ErrCodeRateLimited, "Too many newsfeed generations"},
		{"quoted message", http.StatusBadRequest, ErrCodeBadRequest, `user "a\b" is <invalid>`},
		{"empty message", http.StatusInternalServerError, ErrCodeInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, context.Background(), tt.status, tt.code, tt.message)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q", ct)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response %s: %v", w.Body.String(), err)
			}
			if resp.Error.Code != tt.code || resp.Error.Message != tt.message {
				t.Errorf("error = %+v, want {%s %s}", resp.Error, tt.code, tt.message)
			}
		})
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeAuthFailed, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeUserNotFound, http.StatusNotFound},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeCacheUnavailable, http.StatusServiceUnavailable},
		{ErrCodeCacheWriteFailed, http.StatusServiceUnavailable},
		{ErrCodeStoreTimeout, http.StatusGatewayTimeout},
		{ErrCodeInternal, http.StatusInternalServerError},
		{"unknown_code", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := StatusCodeMapping(tt.code); got != tt.want {
				t.Errorf("StatusCodeMapping(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestWriteFeedError(t *testing.T) {
	genErr := func(stage feed.Stage, err error) error {
		return &feed.GenerationError{UserID: "u1", Stage: stage, Err: err}
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantLevel  string
	}{
		{
			name:       "empty user",
			err:        genErr(feed.StageStart, feed.ErrEmptyUserID),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
			wantLevel:  "WARN",
		},
		{
			name:       "unknown user",
			err:        genErr(feed.StageNormalizingProfile, profile.ErrUserNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeUserNotFound,
			wantLevel:  "WARN",
		},
		{
			name:       "profile query timed out",
			err:        genErr(feed.StageNormalizingProfile, fmt.Errorf("%w: %w", feed.ErrStoreTimeout, context.DeadlineExceeded)),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeStoreTimeout,
			wantLevel:  "ERROR",
		},
		{
			name:       "pool read timed out",
			err:        genErr(feed.StageReadingCandidates, fmt.Errorf("%w: %w: %v", feed.ErrCacheUnavailable, feed.ErrStoreTimeout, context.DeadlineExceeded)),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeStoreTimeout,
			wantLevel:  "ERROR",
		},
		{
			name:       "cache write timed out",
			err:        genErr(feed.StageWritingCache, fmt.Errorf("replace feed: %w", fmt.Errorf("%w: %w: %v", feed.ErrCacheWriteFailed, feed.ErrStoreTimeout, context.DeadlineExceeded))),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeStoreTimeout,
			wantLevel:  "ERROR",
		},
		{
			name:       "cache write rejected",
			err:        genErr(feed.StageWritingCache, fmt.Errorf("replace feed: %w", fmt.Errorf("%w: OOM", feed.ErrCacheWriteFailed))),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeCacheWriteFailed,
			wantLevel:  "ERROR",
		},
		{
			name:       "cache unreachable",
			err:        genErr(feed.StageReadingCandidates, fmt.Errorf("%w: connection refused", feed.ErrCacheUnavailable)),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeCacheUnavailable,
			wantLevel:  "ERROR",
		},
		{
			name:       "unclassified",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternal,
			wantLevel:  "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := slog.New(slog.NewJSONHandler(buf, nil))
			handler := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeFeedError(w, r, tt.err)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/me/newsfeed", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
			if resp.Error.Message == "" {
				t.Error("expected a message")
			}

			var entry struct {
				Level     string `json:"level"`
				ErrorCode string `json:"error_code"`
			}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to parse log entry %s: %v", buf.String(), err)
			}
			if entry.ErrorCode != tt.wantCode {
				t.Errorf("logged error_code = %q, want %q", entry.ErrorCode, tt.wantCode)
			}
			if entry.Level != tt.wantLevel {
				t.Errorf("logged level = %q, want %q", entry.Level, tt.wantLevel)
			}
		})
	}
}
