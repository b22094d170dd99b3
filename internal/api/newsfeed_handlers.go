package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/newsfeed/internal/feed"
	"github.com/onnwee/newsfeed/internal/middleware"
	"github.com/onnwee/newsfeed/internal/validate"
)

// Page size limits for GET /api/v1/me/newsfeed.
const (
	DefaultFeedPageSize = 20
	MaxFeedPageSize     = 100
)

// FeedGenerator recomputes and caches a user's newsfeed.
type FeedGenerator interface {
	Generate(ctx context.Context, userID string) (*feed.Result, error)
}

// GenerateResponse is returned after a successful generation.
type GenerateResponse struct {
	Message    string `json:"message"`
	UserID     string `json:"user_id"`
	Entries    int    `json:"entries"`
	Malformed  int    `json:"malformed"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// FeedEntry is one ranked post of a cached feed.
type FeedEntry struct {
	Post  string  `json:"post"`
	Score float64 `json:"score"`
}

// FeedPageResponse is a page of the caller's cached feed. Cached is false when
// no feed exists or it has expired.
type FeedPageResponse struct {
	UserID     string      `json:"user_id"`
	Cached     bool        `json:"cached"`
	Offset     int         `json:"offset"`
	Limit      int         `json:"limit"`
	TTLSeconds int64       `json:"ttl_seconds,omitempty"`
	Entries    []FeedEntry `json:"entries"`
}

// NewsfeedHandlers holds dependencies for newsfeed HTTP handlers.
type NewsfeedHandlers struct {
	generator FeedGenerator
	reader    feed.FeedReader
	logger    *slog.Logger
}

// NewNewsfeedHandlers creates a new NewsfeedHandlers instance.
func NewNewsfeedHandlers(generator FeedGenerator, reader feed.FeedReader, logger *slog.Logger) *NewsfeedHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &NewsfeedHandlers{
		generator: generator,
		reader:    reader,
		logger:    logger,
	}
}

// GenerateMine handles POST /api/v1/me/newsfeed for the authenticated user.
func (h *NewsfeedHandlers) GenerateMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}
	h.generate(w, r, userID)
}

// GenerateForUser handles POST /api/v1/users/{id}/newsfeed. The token must
// belong to the same user.
func (h *NewsfeedHandlers) GenerateForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := extractUserID(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "User ID is required")
		return
	}
	if _, err := validate.UserID(userID); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid user ID")
		return
	}

	if caller := middleware.GetUserID(r.Context()); caller != userID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Cannot generate another user's newsfeed")
		return
	}
	h.generate(w, r, userID)
}

func (h *NewsfeedHandlers) generate(w http.ResponseWriter, r *http.Request, userID string) {
	res, err := h.generator.Generate(r.Context(), userID)
	if err != nil {
		writeFeedError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, GenerateResponse{
		Message:    fmt.Sprintf("User %s newsfeed cached.", userID),
		UserID:     userID,
		Entries:    res.Entries,
		Malformed:  res.Malformed,
		TTLSeconds: int64(res.TTL.Seconds()),
	})
}

// GetMine handles GET /api/v1/me/newsfeed?offset=&limit= and returns a page of
// the caller's cached feed, highest score first.
func (h *NewsfeedHandlers) GetMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	offset, limit, msg := parsePage(r)
	if msg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}

	response := FeedPageResponse{
		UserID:  userID,
		Offset:  offset,
		Limit:   limit,
		Entries: []FeedEntry{},
	}

	// Entries are read before the TTL so a key that expires in between
	// is never reported as cached without its entries.
	entries, err := h.reader.ReadFeed(r.Context(), userID, offset, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read newsfeed", "user_id", userID, "error", err)
		writeFeedError(w, r, err)
		return
	}

	ttl, err := h.reader.FeedTTL(r.Context(), userID)
	switch {
	case errors.Is(err, feed.ErrFeedNotFound):
		response.Cached = len(entries) > 0
	case err != nil:
		h.logger.ErrorContext(r.Context(), "failed to read newsfeed ttl", "user_id", userID, "error", err)
		writeFeedError(w, r, err)
		return
	default:
		response.Cached = true
		response.TTLSeconds = int64(ttl.Seconds())
	}

	for _, e := range entries {
		response.Entries = append(response.Entries, FeedEntry{Post: e.PostID, Score: e.Score})
	}
	writeJSON(w, r, http.StatusOK, response)
}

// extractUserID extracts the user ID from /api/v1/users/{id}/newsfeed.
func extractUserID(r *http.Request) (string, error) {
	if id := r.PathValue("id"); id != "" {
		return id, nil
	}
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/users/"), "/")
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] != "newsfeed" {
		return "", fmt.Errorf("user ID is required")
	}
	return pathParts[0], nil
}

// parsePage reads offset and limit. limit defaults to 20 and is capped at 100.
// A non-empty message reports an invalid parameter.
func parsePage(r *http.Request) (offset, limit int, msg string) {
	limit = DefaultFeedPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			return 0, 0, "Invalid limit parameter"
		}
		limit = min(parsed, MaxFeedPageSize)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			return 0, 0, "Invalid offset parameter"
		}
		offset = parsed
	}
	return offset, limit, ""
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
