package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// TokenValidator resolves a bearer token to a user ID.
type TokenValidator interface {
	UserID(token string) (string, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// token and stores the token's user ID in the request context.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, r.Context(), "Missing bearer token")
				return
			}

			userID, err := validator.UserID(token)
			if err != nil {
				unauthorized(w, r.Context(), "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(SetUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type authError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func unauthorized(w http.ResponseWriter, ctx context.Context, message string) {
	var body authError
	body.Error.Code = "auth_failed"
	body.Error.Message = message

	UpdateResponseContext(w, SetErrorCode(ctx, body.Error.Code))
	w.Header().Set("WWW-Authenticate", `Bearer realm="newsfeed"`)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}
