// Package auth validates the bearer tokens that identify the caller of the
// newsfeed endpoints. Tokens are issued by the account service; this package
// only mints them for tests and local tooling.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type constants for the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// AccessTokenExpiry is the lifetime of tokens minted by GenerateAccessToken.
const AccessTokenExpiry = 15 * time.Minute

// DefaultLeeway is the clock skew tolerated when validating expiry.
const DefaultLeeway = 30 * time.Second

var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")

	// ErrWrongTokenType is returned when a refresh token is presented as a bearer token.
	ErrWrongTokenType = errors.New("token is not an access token")

	// ErrEmptyUserID is returned when a token carries no subject.
	ErrEmptyUserID = errors.New("userID cannot be empty")
)

// Claims represents the JWT claims understood by the service.
// The user ID travels in the standard sub claim.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// Options configures a JWTService.
type Options struct {
	// Secret signs and validates tokens.
	Secret string
	// PreviousSecret still validates tokens during a key rotation. Optional.
	PreviousSecret string
	// Leeway defaults to DefaultLeeway.
	Leeway time.Duration
}

// JWTService validates HS256 tokens. Tokens are signed with the current
// secret and accepted under either the current or the previous one.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
}

// NewJWTService creates a new JWTService.
func NewJWTService(opts Options) *JWTService {
	svc := &JWTService{
		currentSecret: []byte(opts.Secret),
		leeway:        opts.Leeway,
	}
	if svc.leeway <= 0 {
		svc.leeway = DefaultLeeway
	}
	if opts.PreviousSecret != "" {
		svc.previousSecret = []byte(opts.PreviousSecret)
	}
	return svc
}

// GenerateAccessToken mints an access token for userID.
func (s *JWTService) GenerateAccessToken(userID string) (string, error) {
	return s.generate(userID, TokenTypeAccess, AccessTokenExpiry)
}

func (s *JWTService) generate(userID, typ string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.currentSecret)
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, s.currentSecret)
	if err != nil && s.previousSecret != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		claims, err = s.parse(tokenString, s.previousSecret)
	}

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	default:
		return nil, ErrInvalidToken
	}
}

// UserID validates an access token and returns its subject.
func (s *JWTService) UserID(tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Type != TokenTypeAccess {
		return "", ErrWrongTokenType
	}
	if claims.Subject == "" {
		return "", ErrEmptyUserID
	}
	return claims.Subject, nil
}

func (s *JWTService) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithLeeway(s.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
