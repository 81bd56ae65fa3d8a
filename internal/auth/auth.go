// Package auth verifies the bearer tokens presented by chat clients.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token was supplied.
	ErrMissingToken = errors.New("there is no token in the Authorization header")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the identity attached to an authenticated session.
type Claims struct {
	UserID   uint
	Username string
}

// TokenVerifier turns a raw token into claims.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// HMACVerifier checks HS256/384/512 tokens against a shared secret.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier builds a verifier for the given shared secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token. Failures wrap ErrInvalidToken and keep
// the parser's reason in the message.
func (v *HMACVerifier) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("%w: unsupported claims", ErrInvalidToken)
	}

	userID, ok := extractUserID(mapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("%w: user id claim missing", ErrInvalidToken)
	}

	claims := Claims{UserID: userID}
	if username, ok := mapClaims["username"].(string); ok {
		claims.Username = strings.TrimSpace(username)
	}
	return claims, nil
}

// ExtractBearer returns the token part of an Authorization header value.
func ExtractBearer(header string) string {
	header = strings.TrimSpace(header)
	const bearer = "bearer "
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

// IssueToken signs an HS256 token for the user. The gateway never issues
// tokens to clients; this serves local tooling and tests.
func IssueToken(secret string, userID uint, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":       strconv.FormatUint(uint64(userID), 10),
		"username": username,
		"iat":      now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func extractUserID(claims jwt.MapClaims) (uint, bool) {
	for _, key := range []string{"id", "sub", "user_id"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		if id, err := normalizeUserID(value); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

func normalizeUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type")
	}
}
