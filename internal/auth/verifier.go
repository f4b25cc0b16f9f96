package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roomchat/internal/models"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNoSigningKey      = errors.New("jwt signing key is empty")
)

// Verifier resolves a raw credential to the user it identifies.
type Verifier interface {
	Verify(ctx context.Context, raw string) (models.UserRef, error)
}

// Claims is the access token payload.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 access tokens signed with a shared secret.
// A verifier without a secret rejects every token and issues none.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, raw string) (models.UserRef, error) {
	if raw == "" {
		return models.UserRef{}, ErrMissingCredential
	}

	if len(v.secret) == 0 {
		return models.UserRef{}, fmt.Errorf("%w: %w", ErrInvalidCredential, ErrNoSigningKey)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return models.UserRef{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.UserID <= 0 {
		return models.UserRef{}, fmt.Errorf("%w: missing user_id claim", ErrInvalidCredential)
	}
	return models.UserRef{ID: claims.UserID, Username: claims.Username}, nil
}

// Issue signs an access token for user valid for ttl.
func (v *JWTVerifier) Issue(user models.UserRef, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSigningKey
	}
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an "Authorization: Bearer" header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// CredentialFromRequest reads the credential from the "token" query
// parameter, falling back to the Authorization header.
func CredentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token, _ := BearerToken(r.Header.Get("Authorization"))
	return token
}
