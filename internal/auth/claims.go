package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IdentityClaims extends JWT standard claims with the web client's identity.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	IsAdmin bool   `json:"admin"`
}

// IssueIdentityToken creates a signed identity token.
func IssueIdentityToken(email string, isAdmin bool, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Email:   email,
		IsAdmin: isAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing identity token: %w", err)
	}
	return signed, nil
}

// ParseIdentityToken validates a token and returns its claims.
func ParseIdentityToken(tokenString, secret string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrTokenInvalid)
	}
	return claims, nil
}

// Verifier checks identify tokens against a shared secret.
type Verifier struct {
	secret   string
	required bool
}

// NewVerifier creates a Verifier. With required set, identifies without a
// token are rejected.
func NewVerifier(secret string, required bool) *Verifier {
	return &Verifier{secret: secret, required: required}
}

// Verify returns the claims of token. An empty token yields nil claims when
// tokens are optional, meaning the client's declared identity is used.
func (v *Verifier) Verify(token string) (*IdentityClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		if v.required {
			return nil, ErrTokenRequired
		}
		return nil, nil
	}
	if v.secret == "" {
		return nil, fmt.Errorf("%w: no signing secret configured", ErrTokenInvalid)
	}
	return ParseIdentityToken(token, v.secret)
}
