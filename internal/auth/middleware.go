package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vdavid/cqmail/internal/models"
)

type contextKey string

// IdentityKey is the context key used to store the authenticated caller.
const IdentityKey contextKey = "identity"

// Claims are the bearer token claims. The subject is the user id.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens issued with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// ValidateToken checks the signature and expiry of token and returns the identity
// it carries. Tokens without a subject or account id are rejected.
func (v *Verifier) ValidateToken(token string) (models.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return models.Identity{}, errors.New("token is empty")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	if claims.Subject == "" || claims.AccountID == "" {
		return models.Identity{}, errors.New("token is missing sub or account_id")
	}

	return models.Identity{
		UserID:    claims.Subject,
		AccountID: claims.AccountID,
		Email:     claims.Email,
	}, nil
}

// RequireAuth middleware checks for a valid bearer token in the Authorization header
// and stores the caller's identity in the request context. Returns 401 Unauthorized
// if authentication fails.
func (v *Verifier) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			log.Println("Auth: Missing or malformed Authorization header")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		identity, err := v.ValidateToken(token)
		if err != nil {
			log.Printf("Auth: Token validation failed: %v", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// BearerToken extracts the token from an Authorization header value.
// The scheme is case-insensitive (RFC 7235).
func BearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(strings.Join(fields[1:], " "))
	return token, token != ""
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFromContext returns the caller's identity from the context.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(models.Identity)
	return identity, ok
}
