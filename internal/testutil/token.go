package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestJWTSecret is the secret SignTestToken signs with.
const TestJWTSecret = "test-jwt-secret"

// SignTestToken returns an HS256 token for the given user and account that
// expires in an hour.
func SignTestToken(t *testing.T, userID, accountID, email string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        userID,
		"account_id": accountID,
		"email":      email,
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	signed, err := token.SignedString([]byte(TestJWTSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}
