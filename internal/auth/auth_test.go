package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/gerrymanoim/to-listen/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestJWTVerifier(t *testing.T) {
	verifier := NewJWTVerifier(testKey, "to-listen")

	t.Run("Valid Token", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"sub":  "user-1",
			"iss":  "to-listen",
			"name": "Someone",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})

		claims, err := verifier.Verify(token)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if claims.Subject != "user-1" {
			t.Errorf("expected subject 'user-1', got %q", claims.Subject)
		}
		if claims.Raw["name"] != "Someone" {
			t.Errorf("expected raw claims preserved, got %v", claims.Raw)
		}
	})

	t.Run("Empty Token", func(t *testing.T) {
		_, err := verifier.Verify("")
		if !errors.Is(err, shared.ErrInvalidIdentityToken) {
			t.Errorf("expected ErrInvalidIdentityToken, got %v", err)
		}
	})

	t.Run("Malformed Token", func(t *testing.T) {
		_, err := verifier.Verify("not-a-jwt")
		if !errors.Is(err, shared.ErrInvalidIdentityToken) {
			t.Errorf("expected ErrInvalidIdentityToken, got %v", err)
		}
	})

	t.Run("Expired Token", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"sub": "user-1",
			"iss": "to-listen",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		_, err := verifier.Verify(token)
		if !errors.Is(err, shared.ErrInvalidIdentityToken) {
			t.Errorf("expected ErrInvalidIdentityToken, got %v", err)
		}
	})

	t.Run("Wrong Issuer", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"sub": "user-1",
			"iss": "someone-else",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		_, err := verifier.Verify(token)
		if !errors.Is(err, shared.ErrInvalidIdentityToken) {
			t.Errorf("expected ErrInvalidIdentityToken, got %v", err)
		}
	})

	t.Run("Missing Subject", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"iss": "to-listen",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		_, err := verifier.Verify(token)
		if !errors.Is(err, shared.ErrInvalidIdentityToken) {
			t.Errorf("expected ErrInvalidIdentityToken, got %v", err)
		}
	})

	t.Run("Wrong Key", func(t *testing.T) {
		other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user-1",
			"iss": "to-listen",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("other-key"))
		if err != nil {
			t.Fatal(err)
		}

		if _, err := verifier.Verify(other); !errors.Is(err, shared.ErrInvalidIdentityToken) {
			t.Errorf("expected ErrInvalidIdentityToken, got %v", err)
		}
	})
}
