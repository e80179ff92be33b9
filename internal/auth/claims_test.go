package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-at-least-32-characters!!"

func TestGenerateAndParseToken(t *testing.T) {
	signed, err := GenerateToken(testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(signed, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "garminapi" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("token has no JTI")
	}

	wantExpiry := time.Now().Add(60 * time.Minute)
	if diff := claims.ExpiresAt.Time.Sub(wantExpiry); diff > time.Minute || diff < -time.Minute {
		t.Errorf("expiry off by %v", diff)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	signed, err := GenerateToken(testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ParseToken(signed, "a-different-secret-entirely-here"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("wrong secret error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "garminapi",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	if _, err := ParseToken(signed, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expired token error = %v, want ErrTokenInvalid", err)
	}
}

// Tokens signed with "none" or any non-HS256 algorithm must be rejected.
func TestParseTokenWrongAlgorithm(t *testing.T) {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "garminapi"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("building none-alg token: %v", err)
	}

	if _, err := ParseToken(unsigned, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("none-alg token error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseTokenWrongSubject(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "somebody-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	if _, err := ParseToken(signed, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("wrong subject error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	if _, err := ParseToken("not.a.jwt", testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("garbage token error = %v, want ErrTokenInvalid", err)
	}
	if _, err := ParseToken(strings.Repeat("x", 100), testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("malformed token error = %v, want ErrTokenInvalid", err)
	}
}
