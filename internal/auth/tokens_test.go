package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "oneiros-auth",
		Audience:      "oneiros-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
}

func TestIssueAndValidateToken(t *testing.T) {
	issuer := newTestIssuer(func() time.Time { return time.Unix(1700000000, 0).UTC() })

	token, expiresIn, err := issuer.IssueToken(context.Background(), "journal-owner")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("expected one hour expiry, got %d", expiresIn)
	}

	subject, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if subject != "journal-owner" {
		t.Fatalf("expected journal-owner subject, got %q", subject)
	}
}

func TestIssueTokenRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(nil)

	if _, _, err := issuer.IssueToken(context.Background(), ""); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected missing subject, got %v", err)
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{})

	if _, _, err := issuer.IssueToken(context.Background(), "journal-owner"); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	issued := time.Unix(1700000000, 0).UTC()
	current := issued
	issuer := newTestIssuer(func() time.Time { return current })

	token, _, err := issuer.IssueToken(context.Background(), "journal-owner")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	current = issued.Add(2 * time.Hour)
	if _, err := issuer.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := newTestIssuer(nil)
	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("different-secret"),
		Issuer:        "oneiros-auth",
		Audience:      "oneiros-api",
	})

	token, _, err := other.IssueToken(context.Background(), "journal-owner")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := issuer.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	issuer := newTestIssuer(nil)
	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "oneiros-auth",
		Audience:      "someone-else",
	})

	token, _, err := other.IssueToken(context.Background(), "journal-owner")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := issuer.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestValidateTokenRejectsUnexpectedAlgorithm(t *testing.T) {
	issuer := newTestIssuer(nil)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:  "journal-owner",
		Issuer:   "oneiros-auth",
		Audience: []string{"oneiros-api"},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected signing error: %v", err)
	}

	if _, err := issuer.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	issuer := newTestIssuer(nil)

	if _, err := issuer.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
