package auth

import (
	"context"
	"testing"
	"time"
)

func newTestIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "kettle-api",
		Audience:      "kettle-admin",
		TokenTTL:      15 * time.Minute,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuer := newTestIssuer(nil)

	token, expiresIn, err := issuer.IssueAdminToken(context.Background(), "moderator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry %d", expiresIn)
	}

	subject, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "moderator" {
		t.Fatalf("expected subject moderator, got %q", subject)
	}
}

func TestIssueAdminTokenRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(nil)
	if _, _, err := issuer.IssueAdminToken(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	issuer := newTestIssuer(func() time.Time { return current })

	token, _, err := issuer.IssueAdminToken(context.Background(), "moderator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = current.Add(16 * time.Minute)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatal("expected expired token to fail validation")
	}
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(nil)
	foreign := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("some-other-secret"),
		Issuer:        "kettle-api",
		Audience:      "kettle-admin",
	})

	token, _, err := foreign.IssueAdminToken(context.Background(), "moderator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatal("expected foreign-signed token to fail validation")
	}
}
