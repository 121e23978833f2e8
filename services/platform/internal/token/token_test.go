package token

import (
	"testing"
	"time"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	token, expiresIn, err := issuer.Sign("u1", "a@b.c")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("expiresIn = %d, want 3600", expiresIn)
	}

	uid, email, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if uid != "u1" || email != "a@b.c" {
		t.Fatalf("claims = (%q, %q)", uid, email)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer, _ := NewIssuer("secret-a", time.Hour)
	other, _ := NewIssuer("secret-b", time.Hour)

	token, _, err := issuer.Sign("u1", "a@b.c")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := other.Verify(token); err == nil {
		t.Fatal("token signed with a different secret must be rejected")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer, _ := NewIssuer("test-secret", time.Nanosecond)
	token, _, err := issuer.Sign("u1", "a@b.c")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, _, err := issuer.Verify(token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("", time.Hour); err == nil {
		t.Fatal("empty secret must be rejected")
	}
}
