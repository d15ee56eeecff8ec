package identity

import (
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	signer, err := NewTokenSigner("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}
	u := &User{ID: "u-1", Role: RoleSectorAdmin, Sector: SectorRH, IsActive: true}

	token, expiresAt, err := signer.Generate(u)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expiry not in the future")
	}

	claims, err := signer.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "u-1" || claims.Role != string(RoleSectorAdmin) || claims.Sector != string(SectorRH) {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenRejectsTampering(t *testing.T) {
	signer, _ := NewTokenSigner("test-secret", time.Minute)
	other, _ := NewTokenSigner("other-secret", time.Minute)
	u := &User{ID: "u-1", Role: RoleEmployee}

	token, _, err := signer.Generate(u)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := other.ParseAndValidate(token); err == nil {
		t.Error("token verified with the wrong secret")
	}
	if _, err := signer.ParseAndValidate(token + "x"); err == nil {
		t.Error("mangled token verified")
	}
	if _, err := signer.ParseAndValidate(""); err == nil {
		t.Error("empty token verified")
	}
}

func TestTokenExpiry(t *testing.T) {
	signer, err := NewTokenSigner("test-secret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	issued := time.Now().UTC()
	signer.now = func() time.Time { return issued }

	token, _, err := signer.Generate(&User{ID: "u-1", Role: RoleEmployee})
	if err != nil {
		t.Fatal(err)
	}

	signer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := signer.ParseAndValidate(token); err == nil {
		t.Error("expired token verified")
	}
}

func TestNewTokenSignerRequiresSecret(t *testing.T) {
	if _, err := NewTokenSigner("  ", time.Minute); err == nil || !strings.Contains(err.Error(), "secret") {
		t.Errorf("err = %v", err)
	}
}
