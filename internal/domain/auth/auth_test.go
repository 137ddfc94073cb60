package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	claims := Claims{UserID: "emp-1", RoleName: RoleHR}

	token, err := GenerateToken(secret, claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed.UserID != claims.UserID || parsed.RoleName != claims.RoleName {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
	if parsed.Subject != "emp-1" {
		t.Fatalf("expected subject emp-1, got %q", parsed.Subject)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("right", Claims{UserID: "emp-1", RoleName: RoleEmployee}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("wrong", token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("secret", Claims{UserID: "emp-1", RoleName: RoleEmployee}, -time.Minute)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestUserContextIsHR(t *testing.T) {
	cases := map[string]bool{RoleEmployee: false, RoleManager: false, RoleHR: true, RoleAdmin: true}
	for role, want := range cases {
		if got := (UserContext{RoleName: role}).IsHR(); got != want {
			t.Fatalf("role %s: expected %v, got %v", role, want, got)
		}
	}
}
