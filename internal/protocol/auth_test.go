package protocol

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthenticate_ValidBearerToken(t *testing.T) {
	secret := "0123456789012345678901234567890123456789"
	auth := NewAuthenticator(secret, nil, nil, "")
	token := signToken(t, secret, "client-a")

	id, err := auth.Authenticate("Bearer " + token)
	if err != nil {
		t.Fatalf("expected valid token to authenticate, got %v", err)
	}
	if id != "client-a" {
		t.Fatalf("expected client-a, got %s", id)
	}
}

func TestAuthenticate_WrongSigningKeyRejected(t *testing.T) {
	auth := NewAuthenticator("0123456789012345678901234567890123456789", nil, nil, "")
	token := signToken(t, "different-secret-aaaaaaaaaaaaaaaaaaaaaaaaa", "client-a")

	if _, err := auth.Authenticate("Bearer " + token); err == nil {
		t.Fatal("expected token signed with a different key to be rejected")
	}
}

func TestAuthenticate_MissingHeaderRejected(t *testing.T) {
	auth := NewAuthenticator("0123456789012345678901234567890123456789", nil, nil, "")
	if _, err := auth.Authenticate(""); err == nil {
		t.Fatal("expected empty header to be rejected")
	}
}

func TestAuthenticate_MalformedHeaderRejected(t *testing.T) {
	auth := NewAuthenticator("0123456789012345678901234567890123456789", nil, nil, "")
	if _, err := auth.Authenticate("not-a-bearer-token"); err == nil {
		t.Fatal("expected malformed header to be rejected")
	}
}

func TestAuthenticate_APIKeyAccepted(t *testing.T) {
	auth := NewAuthenticator("0123456789012345678901234567890123456789", map[string]string{
		"static-key-123": "client-b",
	}, nil, "")
	id, err := auth.Authenticate("Bearer static-key-123")
	if err != nil {
		t.Fatalf("expected API key to authenticate, got %v", err)
	}
	if id != "client-b" {
		t.Fatalf("expected client-b, got %s", id)
	}
}

func TestAuthenticate_ThumbprintAccepted(t *testing.T) {
	certs := map[string]ClientCert{
		"aa:bb:cc": {ClientID: "client-c", ExpiresAt: time.Now().Add(time.Hour), Scopes: []string{"memory"}},
	}
	auth := NewAuthenticator("0123456789012345678901234567890123456789", nil, certs, "memory")

	id, err := auth.Authenticate("Thumbprint aa:bb:cc")
	if err != nil {
		t.Fatalf("expected registered thumbprint to authenticate, got %v", err)
	}
	if id != "client-c" {
		t.Fatalf("expected client-c, got %s", id)
	}
}

func TestAuthenticate_ThumbprintExpiredRejected(t *testing.T) {
	certs := map[string]ClientCert{
		"aa:bb:cc": {ClientID: "client-c", ExpiresAt: time.Now().Add(-time.Hour), Scopes: []string{"memory"}},
	}
	auth := NewAuthenticator("0123456789012345678901234567890123456789", nil, certs, "memory")

	if _, err := auth.Authenticate("Thumbprint aa:bb:cc"); err == nil {
		t.Fatal("expected expired certificate to be rejected")
	}
}

func TestAuthenticate_ThumbprintMissingScopeRejected(t *testing.T) {
	certs := map[string]ClientCert{
		"aa:bb:cc": {ClientID: "client-c", ExpiresAt: time.Now().Add(time.Hour), Scopes: []string{"other"}},
	}
	auth := NewAuthenticator("0123456789012345678901234567890123456789", nil, certs, "memory")

	if _, err := auth.Authenticate("Thumbprint aa:bb:cc"); err == nil {
		t.Fatal("expected certificate missing required scope to be rejected")
	}
}

func TestAuthenticate_ThumbprintUnknownRejected(t *testing.T) {
	auth := NewAuthenticator("0123456789012345678901234567890123456789", nil, nil, "memory")

	if _, err := auth.Authenticate("Thumbprint ff:ff:ff"); err == nil {
		t.Fatal("expected unregistered thumbprint to be rejected")
	}
}
