package session

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestDecodeTokenVerified(t *testing.T) {
	token := signedToken(t, "topsecret", jwt.MapClaims{
		"name":              "Ada Lovelace",
		"email":             "ada@example.com",
		"roleName":          "traveller",
		"debtorId":          "EDIZZZZZZZ",
		"externalReference": float64(65668),
	})

	metadata, err := DecodeToken(token, "topsecret")
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if metadata["name"] != "Ada Lovelace" {
		t.Errorf("unexpected name claim: %q", metadata["name"])
	}
	if metadata["externalReference"] != "65668" {
		t.Errorf("numeric claim not stringified: %q", metadata["externalReference"])
	}
}

func TestDecodeTokenRejectsBadSignature(t *testing.T) {
	token := signedToken(t, "wrong-secret", jwt.MapClaims{"sub": "x"})
	if _, err := DecodeToken(token, "topsecret"); err == nil {
		t.Fatal("expected signature verification failure")
	}
}

func TestDecodeTokenUnverifiedWithoutSecret(t *testing.T) {
	token := signedToken(t, "whatever", jwt.MapClaims{"email": "ada@example.com"})
	metadata, err := DecodeToken(token, "")
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if metadata["email"] != "ada@example.com" {
		t.Errorf("unexpected email claim: %q", metadata["email"])
	}
}

func TestDecodeTokenGarbage(t *testing.T) {
	if _, err := DecodeToken("not-a-jwt", "topsecret"); err == nil {
		t.Fatal("expected decode failure for malformed token")
	}
}
