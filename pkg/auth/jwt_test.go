package auth

import (
	"net/http/httptest"
	"testing"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	tokens := New("test-secret")

	signed, err := tokens.Generate("alice")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tokens.Validate(signed)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "alice" {
		t.Fatalf("got user %q, want alice", claims.UserID)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	signed, err := New("secret-a").Generate("alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New("secret-b").Validate(signed); err == nil {
		t.Fatal("token signed with another secret was accepted")
	}
}

func TestFromRequest(t *testing.T) {
	tokens := New("test-secret")
	signed, err := tokens.Generate("bob")
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	claims, err := tokens.FromRequest(r)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "bob" {
		t.Fatalf("got user %q, want bob", claims.UserID)
	}

	// Websocket clients pass the token as a query param instead.
	r = httptest.NewRequest("GET", "/ws?token="+signed, nil)
	if _, err := tokens.FromRequest(r); err != nil {
		t.Fatal(err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if _, err := tokens.FromRequest(r); err == nil {
		t.Fatal("request without a token was accepted")
	}
}
