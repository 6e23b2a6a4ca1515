package internal

import "testing"

func TestRefreshTokenRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}

	tok, err := EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	gotSID, gotSecret, err := DecodeRefreshToken(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotSID != sid.String() || gotSecret != secret {
		t.Fatal("refresh token round trip mismatch")
	}
	if HashRefreshSecret(secret) == HashRefreshSecret([32]byte{}) {
		t.Fatal("hash of random secret collided with zero secret")
	}
}

func TestParseSessionIDRejectsWrongSize(t *testing.T) {
	if _, err := ParseSessionID("AAAA"); err == nil {
		t.Fatal("expected short session id to be rejected")
	}
}
