package core

import (
	"testing"
)

func TestKeypairFromSecretHex(t *testing.T) {
	const secret = "97ba6f71a5311c4986e01798d525d0da8ee5c54acbf6ef7c3fadd1e2f624442f"
	const public = "2c8a35450e1d198e3834d933a35962600c33d1d0f8f6481d6e08f140791374d0"
	kp, err := KeypairFromSecretHex(secret)
	if err != nil {
		t.Fatalf("KeypairFromSecretHex failed: %v", err)
	}
	if got := PublicKeyHex(kp); got != public {
		t.Fatalf("derived public key %s, want %s", got, public)
	}
}

func TestSignVerify(t *testing.T) {
	kp := GenerateKeypair()
	msg := []byte("Hello World")
	sig := SignPayload(kp, msg)
	if !VerifyFromHex(PublicKeyHex(kp), msg, sig) {
		t.Fatal("signature failed to verify")
	}
	if VerifyFromHex(PublicKeyHex(kp), []byte("tampered"), sig) {
		t.Fatal("tampered message verified")
	}
	other := GenerateKeypair()
	if VerifyFromHex(PublicKeyHex(other), msg, sig) {
		t.Fatal("signature verified under wrong key")
	}
}

func TestVerifyFromHexMalformed(t *testing.T) {
	kp := GenerateKeypair()
	msg := []byte("msg")
	sig := SignPayload(kp, msg)
	if VerifyFromHex("not-hex", msg, sig) {
		t.Fatal("malformed key verified")
	}
	if VerifyFromHex(PublicKeyHex(kp), msg, []byte("short")) {
		t.Fatal("malformed signature verified")
	}
}

func TestKeypairFromSecretHexErrors(t *testing.T) {
	if _, err := KeypairFromSecretHex("xyz"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
	if _, err := KeypairFromSecretHex("abcd"); err == nil {
		t.Fatal("expected error for short seed")
	}
}
