package order

import (
	"fmt"
	"testing"
)

func TestNewCommitment(t *testing.T) {
	c, err := NewCommitment()
	if err != nil {
		t.Fatalf("NewCommitment() error = %v", err)
	}
	if c.Secret.IsZero() {
		t.Error("secret is all zeros")
	}
	if HashSecret(c.Secret) != c.HashLock {
		t.Error("hash lock does not match H(secret)")
	}
	if !VerifySecret(c.Secret, c.HashLock) {
		t.Error("VerifySecret rejected the generated secret")
	}
}

func TestNewCommitmentUnique(t *testing.T) {
	seen := make(map[Secret]bool)
	for i := 0; i < 64; i++ {
		c, err := NewCommitment()
		if err != nil {
			t.Fatalf("NewCommitment() error = %v", err)
		}
		if seen[c.Secret] {
			t.Fatal("duplicate secret generated")
		}
		seen[c.Secret] = true
	}
}

func TestVerifySecretRejectsWrong(t *testing.T) {
	c, _ := NewCommitment()
	wrong := c.Secret
	wrong[31] ^= 0xff
	if VerifySecret(wrong, c.HashLock) {
		t.Error("VerifySecret accepted a wrong secret")
	}
}

func TestHashSecretKnownValue(t *testing.T) {
	// sha256(0x00..0x1f)
	want := "0x630dcd2966c4336691125448bbb25b4ff412a49c732db2c8abc1b8581bd710dd"
	if got := HashSecret(vectorSecret()).Hex(); got != want {
		t.Errorf("HashSecret = %s, want %s", got, want)
	}
}

func TestSecretRedacted(t *testing.T) {
	s := vectorSecret()
	if got := fmt.Sprintf("%v", s); got != "[redacted]" {
		t.Errorf("formatted secret = %q", got)
	}
	parsed, err := ParseSecret(s.Hex())
	if err != nil {
		t.Fatalf("ParseSecret() error = %v", err)
	}
	if parsed != s {
		t.Error("ParseSecret roundtrip mismatch")
	}
	if _, err := ParseSecret("0xdeadbeef"); err == nil {
		t.Error("short secret should fail")
	}
}
