package password

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("s3cret-passphrase")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("Hash() = %q, want argon2id encoding", hash)
	}
	ok, err := Verify("s3cret-passphrase", hash)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !ok {
		t.Fatalf("Verify() = false for matching password")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	hash, err := Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	ok, err := Verify("battery staple", hash)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if ok {
		t.Fatalf("Verify() = true for wrong password")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h1, _ := Hash("same input")
	h2, _ := Hash("same input")
	if h1 == h2 {
		t.Fatalf("two hashes of the same password should differ")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	if _, err := Verify("anything", "not-a-hash"); err == nil {
		t.Fatalf("Verify() should fail on malformed hash")
	}
}
