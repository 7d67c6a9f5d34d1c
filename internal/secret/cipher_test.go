package secret

import (
	"strings"
	"testing"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestCipherRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	plaintext := []byte(`{"apiKey":"SG.secret"}`)
	encoded, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if strings.Contains(encoded, "SG.secret") {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := c.Decrypt(encoded)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestCipherJSONRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	in := map[string]string{"host": "smtp.example.com", "password": "p4ss"}
	encoded, err := c.EncryptJSON(in)
	if err != nil {
		t.Fatalf("EncryptJSON() error = %v", err)
	}

	var out map[string]string
	if err := c.DecryptJSON(encoded, &out); err != nil {
		t.Fatalf("DecryptJSON() error = %v", err)
	}
	if out["host"] != in["host"] || out["password"] != in["password"] {
		t.Fatalf("DecryptJSON() = %v, want %v", out, in)
	}
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	t.Parallel()

	if _, err := NewCipher("not-hex"); err == nil {
		t.Fatal("NewCipher() should reject non-hex keys")
	}
	if _, err := NewCipher("abcd"); err == nil {
		t.Fatal("NewCipher() should reject short keys")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	t.Parallel()

	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	encoded, err := c.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := c.Decrypt("bm90LXJlYWwtY2lwaGVydGV4dA=="); err == nil {
		t.Fatal("Decrypt() should reject forged ciphertext")
	}
	if _, err := c.Decrypt(encoded[:len(encoded)-8] + "AAAAAAA="); err == nil {
		t.Fatal("Decrypt() should reject tampered ciphertext")
	}
}
