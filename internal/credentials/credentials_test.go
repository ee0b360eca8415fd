package credentials

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := NewVault("test-encryption-key")
	creds := map[string]string{"api_key": "sk-live-abc123", "region": "us-east-1"}

	ciphertext, err := v.Encrypt(creds)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ciphertext == "" {
		t.Fatal("Encrypt returned empty ciphertext")
	}

	got, err := v.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got["api_key"] != creds["api_key"] || got["region"] != creds["region"] {
		t.Fatalf("round trip mismatch: got %v, want %v", got, creds)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	v := NewVault("correct-key")
	ciphertext, err := v.Encrypt(map[string]string{"api_key": "sk-live-abc123"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	wrong := NewVault("different-key")
	if _, err := wrong.Decrypt(ciphertext); err == nil {
		t.Fatal("Decrypt with wrong key should fail")
	}
}

func TestEncryptNonDeterministic(t *testing.T) {
	v := NewVault("test-encryption-key")
	creds := map[string]string{"api_key": "sk-live-abc123"}

	a, err := v.Encrypt(creds)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := v.Encrypt(creds)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertext (nonce reuse)")
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	v := NewVault("test-encryption-key")
	ciphertext, err := v.Encrypt(map[string]string{"api_key": "sk-live-abc123"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	tampered := ciphertext[:len(ciphertext)-4] + "abcd"
	if _, err := v.Decrypt(tampered); err == nil {
		t.Fatal("Decrypt of tampered ciphertext should fail")
	}
}
