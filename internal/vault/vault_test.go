package vault

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/mtzanidakis/agency/internal/config"
	"github.com/mtzanidakis/agency/internal/store"
)

func newTestVault(t *testing.T, passphrase string) *Vault {
	t.Helper()
	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "agency.db")})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(passphrase, st)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t, "test-passphrase")

	plaintext := []byte("sk-ant-secret-key")
	ciphertext, nonce, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := v.Decrypt(ciphertext, nonce)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q", got)
	}
}

func TestDecryptWrongPassphraseFails(t *testing.T) {
	v1 := newTestVault(t, "passphrase-one")
	v2 := newTestVault(t, "passphrase-two")

	ciphertext, nonce, err := v1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := v2.Decrypt(ciphertext, nonce); err == nil {
		t.Error("expected decryption with wrong key to fail")
	}
}

func TestKeyDerivationDeterministic(t *testing.T) {
	v1 := newTestVault(t, "same")
	v2 := newTestVault(t, "same")

	ciphertext, nonce, err := v1.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := v2.Decrypt(ciphertext, nonce)
	if err != nil {
		t.Fatalf("Decrypt across instances: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("unexpected plaintext %q", got)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	v := newTestVault(t, "test")

	if err := v.StoreCredential("cred-1", "anthropic-key", []byte("sk-123")); err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}

	got, err := v.ResolveCredential("cred-1")
	if err != nil {
		t.Fatalf("ResolveCredential: %v", err)
	}
	if string(got) != "sk-123" {
		t.Errorf("unexpected credential %q", got)
	}

	names, err := v.ListCredentials()
	if err != nil {
		t.Fatalf("ListCredentials: %v", err)
	}
	if names["cred-1"] != "anthropic-key" {
		t.Errorf("unexpected names: %v", names)
	}

	if err := v.DeleteCredential("cred-1"); err != nil {
		t.Fatalf("DeleteCredential: %v", err)
	}
	if _, err := v.ResolveCredential("cred-1"); err == nil {
		t.Error("expected error resolving deleted credential")
	}
}
