// Package vault seals agent credentials (LLM API keys, tool tokens) with
// AES-256-GCM so they are never stored or logged in plaintext. Agent
// configs reference credentials by id; the plaintext is resolved only
// when an instance is provisioned onto a node.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/mtzanidakis/agency/internal/store"
)

// Vault derives its AES-256 key from a passphrase via Argon2id. The salt
// is deterministic (SHA-256 of the passphrase) so the same passphrase
// yields the same key across restarts.
type Vault struct {
	key   [32]byte
	store *store.Store
}

func New(passphrase string, st *store.Store) *Vault {
	salt := sha256.Sum256([]byte(passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], 1, 64*1024, 4, 32)

	v := &Vault{store: st}
	copy(v.key[:], key)
	return v
}

// Encrypt seals plaintext with a random nonce.
func (v *Vault) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("create gcm: %w", err)
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt.
func (v *Vault) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}

// StoreCredential seals value and persists it under id.
func (v *Vault) StoreCredential(id, name string, value []byte) error {
	ciphertext, nonce, err := v.Encrypt(value)
	if err != nil {
		return fmt.Errorf("seal credential %s: %w", id, err)
	}
	return v.store.SaveSecret(store.Secret{ID: id, Name: name, Value: ciphertext, Nonce: nonce})
}

// ResolveCredential loads and opens the credential referenced by id.
// Returns an error when the credential does not exist.
func (v *Vault) ResolveCredential(id string) ([]byte, error) {
	sec, err := v.store.GetSecret(id)
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return nil, fmt.Errorf("credential %s not found", id)
	}
	return v.Decrypt(sec.Value, sec.Nonce)
}

// DeleteCredential removes the stored credential.
func (v *Vault) DeleteCredential(id string) error {
	return v.store.DeleteSecret(id)
}

// ListCredentials returns id to name pairs without decrypting anything.
func (v *Vault) ListCredentials() (map[string]string, error) {
	return v.store.ListSecretNames()
}
