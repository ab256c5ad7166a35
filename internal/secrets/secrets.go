package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// encPrefix marks values written by Box.Encrypt. Plaintext rows from before
// the encryption migration carry no prefix and are returned unchanged.
const encPrefix = "enc:"

// Box encrypts and decrypts credential fields with ChaCha20-Poly1305.
type Box struct {
	key []byte
}

// NewBox derives a cipher key from the configured passphrase.
func NewBox(passphrase string) (Box, error) {
	if strings.TrimSpace(passphrase) == "" {
		return Box{}, errors.New("encryption key is required")
	}
	sum := sha256.Sum256([]byte(passphrase))
	return Box{key: sum[:]}, nil
}

// Encrypt seals a plaintext field. Empty values stay empty so that unset
// credentials remain distinguishable in the store.
func (b Box) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored field. A value without the encryption prefix is
// returned as-is; a value that fails to decrypt yields an empty string so a
// bad key or corrupt row never aborts a config read.
func (b Box) Decrypt(stored string) string {
	if stored == "" || !strings.HasPrefix(stored, encPrefix) {
		return stored
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return ""
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return ""
	}
	if len(raw) < aead.NonceSize() {
		return ""
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ""
	}
	return string(plain)
}
