package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/homedash/homedash/internal/domain"
)

// blobMarker prefixes every encrypted blob so already-encrypted values can be
// told apart from legacy plaintext rows during migration.
const blobMarker = "enc:v1:"

// envelopeVersion is the version byte inside the envelope. It is fed to the
// AEAD as additional authenticated data, so tampering with it fails
// authentication rather than silently selecting a wrong decode path.
const envelopeVersion byte = 0x01

// KeySize is the symmetric key size for credential encryption.
const KeySize = chacha20poly1305.KeySize

// CredentialCipher encrypts third-party secrets with XChaCha20-Poly1305
// before they reach the persistence layer. A fresh random nonce is drawn per
// call; the stored form is marker + base64(version | nonce | ciphertext).
type CredentialCipher struct {
	aead cipher.AEAD
}

// NewCredentialCipher builds a cipher from a 32-byte key.
func NewCredentialCipher(key []byte) (*CredentialCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("credential cipher key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return &CredentialCipher{aead: aead}, nil
}

func (c *CredentialCipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("draw nonce: %w", err)
	}

	envelope := make([]byte, 0, 1+len(nonce)+len(plaintext)+c.aead.Overhead())
	envelope = append(envelope, envelopeVersion)
	envelope = append(envelope, nonce...)
	envelope = c.aead.Seal(envelope, nonce, plaintext, []byte{envelopeVersion})

	return blobMarker + base64.StdEncoding.EncodeToString(envelope), nil
}

func (c *CredentialCipher) Decrypt(blob string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(blob, blobMarker)
	if !ok {
		return nil, domain.ErrDecryption
	}
	envelope, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, domain.ErrDecryption
	}
	if len(envelope) < 1+c.aead.NonceSize()+c.aead.Overhead() {
		return nil, domain.ErrDecryption
	}
	version := envelope[0]
	if version != envelopeVersion {
		return nil, domain.ErrDecryption
	}
	nonce := envelope[1 : 1+c.aead.NonceSize()]
	ciphertext := envelope[1+c.aead.NonceSize():]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte{version})
	if err != nil {
		return nil, domain.ErrDecryption
	}
	return plaintext, nil
}

// IsEncrypted reports whether a stored value carries the envelope marker.
func (c *CredentialCipher) IsEncrypted(blob string) bool {
	return strings.HasPrefix(blob, blobMarker)
}
