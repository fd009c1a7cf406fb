// Package cryptox implements the symmetric encryption used for confidential
// identity fields and the keyed lookup index stored next to them.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"golang.org/x/crypto/hkdf"
)

const indexKeyInfo = "profitpal email index v1"

// DeriveKey turns a configured secret seed into a 256-bit AES key.
func DeriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Keyring seals with the current key and opens with the current key or any
// of the previous ones, which keeps rows written before a rotation readable.
type Keyring struct {
	aeads    []cipher.AEAD
	indexKey []byte
}

// NewKeyring builds a keyring from the current seed, optional previous seeds
// (newest first) and an optional dedicated index secret. When indexSecret is
// empty the index key is derived from the oldest configured seed, so moving
// the current seed into previous keeps every stored email index valid.
//
// An empty current seed yields common.ErrorEncryptionDisabled.
func NewKeyring(secret string, previous []string, indexSecret string) (*Keyring, error) {
	if secret == "" {
		return nil, common.ErrorEncryptionDisabled
	}

	k := &Keyring{}
	oldest := secret
	for _, s := range append([]string{secret}, previous...) {
		if s == "" {
			continue
		}
		aead, err := newAEAD(DeriveKey(s))
		if err != nil {
			return nil, err
		}
		k.aeads = append(k.aeads, aead)
		oldest = s
	}

	if indexSecret == "" {
		indexSecret = oldest
	}
	k.indexKey = make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(indexSecret), nil, []byte(indexKeyInfo))
	if _, err := io.ReadFull(r, k.indexKey); err != nil {
		return nil, fmt.Errorf("derive index key: %w", err)
	}

	return k, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with the current key. The result is nonce||ciphertext.
func (k *Keyring) Seal(plaintext []byte) ([]byte, error) {
	aead := k.aeads[0]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// SealString is Seal for string values.
func (k *Keyring) SealString(s string) ([]byte, error) {
	return k.Seal([]byte(s))
}

// Open decrypts a blob produced by Seal under any key of the ring. Every
// failure is reported as common.ErrorDecryption.
func (k *Keyring) Open(blob []byte) ([]byte, error) {
	for _, aead := range k.aeads {
		ns := aead.NonceSize()
		if len(blob) < ns+aead.Overhead() {
			return nil, common.ErrorDecryption
		}
		plaintext, err := aead.Open(nil, blob[:ns], blob[ns:], nil)
		if err == nil {
			return plaintext, nil
		}
	}
	return nil, common.ErrorDecryption
}

// OpenString is Open for string values.
func (k *Keyring) OpenString(blob []byte) (string, error) {
	b, err := k.Open(blob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EmailIndex returns the deterministic, non-reversible lookup key for an
// email address. The address is normalized first.
func (k *Keyring) EmailIndex(email string) string {
	mac := hmac.New(sha256.New, k.indexKey)
	mac.Write([]byte(common.NormalizeEmail(email)))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashToken returns the hex SHA-256 of an opaque bearer token. Only hashes
// of session and CSRF tokens are persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
