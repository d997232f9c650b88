package dbtask

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// EncryptedComplainantFields is the subset of complainant fields encrypted
// at rest, grounded on original_source/backend/services/database_services/
// complainant_manager.py's ENCRYPTED_FIELDS list.
var EncryptedComplainantFields = map[string]bool{
	"full_name": true,
	"phone":     true,
	"email":     true,
	"address":   true,
}

// Encryptor performs field-level AES-256-GCM encryption for complainant PII
// plus a keyed HMAC-SHA256 hash of the phone number for equality lookup
// without decryption (spec §5: "complainant PII fields are encrypted at
// rest; a keyed hash of the phone number permits lookup by phone without
// decrypting every row").
//
// original_source's setup_encryption.py drives the same concern from SQL
// via Postgres's pgcrypto extension (pgp_sym_encrypt/pgp_sym_decrypt), then
// re-encrypts the search phone number and compares ciphertext directly for
// its lookup path — pgp_sym_encrypt's output is not deterministic across
// calls, so that comparison is unreliable. This type keeps the encryption
// app-side instead and adds a dedicated deterministic HMAC for the lookup,
// which a non-deterministic cipher cannot provide.
type Encryptor struct {
	gcm     cipher.AEAD
	hmacKey []byte
}

// NewEncryptor builds an AES-256-GCM cipher from the first 32 bytes of key
// and uses the whole of key as the phone-hash HMAC key; callers pass the
// raw bytes of ORCHESTRATOR_ENCRYPTION_KEY. key must be at least 32 bytes.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) < 32 {
		return nil, errors.New("dbtask: encryption key must be at least 32 bytes")
	}
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, fmt.Errorf("dbtask: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("dbtask: init gcm: %w", err)
	}
	return &Encryptor{gcm: gcm, hmacKey: key}, nil
}

// EncryptField encrypts plaintext, returning a base64-encoded nonce||ciphertext.
// An empty string passes through unencrypted, since most PII fields are optional.
func (e *Encryptor) EncryptField(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("dbtask: generate nonce: %w", err)
	}
	ciphertext := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptField reverses EncryptField.
func (e *Encryptor) DecryptField(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("dbtask: decode ciphertext: %w", err)
	}
	nonceSize := e.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("dbtask: ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("dbtask: decrypt field: %w", err)
	}
	return string(plaintext), nil
}

// HashPhone computes a keyed HMAC-SHA256 digest of phone so "does this
// complainant already exist" lookups work without decrypting the stored,
// encrypted phone column.
func (e *Encryptor) HashPhone(phone string) string {
	mac := hmac.New(sha256.New, e.hmacKey)
	mac.Write([]byte(phone))
	return hex.EncodeToString(mac.Sum(nil))
}
