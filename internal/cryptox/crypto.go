// Package cryptox holds the primitives used to protect the persisted session
// record and to bind redirect attempts to their provider response.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the AES-256 key length used for sealed records.
const KeySize = 32

var ErrSealedTooShort = errors.New("sealed record too short")

// DeriveKey stretches a passphrase into a KeySize key with argon2id.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// HashNonce returns the lowercase hex SHA-256 of a raw nonce. Providers
// that echo the nonce inside the id token (Apple) receive and return the
// hashed form, while the backend receives the raw one.
func HashNonce(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Seal serializes v to JSON and encrypts it with AES-GCM under key.
//
// The result is nonce || ciphertext, so a single opaque value can be stored
// per record. A fresh random nonce is used for every call.
//
// Example:
//
//	key := common.GenerateRandByteArray(cryptox.KeySize)
//	sealed, err := cryptox.Seal(session, key)
//	if err != nil {
//	    return err
//	}
//	var restored models.Session
//	err = cryptox.Open(sealed, key, &restored)
func Seal(v any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal: it splits the nonce, authenticates and decrypts the
// ciphertext, and unmarshals the JSON into v.
func Open(sealed []byte, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	ns := aesgcm.NonceSize()
	if len(sealed) < ns+aesgcm.Overhead() {
		return ErrSealedTooShort
	}

	plaintext, err := aesgcm.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
