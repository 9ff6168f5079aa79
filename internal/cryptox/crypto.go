// Package cryptox seals blobs with a passphrase: an argon2id-derived key and
// AES-GCM. Database backups use it when a backup passphrase is configured.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize = 16
	keySize  = 32
)

// ErrMalformed is returned by Open when the input is too short to be sealed
// data.
var ErrMalformed = errors.New("sealed data malformed")

// DeriveKey stretches passphrase into an AES-256 key with argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)
}

// Seal encrypts plaintext under a key derived from passphrase.
//
// A fresh random salt and nonce are generated on every call and stored in
// front of the ciphertext, so the output is self-contained:
//
//	salt (16 bytes) | nonce (12 bytes) | ciphertext+tag
//
// Example:
//
//	sealed, err := cryptox.Seal(dump, []byte(os.Getenv("BACKUP_PASSPHRASE")))
//	if err != nil {
//	    return err
//	}
//	plain, err := cryptox.Open(sealed, passphrase)
func Seal(plaintext, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key := DeriveKey(passphrase, salt)
	defer Wipe(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aesgcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aesgcm.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal. A wrong passphrase or tampered input fails
// authentication.
func Open(sealed, passphrase []byte) ([]byte, error) {
	if len(sealed) < saltSize {
		return nil, ErrMalformed
	}
	key := DeriveKey(passphrase, sealed[:saltSize])
	defer Wipe(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	rest := sealed[saltSize:]
	if len(rest) < aesgcm.NonceSize()+aesgcm.Overhead() {
		return nil, ErrMalformed
	}
	nonce, ciphertext := rest[:aesgcm.NonceSize()], rest[aesgcm.NonceSize():]
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Wipe overwrites b with zeros. Use it on passwords and keys once they are
// no longer needed. A nil slice is a no-op.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
