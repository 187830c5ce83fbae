// Package password derives and checks keyed password hashes.
//
// The salt is a random HMAC-SHA512 key and the hash is the HMAC of the
// UTF-8 password bytes under that key.
package password

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"
)

// KeySize matches the SHA-512 block size.
const KeySize = 128

// Hash returns (hash, salt) for password.
func Hash(password string) (hash, salt []byte, err error) {
	salt = make([]byte, KeySize)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w", err)
	}
	return compute(password, salt), salt, nil
}

// Verify recomputes the HMAC and compares in constant time.
func Verify(password string, hash, salt []byte) bool {
	if len(salt) == 0 || len(hash) == 0 {
		return false
	}
	return hmac.Equal(compute(password, salt), hash)
}

func compute(password string, salt []byte) []byte {
	mac := hmac.New(sha512.New, salt)
	mac.Write([]byte(password))
	return mac.Sum(nil)
}
