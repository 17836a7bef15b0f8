// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package secretkey derives a symmetric key from a user passphrase via
// scrypt and uses it to seal/open arbitrary byte blobs with
// NaCl secretbox. It underlies the wallet database's encryption at rest
// and its password-change (rekey) operation.
package secretkey

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// Default scrypt cost parameters, matching the fixed PBKDF parameters
// called for at the key-derivation boundary.
const (
	DefaultN = 1 << 15
	DefaultR = 8
	DefaultP = 1

	keySize   = 32
	saltSize  = 32
	nonceSize = 24
)

// ErrInvalidPassword is returned by DeriveKey when the derived key does
// not match the key the params were marshaled with.
var ErrInvalidPassword = errors.New("secretkey: invalid password")

// ErrMalformed is returned by Open when the sealed blob is too short to
// contain a nonce, or authentication fails.
var ErrMalformed = errors.New("secretkey: malformed or tampered blob")

// Key is a derived symmetric key plus the scrypt parameters needed to
// re-derive it from the same passphrase.
type Key struct {
	key  [keySize]byte
	salt [saltSize]byte
	n, r, p int
	check [keySize]byte // SHA-256 of key, for DeriveKey validation
}

// New derives a fresh Key from passphrase with a new random salt.
func New(passphrase []byte) (*Key, error) {
	var salt [saltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("secretkey: generate salt: %w", err)
	}
	k := &Key{salt: salt, n: DefaultN, r: DefaultR, p: DefaultP}
	if err := k.deriveInto(passphrase); err != nil {
		return nil, err
	}
	k.check = sha256.Sum256(k.key[:])
	return k, nil
}

func (k *Key) deriveInto(passphrase []byte) error {
	derived, err := scrypt.Key(passphrase, k.salt[:], k.n, k.r, k.p, keySize)
	if err != nil {
		return fmt.Errorf("secretkey: scrypt derive: %w", err)
	}
	copy(k.key[:], derived)
	return nil
}

// params is the on-disk representation of a Key's public parameters (not
// the key itself): salt, cost parameters and a check value.
type params struct {
	Salt  [saltSize]byte
	N, R, P int
	Check [keySize]byte
}

// Marshal serializes the key's parameters (not the key itself) for
// persistence alongside the encrypted data.
func (k *Key) Marshal() []byte {
	out := make([]byte, 0, saltSize+24+keySize)
	out = append(out, k.salt[:]...)
	out = append(out, encodeInt(k.n)...)
	out = append(out, encodeInt(k.r)...)
	out = append(out, encodeInt(k.p)...)
	out = append(out, k.check[:]...)
	return out
}

// Unmarshal loads a Key's parameters from a previously-Marshaled blob.
// The key itself is not usable until DeriveKey is called with the
// original passphrase.
func Unmarshal(b []byte) (*Key, error) {
	const fixed = saltSize + 24 + keySize
	if len(b) != fixed {
		return nil, fmt.Errorf("secretkey: params blob must be %d bytes, got %d", fixed, len(b))
	}
	k := &Key{}
	copy(k.salt[:], b[:saltSize])
	k.n = decodeInt(b[saltSize : saltSize+8])
	k.r = decodeInt(b[saltSize+8 : saltSize+16])
	k.p = decodeInt(b[saltSize+16 : saltSize+24])
	copy(k.check[:], b[saltSize+24:])
	return k, nil
}

// DeriveKey re-derives the key from passphrase and validates it against
// the stored check value, returning ErrInvalidPassword on mismatch.
func (k *Key) DeriveKey(passphrase []byte) error {
	if err := k.deriveInto(passphrase); err != nil {
		return err
	}
	if sha256.Sum256(k.key[:]) != k.check {
		return ErrInvalidPassword
	}
	return nil
}

func encodeInt(v int) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func decodeInt(b []byte) int {
	var v int
	for i := 7; i >= 0; i-- {
		v = v<<8 | int(b[i])
	}
	return v
}

// Seal encrypts and authenticates plaintext under the key, returning a
// self-contained blob (random nonce prepended).
func (k *Key) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("secretkey: generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &k.key), nil
}

// Open authenticates and decrypts a blob produced by Seal.
func (k *Key) Open(blob []byte) ([]byte, error) {
	if len(blob) < nonceSize {
		return nil, ErrMalformed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])
	out, ok := secretbox.Open(nil, blob[nonceSize:], &nonce, &k.key)
	if !ok {
		return nil, ErrMalformed
	}
	return out, nil
}

// Zero clears the in-memory key so it no longer lingers in the process's
// heap once the store closes.
func (k *Key) Zero() {
	for i := range k.key {
		k.key[i] = 0
	}
}
