package kvstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	saltSize  = 16

	// KeySealSalt holds the key derivation salt in the clear in the wrapped store.
	KeySealSalt = "sealSalt"
)

// argon2id parameters for deriving the box key from a passphrase.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var ErrSealedValue = errors.New("sealed value cannot be opened")

// Sealed encrypts values with secretbox before handing them to the wrapped
// store. Keys are stored in the clear.
type Sealed struct {
	inner Store
	salt  []byte
	key   [32]byte
}

// NewSealed derives the box key from passphrase with argon2id. The salt is
// read from inner, or generated and written there on first use.
func NewSealed(ctx context.Context, inner Store, passphrase string) (*Sealed, error) {
	salt, err := loadSalt(ctx, inner)
	if err != nil {
		return nil, err
	}

	s := &Sealed{inner: inner, salt: salt}
	copy(s.key[:], argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, 32))
	return s, nil
}

func loadSalt(ctx context.Context, inner Store) ([]byte, error) {
	raw, found, err := Lookup(ctx, inner, KeySealSalt)
	if err != nil {
		return nil, fmt.Errorf("read seal salt: %w", err)
	}
	if found {
		salt, err := base64.StdEncoding.DecodeString(raw)
		if err != nil || len(salt) < saltSize {
			return nil, fmt.Errorf("%w: malformed salt", ErrSealedValue)
		}
		return salt, nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate seal salt: %w", err)
	}
	if err := inner.Set(ctx, KeySealSalt, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, fmt.Errorf("write seal salt: %w", err)
	}
	return salt, nil
}

func (s *Sealed) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}

	box, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(box) < nonceSize {
		return "", fmt.Errorf("%w: %q", ErrSealedValue, key)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	opened, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSealedValue, key)
	}
	return string(opened), nil
}

func (s *Sealed) Set(ctx context.Context, key string, value string) error {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], []byte(value), &nonce, &s.key)
	return s.inner.Set(ctx, key, base64.StdEncoding.EncodeToString(box))
}

func (s *Sealed) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

// Clear empties the wrapped store and writes the salt back so values sealed
// afterwards stay readable after a restart.
func (s *Sealed) Clear(ctx context.Context) error {
	if err := s.inner.Clear(ctx); err != nil {
		return err
	}
	if err := s.inner.Set(ctx, KeySealSalt, base64.StdEncoding.EncodeToString(s.salt)); err != nil {
		return fmt.Errorf("write seal salt: %w", err)
	}
	return nil
}
