package repositories

import (
	"context"
	"encoding/base64"
	"fmt"

	"gocloud.dev/secrets"

	"github.com/desertthunder/topmix/internal/shared"

	// Register keeper drivers for base64key:// and hashivault:// URIs
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// Keeper encrypts and decrypts credential values. *secrets.Keeper implements it.
type Keeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// OpenKeeper opens a gocloud.dev secrets keeper for keyURI.
// Supports: base64key://, hashivault://
func OpenKeeper(ctx context.Context, keyURI string) (Keeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets keeper: %w", err)
	}
	return keeper, nil
}

// SealedCredentials wraps a [CredentialStore] so values are encrypted at rest.
//
// Ciphertext is stored base64 encoded. Keys are stored in the clear.
type SealedCredentials struct {
	store  CredentialStore
	keeper Keeper
}

// NewSealedCredentials creates a [SealedCredentials] over store.
func NewSealedCredentials(store CredentialStore, keeper Keeper) *SealedCredentials {
	return &SealedCredentials{store: store, keeper: keeper}
}

func (s *SealedCredentials) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", false, &shared.StorageError{Operation: "get", Key: key, Err: fmt.Errorf("decode sealed value: %w", err)}
	}

	plaintext, err := s.keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", false, &shared.StorageError{Operation: "get", Key: key, Err: fmt.Errorf("decrypt: %w", err)}
	}
	return string(plaintext), true, nil
}

func (s *SealedCredentials) Set(ctx context.Context, key, value string) error {
	ciphertext, err := s.keeper.Encrypt(ctx, []byte(value))
	if err != nil {
		return &shared.StorageError{Operation: "set", Key: key, Err: fmt.Errorf("encrypt: %w", err)}
	}
	return s.store.Set(ctx, key, base64.StdEncoding.EncodeToString(ciphertext))
}

func (s *SealedCredentials) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// Close releases the keeper.
func (s *SealedCredentials) Close() error {
	return s.keeper.Close()
}
