package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/sharing"
)

// SharesNamespace is the key prefix under which ShareStore keeps shares.
const SharesNamespace = "shares/"

// ShareStore persists retained shares by key on top of a StorageBackend.
// Payloads are the share's text encoding. The format is checked on the way in
// and on the way out; a store holding corrupted data reports
// ErrInvalidShareFormat rather than handing it to reconstruction.
type ShareStore struct {
	backend interfaces.StorageBackend
	log     *slog.Logger
}

func NewShareStore(backend interfaces.StorageBackend, log *slog.Logger) *ShareStore {
	if log == nil {
		log = slog.Default()
	}
	return &ShareStore{backend: backend, log: log}
}

// Put stores share under key, replacing any previous value.
func (s *ShareStore) Put(ctx context.Context, key string, share interfaces.Share) error {
	if err := sharing.ValidateShare(share); err != nil {
		return err
	}
	storageKey, err := s.storageKey(key)
	if err != nil {
		return err
	}

	if err := s.backend.Put(ctx, storageKey, []byte(share)); err != nil {
		return fmt.Errorf("failed to store share %s: %w", key, err)
	}

	s.log.Debug("Stored share", slog.String("key", key), slog.String("backend", s.backend.Name()))
	return nil
}

// Get returns the share stored under key, or ErrContentNotFound.
func (s *ShareStore) Get(ctx context.Context, key string) (interfaces.Share, error) {
	storageKey, err := s.storageKey(key)
	if err != nil {
		return "", err
	}

	data, err := s.backend.Get(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("failed to load share %s: %w", key, err)
	}

	share := interfaces.Share(data)
	if err := sharing.ValidateShare(share); err != nil {
		s.log.Warn("Stored share failed validation", slog.String("key", key), "err", err)
		return "", err
	}
	return share, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *ShareStore) Delete(ctx context.Context, key string) error {
	storageKey, err := s.storageKey(key)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, storageKey); err != nil {
		return fmt.Errorf("failed to delete share %s: %w", key, err)
	}
	return nil
}

// ListKeys returns the keys of all stored shares, without the namespace.
func (s *ShareStore) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := s.backend.List(ctx, SharesNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.TrimPrefix(key, SharesNamespace))
	}
	return out, nil
}

// Available reports whether the underlying backend is reachable.
func (s *ShareStore) Available(ctx context.Context) bool {
	return s.backend.Available(ctx)
}

func (s *ShareStore) storageKey(key string) (string, error) {
	full := SharesNamespace + key
	if err := ValidateKey(full); err != nil {
		return "", err
	}
	return full, nil
}
