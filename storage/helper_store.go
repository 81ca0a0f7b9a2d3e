package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// HelperStore persists public helper-data bundles. Whatever Retrieve returns
// must be byte-identical to what Store received; the integrity tag inside the
// bundle fails otherwise.
type HelperStore interface {
	Store(ctx context.Context, data []byte) (string, error)
	Retrieve(ctx context.Context, reference string) ([]byte, error)
}

// LocalStore keeps helper bundles on the local filesystem, content-addressed
// by their SHA-256 so references are stable and tamper-evident.
type LocalStore struct {
	basePath string
}

func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("fail to create helper store directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

func (s *LocalStore) Store(_ context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])
	path := filepath.Join(s.basePath, ref+".helper")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("fail to write helper file: %w", err)
	}
	return ref, nil
}

func (s *LocalStore) Retrieve(_ context.Context, reference string) ([]byte, error) {
	path := filepath.Join(s.basePath, filepath.Base(reference)+".helper")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fail to read helper file: %w", err)
	}
	sum := sha256.Sum256(content)
	if hex.EncodeToString(sum[:]) != filepath.Base(reference) {
		return nil, fmt.Errorf("helper file %s does not match its reference", reference)
	}
	return content, nil
}
