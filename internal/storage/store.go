// Package storage persists application state as opaque blobs under string keys.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Store defines the interface for state persistence backends.
type Store interface {
	// Name returns the backend identifier.
	Name() string

	// Load retrieves the value for key. ok is false when the key was never saved.
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Save stores data under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Close releases backend resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Type  string
	Path  string
	Codec string
	S3    S3Config
}

// Open creates the backend named by cfg.Type.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemory(), nil
	case "localfs":
		return NewLocalFS(cfg.Path)
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}
