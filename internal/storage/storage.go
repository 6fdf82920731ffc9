// Package storage provides the blob store used for source PDFs, signature
// artifacts and finalized documents. References handed out by Put are opaque
// to callers and resolved back by the same driver.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillsign/quillsigngo/internal/config"
)

// ErrNotFound is returned when a reference does not resolve to an object
var ErrNotFound = errors.New("storage: object not found")

// Store is the blob store port. Delete failures are advisory: callers log
// them and move on.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// New selects a driver from configuration
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "local", "":
		return NewLocalStore(cfg.LocalDir)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
