// Package blob is the entry point to blob storage. It re-exports the core
// contract and opens the configured backend so other packages never import
// the infra implementations directly.
package blob

import (
	"context"
	"fmt"

	"territorycore/internal/blob/core"
	"territorycore/internal/infra/blob/fs"
	memorystore "territorycore/internal/infra/blob/memory"
	infraS3 "territorycore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// DefaultURLExpiry is the lifetime of pre-signed URLs when none is requested.
const DefaultURLExpiry = core.DefaultURLExpiry

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// Config selects and configures a backend.
type Config struct {
	Driver    Driver   `yaml:"driver"`
	FSRoot    string   `yaml:"fs_root"`
	FSBaseURL string   `yaml:"fs_base_url"`
	S3        S3Config `yaml:"s3"`
}

// Open constructs the backend named by cfg.Driver, defaulting to the
// filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot, cfg.FSBaseURL)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewFilesystem returns a filesystem-backed store rooted at root.
func NewFilesystem(root, baseURL string) (Store, error) {
	s, err := fs.New(root, baseURL)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}
