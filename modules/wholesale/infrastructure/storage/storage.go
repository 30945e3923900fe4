// Package storage keeps uploaded import files on local disk or in S3.
package storage

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/iota-uz/wholesale/pkg/configuration"
)

var ErrNotFound = errors.New("artifact not found")

type Storage interface {
	Save(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by opts.Backend.
func New(opts *configuration.StorageOptions) (Storage, error) {
	switch opts.Backend {
	case configuration.StorageLocal:
		return NewLocal(opts.LocalDir)
	case configuration.StorageS3:
		return NewS3(opts)
	default:
		return nil, errors.Errorf("unknown storage backend %q", opts.Backend)
	}
}
