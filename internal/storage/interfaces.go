package storage

import "context"

// Storage persists whole documents by relative path.
type Storage interface {
	Save(ctx context.Context, path string, data []byte) error
	Load(ctx context.Context, path string) ([]byte, error)
}
