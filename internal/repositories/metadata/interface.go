// Package metadata is a small key/value collection for manifests and other
// bookkeeping records (e.g. the snapshot manifest).
package metadata

import "context"

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
