package artifact

import (
	"context"
)

type Store interface {
	// Put stores data under the given key and returns the artifact URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given artifact URL
	Get(ctx context.Context, url string) ([]byte, error)
}
