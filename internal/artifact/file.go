package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type fileStore struct {
	directory string
}

type FileConfig struct {
	Directory string
}

// NewFileStore creates an artifact store rooted at a local directory.
// The root is created immediately so a misconfigured path fails the run
// before any capture work happens.
func NewFileStore(ctx context.Context, f FileConfig) (Store, error) {
	if f.Directory == "" {
		f.Directory = "."
	}

	if err := os.MkdirAll(f.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return &fileStore{
		directory: f.Directory,
	}, nil
}

func (a *fileStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	// Keys use forward slashes regardless of platform.
	filePath := filepath.Join(a.directory, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return filePath, nil
}

func (a *fileStore) Get(ctx context.Context, url string) ([]byte, error) {
	data, err := os.ReadFile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}
