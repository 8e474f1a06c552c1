package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Load reads a previously emitted index-v2.json. A missing file yields an
// empty index; an unreadable or corrupt one is an error, so a run never
// proceeds without its history.
func Load(path string, resolve func(packageName string) string) (*RepositoryIndex, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}
	idx, err := Unmarshal(data, resolve)
	if err != nil {
		return nil, fmt.Errorf("failed to load index %s: %w", path, err)
	}
	return idx, nil
}
