package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lexrag/internal/util"
)

// FileStore serves stored source files back to callers for download.
type FileStore struct {
	root string
}

func NewFileStore(root string) FileStore {
	return FileStore{root: root}
}

// Open resolves a stored source reference to an open file under the data root.
func (s FileStore) Open(source string) (*os.File, os.FileInfo, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil, util.UserInputError("source is required")
	}
	if !strings.EqualFold(filepath.Ext(source), ".pdf") {
		return nil, nil, util.UserInputError("only pdf sources can be retrieved")
	}
	path, err := util.ResolveWithin(s.root, source)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("source %s: %w", source, util.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("open source %s: %w", source, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat source %s: %w", source, err)
	}
	return f, info, nil
}
