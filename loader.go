package kida

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrTemplateNotFound is returned (wrapped) when a loader cannot find
// a template.
var ErrTemplateNotFound = errors.New("template not found")

// Loader supplies template source by name. Names use forward slashes
// regardless of the host OS.
type Loader interface {
	Load(name string) (string, error)
}

// DirLoader loads templates from files under a root directory.
type DirLoader struct {
	Root string
}

// NewDirLoader creates a loader rooted at dir.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{Root: dir}
}

// Load reads the named template. Names escaping the root ("../x",
// absolute paths) are rejected.
func (l *DirLoader) Load(name string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + name))
	if clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	path := filepath.Join(l.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
		}
		return "", fmt.Errorf("loading template %q: %w", name, err)
	}
	return string(data), nil
}

// MapLoader serves templates from an in-memory map, mainly for tests
// and embedded template sets.
type MapLoader map[string]string

func (l MapLoader) Load(name string) (string, error) {
	src, ok := l[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return src, nil
}
