// Package uploads keeps user-supplied scans in a single flat directory.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrNoFile          = errors.New("no file selected")
	ErrExtension       = errors.New("file type not allowed")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrNotFound        = errors.New("file not found")
)

// AllowedExtensions are matched case-insensitively, without the dot.
var AllowedExtensions = []string{"png", "tif", "tiff"}

type Store struct {
	dir string
}

// NewStore creates dir when it does not exist.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("uploads: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Allowed reports whether name carries one of AllowedExtensions.
func Allowed(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	underscores = regexp.MustCompile(`_+`)
)

// SecureFilename reduces name to ASCII letters, digits, '_', '-' and '.', with
// path separators and whitespace turned into '_'. Leading dots and
// underscores are dropped. The result may be empty.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.Join(strings.Fields(strings.ReplaceAll(name, "/", " ")), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = underscores.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}

// Save sanitizes name and writes r under it, replacing any file of the same
// name. It returns the stored name.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	if name == "" {
		return "", ErrNoFile
	}
	if !Allowed(name) {
		return "", ErrExtension
	}
	clean := SecureFilename(name)
	if clean == "" || !Allowed(clean) {
		return "", ErrInvalidFilename
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("uploads: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("uploads: write %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("uploads: close %s: %w", clean, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, clean)); err != nil {
		return "", fmt.Errorf("uploads: store %s: %w", clean, err)
	}
	return clean, nil
}

// Path resolves a stored filename. Names that are not already sanitized are
// rejected, so the result never leaves the upload dir.
func (s *Store) Path(filename string) (string, error) {
	if filename == "" || SecureFilename(filename) != filename {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	p := filepath.Join(s.dir, filename)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return p, nil
}

// List returns the allowed files in the upload dir, sorted by name.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("uploads: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && Allowed(e.Name()) && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
