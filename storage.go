package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"ieltsocr/models"
	"ieltsocr/pkg/ocr"
)

const (
	batchFile   = "batch.json"
	resultsFile = "results.json"
)

var errBatchNotFound = errors.New("batch not found")

// batchStore keeps every batch in its own directory under the upload base.
type batchStore struct {
	base string
}

// newBatchStore creates the base uploads directory.
func newBatchStore(base string) (*batchStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create upload base dir %s: %w", base, err)
	}
	return &batchStore{base: base}, nil
}

// create allocates a new batch id and its directory.
func (s *batchStore) create() (string, string, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.base, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("mkdir batch: %w", err)
	}
	return id, dir, nil
}

// dir resolves an existing batch directory. Ids that are not UUIDs never
// reach the filesystem.
func (s *batchStore) dir(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", errBatchNotFound
	}
	dir := filepath.Join(s.base, id)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return "", errBatchNotFound
	}
	return dir, nil
}

// save writes the full record and the flat results dump.
func (s *batchStore) save(b *models.Batch) error {
	dir := filepath.Join(s.base, b.ID)
	if err := writeJSON(filepath.Join(dir, batchFile), b); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, resultsFile), ocr.FlatResults(b.Results))
}

func (s *batchStore) load(id string) (*models.Batch, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, batchFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	var b models.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode %s: %w", batchFile, err)
	}
	return &b, nil
}

// file resolves a plain file name inside a batch directory.
func (s *batchStore) file(id, name string) (string, error) {
	dir, err := s.dir(id)
	if err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fs.ErrNotExist
	}
	path := filepath.Join(dir, name)
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return "", fs.ErrNotExist
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// uploadName reduces a client-supplied file name to a safe base name that
// does not collide with names already used in the batch.
func uploadName(name string, used map[string]bool) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	clean := strings.TrimLeft(b.String(), ".")
	// ".annotated." marks copies written by the pipeline
	clean = strings.ReplaceAll(clean, ".annotated.", "_annotated.")
	if clean == "" {
		clean = "image"
	}
	ext := filepath.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)
	candidate := clean
	for i := 1; used[candidate] || candidate == batchFile || candidate == resultsFile; i++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	used[candidate] = true
	return candidate
}
