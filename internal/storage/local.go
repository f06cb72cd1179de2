package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"labeler/internal/domain"
	"labeler/internal/labelfile"
)

type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	if dir == "" {
		dir = "."
	}
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Name() string {
	return "local:" + s.dir
}

func (s *LocalStore) Path(reviewer string) string {
	return filepath.Join(s.dir, labelfile.FileName(reviewer))
}

// Load returns an empty set when the reviewer has no file yet.
func (s *LocalStore) Load(_ context.Context, reviewer string) (domain.LabelSet, error) {
	f, err := os.Open(s.Path(reviewer))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.LabelSet{}, nil
	}
	if err != nil {
		return domain.LabelSet{}, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	labels, err := labelfile.Decode(f)
	if err != nil {
		return domain.LabelSet{}, fmt.Errorf("parse %s: %w", f.Name(), err)
	}
	return labels, nil
}

// Save rewrites the reviewer's file through a temp file and rename.
func (s *LocalStore) Save(_ context.Context, reviewer string, labels domain.LabelSet) error {
	data, err := labelfile.Encode(labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create label dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".final_labels_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write labels: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(reviewer)); err != nil {
		return fmt.Errorf("replace labels file: %w", err)
	}
	return nil
}
