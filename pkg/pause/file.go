package pause

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStore keeps the timestamp in a small text file. Saves replace the file
// atomically so readers in other processes never see a partial value.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created on first save.
func NewFileStore(path string) (*FileStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("pause file path must not be empty")
	}
	return &FileStore{path: filepath.Clean(trimmed)}, nil
}

// Path reports the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, ErrNoState
		}
		return time.Time{}, fmt.Errorf("read pause file: %w", err)
	}
	until, err := parseTimestamp(strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode pause file %q: %w", s.path, err)
	}
	return until, nil
}

func (s *FileStore) Save(ctx context.Context, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".pause-*")
	if err != nil {
		return fmt.Errorf("create pause temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(until.UTC().Format(time.RFC3339Nano) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write pause temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close pause temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace pause file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// parseTimestamp accepts RFC 3339 or whole Unix seconds, the format shell
// helpers write with `date +%s`.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
