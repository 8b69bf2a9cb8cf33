package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps uploads in a directory on disk. They are served back by the
// service itself under /api/tmp?filename=<key>.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("local storage dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage dir failed: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write local object failed: %w", err)
	}
	return nil
}

func (s *LocalStore) URL(key string) string {
	return s.baseURL + "/api/tmp?filename=" + url.QueryEscape(key)
}

func (s *LocalStore) KeyFor(rawURL string) (string, bool) {
	query, ok := strings.CutPrefix(rawURL, s.baseURL+"/api/tmp?")
	if !ok {
		return "", false
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", false
	}
	key := values.Get("filename")
	if _, err := s.path(key); err != nil {
		return "", false
	}
	return key, true
}

// ReadObject reads key into memory. maxBytes <= 0 disables the cap.
func (s *LocalStore) ReadObject(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read local object failed: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, key)
	}
	return data, nil
}

// Open returns the file for key. Keys containing path elements are rejected.
func (s *LocalStore) Open(key string) (*os.File, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open local object failed: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Health(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *LocalStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", ErrObjectNotFound
	}
	return filepath.Join(s.dir, key), nil
}
