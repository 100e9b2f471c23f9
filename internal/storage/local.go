package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/recipesnap/apiserver/config"
)

// LocalClient stores images on disk below Dir; the server exposes Dir
// under URLPrefix.
type LocalClient struct {
	dir       string
	urlPrefix string
}

func NewLocalClient(cfg config.LocalStorageConfig) (*LocalClient, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("local storage dir is required")
	}
	prefix := "/" + strings.Trim(cfg.URLPrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	return &LocalClient{dir: cfg.Dir, urlPrefix: prefix}, nil
}

func (l *LocalClient) EnsureBucket(context.Context) error {
	return os.MkdirAll(l.dir, 0o755)
}

func (l *LocalClient) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	target := filepath.Join(l.dir, filepath.FromSlash(cleanKey(key)))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (l *LocalClient) PublicURL(key string) string {
	return l.urlPrefix + "/" + cleanKey(key)
}

// Bucket returns the storage directory.
func (l *LocalClient) Bucket() string {
	return l.dir
}

// Dir is the directory the server should serve under URLPrefix.
func (l *LocalClient) Dir() string {
	return l.dir
}

func (l *LocalClient) URLPrefix() string {
	return l.urlPrefix
}

func (l *LocalClient) Close() error {
	return nil
}
