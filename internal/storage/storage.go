package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/recipesnap/apiserver/config"
	"github.com/sirupsen/logrus"
)

const (
	BackendLocal   = "local"
	BackendDataURL = "dataurl"
	BackendMinio   = "minio"
	BackendGCS     = "gcs"
	BackendS3      = "s3"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// PublicURL is the address clients use to fetch a stored key.
	PublicURL(key string) string
	Bucket() string
	Close() error
}

// ImageStore saves image bytes and returns an opaque reference: a public URL
// when an object backend is configured, otherwise a data URL. A failed upload
// also degrades to a data URL so a generated image is never lost.
type ImageStore struct {
	backend ObjectStorage
	log     logrus.FieldLogger
}

// NewImageStore wraps backend. A nil backend stores everything as data URLs.
func NewImageStore(backend ObjectStorage, log logrus.FieldLogger) *ImageStore {
	return &ImageStore{backend: backend, log: log}
}

// New builds the image store selected by STORAGE_BACKEND and makes sure
// its bucket or directory exists.
func New(ctx context.Context, cfg config.StorageConfig, log logrus.FieldLogger) (*ImageStore, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendDataURL:
		return NewImageStore(nil, log), nil
	case "", BackendLocal:
		backend, err = NewLocalClient(cfg.Local)
	case BackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case BackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case BackendS3:
		backend, err = NewS3Client(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := backend.EnsureBucket(ctx); err != nil {
		backend.Close()
		return nil, fmt.Errorf("ensure bucket %q: %w", backend.Bucket(), err)
	}
	log.WithField("bucket", backend.Bucket()).Infof("image storage backend %s ready", cfg.Backend)
	return NewImageStore(backend, log), nil
}

// Persistent reports whether saved images outlive the response, i.e. whether
// an object backend is configured.
func (s *ImageStore) Persistent() bool {
	return s.backend != nil
}

// StaticDir reports the directory and URL prefix to serve when images are
// kept on local disk. ok is false for every other backend.
func (s *ImageStore) StaticDir() (dir, prefix string, ok bool) {
	local, isLocal := s.backend.(*LocalClient)
	if !isLocal || local.URLPrefix() == "" {
		return "", "", false
	}
	return local.Dir(), local.URLPrefix(), true
}

// SaveImage stores data under key and returns a reference to it.
func (s *ImageStore) SaveImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if s.backend == nil {
		return DataURL(contentType, data), nil
	}

	key = cleanKey(key)
	err := s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("image upload failed; falling back to data URL")
		return DataURL(contentType, data), nil
	}
	return s.backend.PublicURL(key), nil
}

func (s *ImageStore) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// DataURL encodes data as a base64 data URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func cleanKey(key string) string {
	key = path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return strings.TrimPrefix(key, "/")
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
