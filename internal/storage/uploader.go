package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"dahdouh-ai/internal/metrics"
)

var (
	ErrStorage         = errors.New("object storage failed")
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds upload limit")
	ErrStorageDisabled = errors.New("object storage is not configured")
	ErrObjectNotFound  = errors.New("object not found")
	ErrForeignObject   = errors.New("url does not reference a stored upload")
)

// ObjectStore is a storage backend that can hand out a public URL for each key.
type ObjectStore interface {
	Name() string
	Put(ctx context.Context, key string, data []byte, contentType string) error
	URL(key string) string
	// KeyFor reverses URL. It reports false for URLs the store did not issue.
	KeyFor(rawURL string) (string, bool)
}

// ObjectReader is implemented by stores that can read an object back without
// going through its public URL.
type ObjectReader interface {
	ReadObject(ctx context.Context, key string, maxBytes int64) ([]byte, error)
}

type Asset struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Uploader names, types and stores uploaded blobs.
type Uploader struct {
	store    ObjectStore
	maxBytes int64
	log      zerolog.Logger
}

func NewUploader(store ObjectStore, maxBytes int64, log zerolog.Logger) *Uploader {
	return &Uploader{
		store:    store,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "uploader").Str("backend", store.Name()).Logger(),
	}
}

// Store writes data under a fresh key and returns its public URL.
func (u *Uploader) Store(ctx context.Context, data []byte, contentType, suggestedName string) (*Asset, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if u.maxBytes > 0 && int64(len(data)) > u.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}

	detected := mimetype.Detect(data)
	contentType = strings.TrimSpace(contentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detected.String()
	}

	key := NewKey(suggestedName, detected.Extension())
	if err := u.store.Put(ctx, key, data, contentType); err != nil {
		metrics.UploadsTotal.WithLabelValues(u.store.Name(), "error").Inc()
		u.log.Error().Err(err).Str("key", key).Msg("store object failed")
		if errors.Is(err, ErrStorageDisabled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	metrics.UploadsTotal.WithLabelValues(u.store.Name(), "ok").Inc()
	metrics.UploadBytesTotal.WithLabelValues(detected.String()).Add(float64(len(data)))

	u.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("object stored")
	return &Asset{
		Key:         key,
		URL:         u.store.URL(key),
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

// Resolve maps a URL issued by Store back to its asset. Stores that can read
// objects back also return the bytes, capped at the upload limit.
func (u *Uploader) Resolve(ctx context.Context, rawURL string) (*Asset, []byte, error) {
	key, ok := u.store.KeyFor(strings.TrimSpace(rawURL))
	if !ok {
		return nil, nil, ErrForeignObject
	}
	asset := &Asset{Key: key, URL: u.store.URL(key)}

	reader, ok := u.store.(ObjectReader)
	if !ok {
		return asset, nil, nil
	}
	data, err := reader.ReadObject(ctx, key, u.maxBytes)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return nil, nil, fmt.Errorf("%w: %s", ErrForeignObject, key)
	case errors.Is(err, ErrFileTooLarge):
		return nil, nil, err
	case err != nil:
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	asset.ContentType = mimetype.Detect(data).String()
	asset.Size = len(data)
	return asset, data, nil
}
