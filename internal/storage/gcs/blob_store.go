// Package gcs provides a record store backed by Google Cloud Storage. Records live at
// gs://<bucket>/<prefix>/<key>.bin.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	shotstorage "github.com/JakeFAU/shotapi/internal/storage"
)

const ext = ".bin"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// BlobStore reads and writes records in a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ shotstorage.Provider = (*BlobStore)(nil)

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *BlobStore) object(key string) string {
	if s.prefix == "" {
		return key + ext
	}
	return path.Join(s.prefix, key+ext)
}

// Put uploads the record, replacing any previous generation.
func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := shotstorage.ValidateKey(key); err != nil {
		return err
	}
	writer := s.client.Bucket(s.bucket).Object(s.object(key)).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Get downloads the record for key.
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := shotstorage.ValidateKey(key); err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(s.object(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, shotstorage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Delete removes the object for key.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	if err := shotstorage.ValidateKey(key); err != nil {
		return err
	}
	err := s.client.Bucket(s.bucket).Object(s.object(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Keys lists record keys under the prefix.
func (s *BlobStore) Keys(ctx context.Context) ([]string, error) {
	query := &storage.Query{}
	if s.prefix != "" {
		query.Prefix = s.prefix + "/"
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		name := strings.TrimPrefix(attrs.Name, query.Prefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, ext) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ext))
	}
	return keys, nil
}

// Clear deletes every record under the prefix.
func (s *BlobStore) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the underlying client.
func (s *BlobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
