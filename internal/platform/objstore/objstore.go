// Package objstore stores raw feed recordings in an S3-compatible bucket.
//
// Recordings are laid out as <year>/<meeting_key>/<session_key>/<name>, one
// .jsonStream blob per topic, mirroring the upstream static archive so that
// replay can read either backend through the same fetcher interface.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pitwall/pitwall/internal/feed/historical"
)

// ErrNotFound is returned when a requested blob does not exist.
var ErrNotFound = errors.New("object not found")

// Config holds object storage configuration.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		Endpoint: "localhost:9000",
		Bucket:   "pitwall-raw",
	}
}

// Store wraps a bucket of raw session recordings.
type Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// Connect builds the client and ensures the bucket exists.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultConfig().Bucket
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created raw archive bucket", "bucket", cfg.Bucket)
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With("component", "objstore"),
	}, nil
}

// SessionKeyPrefix is the archive prefix of one session.
func SessionKeyPrefix(year, meetingKey, sessionKey int) string {
	return fmt.Sprintf("%d/%d/%d", year, meetingKey, sessionKey)
}

// Upload writes one blob.
func (s *Store) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Download reads one blob.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// List returns the object keys under a prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	listCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var keys []string
	for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// SessionFetcher adapts one archived session to the historical replay
// fetcher interface.
type SessionFetcher struct {
	store  *Store
	prefix string
}

func (s *Store) SessionFetcher(year, meetingKey, sessionKey int) *SessionFetcher {
	return &SessionFetcher{
		store:  s,
		prefix: SessionKeyPrefix(year, meetingKey, sessionKey),
	}
}

func (f *SessionFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	data, err := f.store.Download(ctx, f.prefix+"/"+strings.TrimPrefix(name, "/"))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, historical.ErrTopicNotAvailable)
	}
	return data, err
}
