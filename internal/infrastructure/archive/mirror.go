// Package archive mirrors local partitions into S3-compatible object storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"TelegramWarehouse/internal/ports"
)

// Options locates the bucket.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type bucketClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror uploads directory trees file by file.
type Mirror struct {
	client bucketClient
	bucket string
	logger *slog.Logger

	once      sync.Once
	bucketErr error
}

var _ ports.Archiver = (*Mirror)(nil)

// NewMirror builds a MinIO client. The bucket is created on first use.
func NewMirror(opts Options, logger *slog.Logger) (*Mirror, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("archive endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return newMirror(client, opts.Bucket, logger), nil
}

func newMirror(client bucketClient, bucket string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{client: client, bucket: bucket, logger: logger.With("component", "archive")}
}

// MirrorDir uploads every regular file below dir as <prefix>/<relative path>
// and returns the number of objects written. A missing dir uploads nothing.
func (m *Mirror) MirrorDir(ctx context.Context, dir, prefix string) (int, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return 0, err
	}

	uploaded := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == dir && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(strings.Trim(prefix, "/"), filepath.ToSlash(rel))

		opts := minio.PutObjectOptions{ContentType: contentType(p)}
		if _, err := m.client.FPutObject(ctx, m.bucket, key, p, opts); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("mirror %s: %w", dir, err)
	}

	m.logger.Info("partition mirrored", "dir", dir, "bucket", m.bucket, "prefix", prefix, "objects", uploaded)
	return uploaded, nil
}

func (m *Mirror) ensureBucket(ctx context.Context) error {
	m.once.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err != nil {
			m.bucketErr = fmt.Errorf("check bucket: %w", err)
			return
		}
		if !exists {
			if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
				m.bucketErr = fmt.Errorf("create bucket: %w", err)
			}
		}
	})
	return m.bucketErr
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	}
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
