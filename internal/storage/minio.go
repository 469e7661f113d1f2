// Package storage implements the MinIO-backed object store for
// extracted archive members.
package storage

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/EventMosaicProject/em-collector/internal/config"
	"github.com/EventMosaicProject/em-collector/internal/logger"
)

const defaultContentType = "application/octet-stream"

// Store uploads extracted files into a single bucket and synthesizes
// their public URLs.
type Store struct {
	client   *minio.Client
	endpoint string
	bucket   string
	log      logger.Logger
}

// New creates the MinIO client and ensures the destination bucket
// exists, creating it when absent. A failure here is fatal for the
// component: the collector must not accept work without its bucket.
func New(ctx context.Context, cfg config.MinioConfig, log logger.Logger) (*Store, error) {
	host, secure, err := parseEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &Store{
		client:   client,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		bucket:   cfg.Bucket,
		log:      log,
	}

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("object store initialized",
		logger.String("endpoint", s.endpoint),
		logger.String("bucket", s.bucket))
	return s, nil
}

// Upload stores the local file under objectName and returns its URL.
// Content type is derived from the file extension, defaulting to
// application/octet-stream.
func (s *Store) Upload(ctx context.Context, objectName, localPath string) (string, error) {
	contentType := contentTypeFor(localPath)

	info, err := s.client.FPutObject(ctx, s.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload object %s: %w", objectName, err)
	}

	s.log.Debug("object uploaded",
		logger.String("object", objectName),
		logger.Int64("size", info.Size),
		logger.String("content_type", contentType))
	return s.URL(objectName), nil
}

// Delete removes the object from the bucket.
func (s *Store) Delete(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", objectName, err)
	}
	return nil
}

// URL returns the public URL for an object:
// {endpoint}/{bucket}/{objectName} with a single slash separator.
// Reachability depends on the bucket's access policy.
func (s *Store) URL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, objectName)
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	s.log.Warn("bucket missing, creating", logger.String("bucket", s.bucket))
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// parseEndpoint splits the configured endpoint into the host:port the
// SDK expects and whether to use TLS. A scheme-less endpoint is
// accepted and combined with the use_ssl flag.
func parseEndpoint(cfg config.MinioConfig) (host string, secure bool, err error) {
	endpoint := cfg.Endpoint
	if !strings.Contains(endpoint, "://") {
		return endpoint, cfg.UseSSL, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse minio endpoint %q: %w", endpoint, err)
	}
	return u.Host, u.Scheme == "https", nil
}

func contentTypeFor(path string) string {
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		return defaultContentType
	}
	return ct
}
