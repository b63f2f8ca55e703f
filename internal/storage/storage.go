package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/streamforge/encoding-service/internal/config"
)

// Storage issues presigned object URLs. Uploads and downloads themselves
// happen directly between clients (or workers) and the object store.
type Storage struct {
	client        *minio.Client
	bucketName    string
	presignExpiry time.Duration
}

// New creates a new storage client
func New(cfg config.StorageConfig) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &Storage{
		client:        client,
		bucketName:    cfg.BucketName,
		presignExpiry: expiry,
	}, nil
}

// PresignedUpload returns a presigned PUT URL for a source object.
func (s *Storage) PresignedUpload(ctx context.Context, objectName string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucketName, objectName, s.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload: %w", err)
	}
	return u.String(), nil
}

// PresignedDownload returns a presigned GET URL for an object.
func (s *Storage) PresignedDownload(ctx context.Context, objectName string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, objectName, s.presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return u.String(), nil
}

// SourceObject returns the canonical source object name for a video.
func SourceObject(videoID string) string {
	return fmt.Sprintf("sources/%s/original", videoID)
}

// OutputPrefix returns the object prefix the worker writes renditions under.
func OutputPrefix(videoID, jobID string) string {
	return fmt.Sprintf("outputs/%s/%s", videoID, jobID)
}
