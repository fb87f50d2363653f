package store

import (
	"bytes"
	"context"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vton/internal/apperrors"
	"vton/internal/config"
)

// S3Client talks to an S3-compatible bucket with v4 signatures.
type S3Client struct {
	client *minio.Client
	bucket string
}

// NewS3Client creates a store client from configuration.
func NewS3Client(cfg *config.StoreConfig) (*S3Client, error) {
	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, apperrors.Storage("store.configure", err)
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: u.Scheme != "http",
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperrors.Storage("store.connect", err)
	}

	return &S3Client{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Client) Bucket() string {
	return s.bucket
}

// Put uploads a blob under the given key.
func (s *S3Client) Put(ctx context.Context, ref ObjectRef, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucketFor(ref), ref.Key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return apperrors.Storage("store.put", err)
	}
	return nil
}

// Get downloads a blob. Missing keys yield apperrors.ErrNotFound.
func (s *S3Client) Get(ctx context.Context, ref ObjectRef) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketFor(ref), ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(ref, "store.get", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(ref, "store.get", err)
	}
	return data, nil
}

// Exists reports whether a key is present.
func (s *S3Client) Exists(ctx context.Context, ref ObjectRef) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketFor(ref), ref.Key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, apperrors.Storage("store.stat", err)
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *S3Client) Remove(ctx context.Context, ref ObjectRef) error {
	err := s.client.RemoveObject(ctx, s.bucketFor(ref), ref.Key, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return apperrors.Storage("store.remove", err)
	}
	return nil
}

// Ready verifies the bucket is reachable with the configured credentials.
func (s *S3Client) Ready(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return apperrors.Storage("store.ready", err)
	}
	if !ok {
		return apperrors.NotFound(s.bucket)
	}
	return nil
}

func (s *S3Client) bucketFor(ref ObjectRef) string {
	if ref.Bucket != "" {
		return ref.Bucket
	}
	return s.bucket
}

func classify(ref ObjectRef, op string, err error) error {
	if isNoSuchKey(err) {
		return apperrors.NotFound(ref.Key)
	}
	return apperrors.Storage(op, err)
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == 404
}

// Verify S3Client implements Client
var _ Client = (*S3Client)(nil)
