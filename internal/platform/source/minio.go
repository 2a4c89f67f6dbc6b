package source

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ehr/directory/internal/domain/directory"
)

// MinioConfig holds the connection settings for an S3-compatible store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// NewMinioClient creates a MinIO client with static credentials.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// MinioSource reads the dataset object from MinIO or another S3-compatible
// store.
type MinioSource struct {
	client *minio.Client
	bucket string
	object string
}

func NewMinioSource(client *minio.Client, bucket, object string) *MinioSource {
	return &MinioSource{client: client, bucket: bucket, object: object}
}

func (s *MinioSource) Name() string { return "minio" }

func (s *MinioSource) Load(ctx context.Context) ([]directory.Patient, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, s.object, err)
	}
	defer obj.Close()

	// Stat issues the request, so a missing object surfaces here rather
	// than as a decode error.
	if _, err := obj.Stat(); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return nil, fmt.Errorf("%s/%s: %w", s.bucket, s.object, ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s/%s: %w", s.bucket, s.object, err)
	}

	records, err := decodeObject(s.object, obj)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", s.bucket, s.object, err)
	}
	return records, nil
}
