// storage/s3.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	appconfig "event-registration-system/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MaxUploadSize caps attendee document uploads.
const MaxUploadSize = 4 << 20

var (
	ErrUnsupportedKind = errors.New("unsupported upload kind")
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrTooLarge        = errors.New("file exceeds upload limit")
)

var allowedKinds = map[string]bool{
	"biodata": true,
	"consent": true,
}

var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// putObjectAPI is the slice of the S3 client the uploader needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client        putObjectAPI
	bucket        string
	publicBaseURL string
}

// NewS3Uploader builds a client for AWS S3 or any S3-compatible endpoint (R2, MinIO).
func NewS3Uploader(ctx context.Context, cfg appconfig.StorageConfig) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	base := cfg.PublicBaseURL
	if base == "" {
		switch {
		case cfg.Endpoint != "":
			base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		default:
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &S3Uploader{client: client, bucket: cfg.Bucket, publicBaseURL: base}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return u.publicBaseURL + "/" + key, nil
}

// ObjectKey validates an attendee document and returns the key it is stored under.
func ObjectKey(kind, contentType string, size int64) (string, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if !allowedKinds[kind] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	ext, ok := allowedTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if size > MaxUploadSize {
		return "", ErrTooLarge
	}
	return path.Join("attendees", kind, uuid.NewString()+ext), nil
}
