package upload

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Storage persists an encoded object and returns its public URL.
type Storage interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
	Name() string
}

// DiskStorage writes objects below dir and serves them from baseURL.
type DiskStorage struct {
	dir     string
	baseURL string
}

func NewDiskStorage(dir, baseURL string) (*DiskStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (d *DiskStorage) Name() string { return "disk" }

// Dir is where files are written; the server mounts it as static content.
func (d *DiskStorage) Dir() string { return d.dir }

func (d *DiskStorage) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	clean := filepath.Clean("/" + key)
	full := filepath.Join(d.dir, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, body, 0o600); err != nil {
		return "", err
	}
	return d.baseURL + filepath.ToSlash(clean), nil
}

// s3API is the subset of the S3 client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
}

type S3Storage struct {
	client  s3API
	bucket  string
	baseURL string
}

// NewS3Storage loads AWS credentials from the default chain. A custom
// endpoint switches to path-style addressing for S3-compatible servers.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsConf, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("aws config load: %w", err)
	}
	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Storage(client, cfg), nil
}

func newS3Storage(client s3API, cfg S3Config) *S3Storage {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" || strings.HasPrefix(base, "/") {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Storage{client: client, bucket: cfg.Bucket, baseURL: base}
}

func (s *S3Storage) Name() string { return "s3" }

func (s *S3Storage) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}
