package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"reviewhub/pkg/config"
)

// ObjectAPI подмножество клиента S3, используемое хранилищем
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage хранит файлы в бакете S3 или совместимом хранилище (MinIO)
type S3Storage struct {
	client  ObjectAPI
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Storage создаёт клиент из конфигурации. Без ключей используется стандартная цепочка AWS.
func NewS3Storage(ctx context.Context, cfg config.StorageConfig) (*S3Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StorageWithClient(client, cfg.S3Bucket, cfg.S3Prefix, cfg.PublicBaseURL), nil
}

// NewS3StorageWithClient оборачивает готовый клиент
func NewS3StorageWithClient(client ObjectAPI, bucket, prefix, publicBaseURL string) *S3Storage {
	return &S3Storage{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

func (s *S3Storage) key(fileName string) string {
	if s.prefix == "" {
		return fileName
	}
	return path.Join(s.prefix, fileName)
}

// Save загружает объект. Ссылка - публичный URL, если он задан, иначе s3://bucket/key.
func (s *S3Storage) Save(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	if err := ValidateName(fileName); err != nil {
		return "", err
	}

	key := s.key(fileName)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *S3Storage) Open(ctx context.Context, fileName string) (io.ReadCloser, error) {
	if err := ValidateName(fileName); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(fileName)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	return out.Body, nil
}

func (s *S3Storage) Delete(ctx context.Context, fileName string) error {
	if err := ValidateName(fileName); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(fileName)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}
