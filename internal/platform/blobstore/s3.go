package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures an S3 (or S3-compatible) bucket.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3-compatible providers
	AccessKey string // optional, falls back to the default credential chain
	SecretKey string
	URLTTL    time.Duration
}

// S3Store stores blobs in an S3 bucket and hands out presigned download URLs.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	urlTTL  time.Duration
}

// NewS3Store loads AWS configuration and builds an S3Store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreFromClient(client, cfg.Bucket, cfg.URLTTL), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, bucket string, urlTTL time.Duration) *S3Store {
	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		urlTTL:  urlTTL,
	}
}

func (s *S3Store) Upload(ctx context.Context, key, fileName, contentType string, content io.Reader) (*Object, error) {
	if err := validate(key, fileName, contentType); err != nil {
		return nil, err
	}
	data, err := readLimited(content)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(data)

	input := &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentLength:      aws.Int64(int64(len(data))),
		ContentDisposition: aws.String(fmt.Sprintf("inline; filename=%q", fileName)),
		Metadata:           map[string]string{"sha256": fmt.Sprintf("%x", h)},
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	url, err := s.presignGet(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Object{
		Key:         key,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", h),
		URL:         url,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return "", ErrBlobNotFound
		}
		return "", fmt.Errorf("head object %s: %w", key, err)
	}
	return s.presignGet(ctx, key)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) presignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
