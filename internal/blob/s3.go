package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/garnizeh/jobboard/internal/apperr"
)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for S3-compatible endpoints
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Stager stores blobs as objects under Prefix in a bucket.
type S3Stager struct {
	client *s3.Client
	bucket string
	prefix string
	policy Policy
}

var _ Stager = (*S3Stager)(nil)

func NewS3Stager(ctx context.Context, cfg S3Config, policy Policy) (*S3Stager, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("blob: s3 bucket and region are required")
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Stager{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		policy: policy,
	}, nil
}

func (s *S3Stager) key(handle string) string {
	return s.prefix + handle
}

// Stage buffers the validated body, bounded by the size limit, and uploads
// it in one PutObject. The object exists once the call returns.
func (s *S3Stager) Stage(ctx context.Context, body io.Reader, declaredType string, size int64) (string, error) {
	r, ext, err := s.policy.admit(body, declaredType, size)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := copyLimited(&buf, r, s.policy.maxBytes()); err != nil {
		return "", err
	}

	handle := newHandle(ext)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(handle)),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(declaredType),
	})
	if err != nil {
		return "", apperr.Internal(err, "upload to S3")
	}

	return handle, nil
}

// Discard deletes the object. S3 deletes are idempotent, so a missing object
// succeeds.
func (s *S3Stager) Discard(ctx context.Context, handle string) error {
	if !ValidHandle(handle) {
		return ErrInvalidHandle
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(handle)),
	})
	if err != nil {
		return fmt.Errorf("delete from S3: %w", err)
	}
	return nil
}

func (s *S3Stager) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if !ValidHandle(handle) {
		return nil, apperr.NotFound("resume not found")
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(handle)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, apperr.NotFound("resume not found")
		}
		return nil, apperr.Internal(err, "download from S3")
	}
	return out.Body, nil
}

func (s *S3Stager) List(ctx context.Context) ([]Info, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var out []Info
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			handle := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if !ValidHandle(handle) {
				continue
			}
			info := Info{Handle: handle, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.ModTime = *obj.LastModified
			}
			out = append(out, info)
		}
	}

	return out, nil
}
