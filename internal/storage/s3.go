// Package storage reads ingestion sources from S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

const uriScheme = "s3://"

// objectAPI is the subset of *s3.Client used by S3Source.
type objectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ClientConfig holds configuration for S3-compatible storage (e.g., RustFS)
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Client creates an *s3.Client. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// IsURI reports whether root names an S3 location.
func IsURI(root string) bool {
	return strings.HasPrefix(root, uriScheme)
}

// ParseURI splits s3://bucket/prefix into its bucket and key prefix.
func ParseURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("%q is not an s3:// uri", uri))
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("%q has no bucket", uri))
	}
	return bucket, prefix, nil
}

// S3Source lists and reads supported objects under a bucket prefix.
type S3Source struct {
	client   objectAPI
	bucket   string
	prefix   string
	supports func(domain.Format) bool
}

// NewS3Source creates a source for uri (s3://bucket/prefix). supports filters formats; nil accepts all known.
func NewS3Source(client objectAPI, uri string, supports func(domain.Format) bool) (*S3Source, error) {
	bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if supports == nil {
		supports = func(f domain.Format) bool { return f != domain.FormatUnknown }
	}
	return &S3Source{client: client, bucket: bucket, prefix: prefix, supports: supports}, nil
}

// List pages through every object under the prefix. Paths are s3://bucket/key, sorted.
func (s *S3Source) List(ctx context.Context) ([]domain.SourceFile, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	var files []domain.SourceFile
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			format := domain.FormatFromPath(key)
			if !s.supports(format) {
				continue
			}
			files = append(files, domain.SourceFile{
				Path:    s.uri(key),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
				Format:  format,
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Open streams the object behind a listed file.
func (s *S3Source) Open(ctx context.Context, file domain.SourceFile) (io.ReadCloser, error) {
	key, ok := strings.CutPrefix(file.Path, s.uri(""))
	if !ok {
		return nil, fmt.Errorf("%s is outside s3://%s", file.Path, s.bucket)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

func (s *S3Source) uri(key string) string {
	return uriScheme + s.bucket + "/" + key
}
