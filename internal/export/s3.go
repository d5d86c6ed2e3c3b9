package export

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"feedmap/internal/config"
)

// S3 writes feeds to one bucket of an S3 compatible service (AWS or MinIO).
// Object keys are the export name below an optional prefix.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds the client from the default AWS configuration chain. Extra
// load options are applied after the region (tests pass a static
// credentials provider and an HTTP client).
func NewS3(ctx context.Context, cfg config.S3, loadOpts ...func(*awsconfig.LoadOptions) error) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := append([]func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}, loadOpts...)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *S3) Driver() Driver { return DriverS3 }

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *S3) Save(ctx context.Context, name string, data []byte) (Info, error) {
	clean, err := cleanName(name)
	if err != nil {
		return Info{}, err
	}
	key := s.key(clean)
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(ContentType),
	})
	if err != nil {
		return Info{}, errors.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}

	zerolog.Ctx(ctx).Debug().Str("bucket", s.bucket).Str("key", key).Int("bytes", len(data)).Msg("feed exported")

	return Info{
		Name:     clean,
		Location: "s3://" + s.bucket + "/" + key,
		Size:     int64(len(data)),
		ETag:     strings.Trim(aws.ToString(out.ETag), `"`),
		SavedAt:  time.Now().UTC(),
	}, nil
}
