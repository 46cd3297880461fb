package delivery

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/codalotl/xrayreport/internal/config"
	"github.com/codalotl/xrayreport/internal/types"
)

const defaultRegion = "us-west-2"

// DefaultObjectName is used when S3Options.Key is empty.
const DefaultObjectName = "xray-" + RunIDPlaceholder + ".json"

type S3Options struct {
	Bucket       string
	Prefix       string
	Key          string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
	PathStyle    bool
	RunID        string
	Logger       *zap.Logger
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads the report as a JSON object.
type S3Sink struct {
	bucket string
	key    string
	client objectPutter
	log    *zap.Logger
}

func NewS3Sink(ctx context.Context, opts S3Options) (*S3Sink, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, &config.ConfigurationError{Problems: []string{"s3 bucket is required"}}
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if opts.AccessKey != "" || opts.SecretKey != "" || opts.SessionToken != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if opts.PathStyle {
			o.UsePathStyle = true
		}
	})
	return newS3Sink(client, opts), nil
}

func newS3Sink(client objectPutter, opts S3Options) *S3Sink {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	name := opts.Key
	if name == "" {
		name = DefaultObjectName
	}
	key := expandRunID(name, opts.RunID)
	if prefix := strings.Trim(opts.Prefix, "/"); prefix != "" {
		key = path.Join(prefix, key)
	}
	return &S3Sink{bucket: opts.Bucket, key: key, client: client, log: log.Named("s3")}
}

// Key is the object key the report is written to.
func (s *S3Sink) Key() string {
	return s.key
}

func (s *S3Sink) Deliver(ctx context.Context, report *types.Report) error {
	data, err := marshalIndent(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload report to s3://%s/%s: %w", s.bucket, s.key, err)
	}
	s.log.Info("uploaded report", zap.String("bucket", s.bucket), zap.String("key", s.key))
	return nil
}
