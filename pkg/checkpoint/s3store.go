package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config selects the bucket and prefix of a checkpoint. Static credentials
// are optional; without them the default AWS chain applies.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// S3Store keeps a checkpoint under a bucket prefix using the same layout as
// FileStore.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	obs    observer
	cache  stepCache
}

func NewS3Store(client S3API, bucket, prefix string, opts ...Option) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		obs:    newObserver("s3", opts),
	}, nil
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	return err
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (s *S3Store) Header(ctx context.Context) (h Header, err error) {
	start := time.Now()
	defer func() { s.obs.done("read_header", start, err) }()

	data, err := s.get(ctx, s.key(headerFile))
	if isNotFound(err) {
		return Header{}, ErrNoHeader
	}
	if err != nil {
		return Header{}, fmt.Errorf("failed to get header: %w", err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return Header{}, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	return h, nil
}

func (s *S3Store) WriteHeader(ctx context.Context, h Header) (err error) {
	start := time.Now()
	defer func() { s.obs.done("write_header", start, err) }()

	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return s.put(ctx, s.key(headerFile), data, "application/json")
}

func (s *S3Store) LastStep(ctx context.Context) (last int, err error) {
	start := time.Now()
	defer func() { s.obs.done("list", start, err) }()

	prefix := s.key("step-")
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	last = -1
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list steps: %w", err)
		}
		for _, obj := range page.Contents {
			if index, ok := parseStepFile(path.Base(aws.ToString(obj.Key))); ok {
				last = max(last, index)
			}
		}
	}
	if last < 0 {
		return 0, ErrStepNotFound
	}
	return last, nil
}

func (s *S3Store) Step(ctx context.Context, index int) (st *Step, err error) {
	start := time.Now()
	defer func() { s.obs.done("read", start, err) }()
	return s.cache.get(ctx, index, s.load)
}

func (s *S3Store) load(ctx context.Context, index int) (*Step, error) {
	data, err := s.get(ctx, s.key(stepFile(index)))
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %d", ErrStepNotFound, index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step %d: %w", index, err)
	}
	s.obs.bytes("in", len(data))
	return DecodeStep(data)
}

func (s *S3Store) Surface(ctx context.Context, step int) (int, error) {
	st, err := s.Step(ctx, step)
	if err != nil {
		return 0, err
	}
	return st.Surface, nil
}

func (s *S3Store) GridPoint(ctx context.Context, step, xi int) ([]Entry, error) {
	st, err := s.Step(ctx, step)
	if err != nil {
		return nil, err
	}
	return gridPoint(st, xi)
}

func (s *S3Store) WriteStep(ctx context.Context, st *Step) (err error) {
	start := time.Now()
	defer func() { s.obs.done("write", start, err) }()

	buf, err := EncodeStep(st)
	if err != nil {
		return err
	}
	if err := s.put(ctx, s.key(stepFile(st.Index)), buf, "application/octet-stream"); err != nil {
		return fmt.Errorf("failed to put step %d: %w", st.Index, err)
	}
	s.cache.forget(st.Index)
	s.obs.bytes("out", len(buf))
	return nil
}
