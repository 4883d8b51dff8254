package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/loess-io/gleaner/oai"
)

// S3Config holds configuration for the S3 record sink.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool

	// RepoEndpoint is the harvested repository base URL; its host becomes
	// a key component.
	RepoEndpoint string
	// MetadataPrefix is the harvest metadata prefix, another key component.
	MetadataPrefix string
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("sink: S3 bucket is required")
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket".
func ParseS3Path(p string) (bucket, prefix string) {
	parts := strings.SplitN(p, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// S3API is the slice of the S3 client the sink uses. Satisfied by
// *s3.Client; stubs are used for testing.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes one object per response batch under
// <prefix>/<host>/<metadata prefix>/<set|all>/batch-NNNNNN.xml. Batch numbering restarts per
// run, so a crash-resume overwrites the replayed batch instead of
// duplicating it.
type S3Sink struct {
	config  S3Config
	client  S3API
	keyRoot string

	mu      sync.Mutex
	seq     map[string]int
	tracker latestTracker
}

// NewS3Sink creates an S3 sink using the AWS SDK default credential chain
// (env vars, shared config, IAM role).
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sink: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return NewS3SinkWithClient(cfg, s3.NewFromConfig(awsConfig, s3Opts...))
}

// NewS3SinkWithClient creates an S3 sink with a caller-supplied client.
func NewS3SinkWithClient(cfg S3Config, client S3API) (*S3Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root := cfg.Prefix
	if cfg.RepoEndpoint != "" {
		ref, err := url.Parse(cfg.RepoEndpoint)
		if err != nil {
			return nil, fmt.Errorf("sink: invalid endpoint: %w", err)
		}
		root = path.Join(root, ref.Host)
	}
	return &S3Sink{
		config:  cfg,
		client:  client,
		keyRoot: root,
		seq:     make(map[string]int),
	}, nil
}

// Write implements Sink.
func (s *S3Sink) Write(ctx context.Context, set string, records []oai.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := writeRootStart(&buf); err != nil {
		return "", err
	}
	for _, rec := range records {
		if err := writeRecord(&buf, rec); err != nil {
			return "", fmt.Errorf("sink: encode record: %w", err)
		}
	}
	buf.WriteString("</records>\n")

	key := s.batchKey(set)
	contentType := "text/xml"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.config.Bucket,
		Key:         &key,
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("sink: put %s: %w", key, err)
	}

	s.seq[set]++
	s.tracker.observe(records)
	return s.tracker.latest, nil
}

// Close implements Sink. S3 writes are per-batch; nothing is buffered.
func (s *S3Sink) Close() error { return nil }

func (s *S3Sink) batchKey(set string) string {
	name := set
	if name == "" {
		name = "all"
	}
	dir := path.Join(s.keyRoot, s.config.MetadataPrefix, name)
	return fmt.Sprintf("%s/batch-%06d.xml", dir, s.seq[set])
}

// Verify S3Sink implements Sink.
var _ Sink = (*S3Sink)(nil)
