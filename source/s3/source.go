// Package s3 provides a read-only S3-compatible object source for omnivolume.
//
// Volume images stored as objects are read with ranged GET requests, so
// only the parts an engine touches are downloaded. This source works with:
//   - AWS S3
//   - Cloudflare R2
//   - MinIO
//   - Any S3-compatible object storage
//
// Basic usage:
//
//	src, err := s3.New(ctx, s3.Config{
//	    Bucket: "forensics",
//	    Key:    "images/kw-srch-1.ndjson",
//	    Region: "us-east-1",
//	})
//	h, err := omnivolume.OpenSource(src, omnivolume.AccessRead)
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/grokify/omnivolume"
)

func init() {
	omnivolume.Register("s3", NewFromConfig)
}

// Errors specific to the S3 source.
var (
	ErrBucketRequired = errors.New("s3: bucket is required")
	ErrKeyRequired    = errors.New("s3: key is required")
)

// API is the subset of *s3.Client used by the source.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source implements omnivolume.Source over a single S3 object.
// Writes fail with omnivolume.ErrNotSupported.
type Source struct {
	ctx       context.Context
	client    API
	bucket    string
	key       string
	size      int64
	chunkSize int64

	offset  int64
	chunk   []byte
	chunkAt int64

	closed bool
	mu     sync.Mutex
}

// New creates an S3 client from cfg and opens the configured object.
// ctx bounds every request the source makes.
func New(ctx context.Context, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Build AWS config options
	var optFns []func(*config.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	// Build S3 client options
	var s3OptFns []func(*s3.Options)

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if cfg.DisableSSL {
			endpoint = "http://" + strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
		}
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3OptFns...)

	return NewWithClient(ctx, client, cfg)
}

// NewWithClient opens the configured object using an existing client.
func NewWithClient(ctx context.Context, client API, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}

	key := cfg.Key
	if cfg.Prefix != "" {
		key = path.Join(cfg.Prefix, cfg.Key)
	}

	result, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateError(err, cfg.Bucket, key)
	}

	var size int64
	if result.ContentLength != nil {
		size = *result.ContentLength
	}

	return &Source{
		ctx:       ctx,
		client:    client,
		bucket:    cfg.Bucket,
		key:       key,
		size:      size,
		chunkSize: cfg.ChunkSize,
	}, nil
}

// NewFromConfig creates a new S3 source from a config map.
// See ConfigFromMap for supported keys.
func NewFromConfig(configMap map[string]string) (omnivolume.Source, error) {
	return New(context.Background(), ConfigFromMap(configMap))
}

// Read reads from the current offset, fetching a new chunk when the offset
// leaves the cached one.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, omnivolume.ErrReaderClosed
	}
	if s.offset >= s.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if !s.cached(s.offset) {
		if err := s.fetch(s.offset, int64(len(p))); err != nil {
			return 0, err
		}
	}

	n := copy(p, s.chunk[s.offset-s.chunkAt:])
	s.offset += int64(n)
	return n, nil
}

func (s *Source) cached(off int64) bool {
	return s.chunk != nil && off >= s.chunkAt && off < s.chunkAt+int64(len(s.chunk))
}

func (s *Source) fetch(off, want int64) error {
	if want < s.chunkSize {
		want = s.chunkSize
	}
	end := off + want - 1
	if end >= s.size {
		end = s.size - 1
	}

	result, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return translateError(err, s.bucket, s.key)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("s3: reading %s: %w", s.key, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("s3: empty range %d-%d for %s: %w", off, end, s.key, io.ErrUnexpectedEOF)
	}

	s.chunk = data
	s.chunkAt = off
	return nil
}

// Write always fails; objects are read-only.
func (s *Source) Write(_ []byte) (int, error) {
	return 0, fmt.Errorf("s3: %w", omnivolume.ErrNotSupported)
}

// Seek moves the current offset. Seeking past the end is allowed; reads
// there return io.EOF.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, omnivolume.ErrReaderClosed
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.offset
	case io.SeekEnd:
		base = s.size
	default:
		return 0, fmt.Errorf("s3: invalid whence %d", whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("s3: seek to negative position %d", pos)
	}
	s.offset = pos
	return pos, nil
}

// Size returns the object size reported when the source was opened.
func (s *Source) Size() (int64, error) {
	return s.size, nil
}

// IsOpen reports whether Close has not been called yet.
func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Key returns the full object key including any prefix.
func (s *Source) Key() string {
	return s.key
}

// Close drops the cached chunk.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.chunk = nil
	return nil
}

// translateError converts S3 errors to omnivolume errors.
func translateError(err error, bucket, key string) error {
	if err == nil {
		return nil
	}

	var nf *types.NotFound
	if errors.As(err, &nf) {
		return omnivolume.NotFoundError("s3 object %s/%s", bucket, key)
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return omnivolume.NotFoundError("s3 object %s/%s", bucket, key)
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return omnivolume.NotFoundError("s3 bucket %s", bucket)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return omnivolume.NotFoundError("s3 object %s/%s", bucket, key)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("s3 object %s/%s: %w", bucket, key, omnivolume.ErrPermissionDenied)
		}
	}

	return fmt.Errorf("s3: %w", err)
}

// Ensure Source implements the omnivolume capability interfaces
var (
	_ omnivolume.Source       = (*Source)(nil)
	_ omnivolume.Sizer        = (*Source)(nil)
	_ omnivolume.OpenReporter = (*Source)(nil)
	_ API                     = (*s3.Client)(nil)
)
