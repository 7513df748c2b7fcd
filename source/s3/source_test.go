package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/grokify/omnivolume"
)

// fakeAPI serves a single in-memory object and records ranged GETs.
type fakeAPI struct {
	key    string
	data   []byte
	ranges []string
	err    error
}

func (f *fakeAPI) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if aws.ToString(params.Key) != f.key {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(f.data)))}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if aws.ToString(params.Key) != f.key {
		return nil, &types.NoSuchKey{}
	}
	rng := aws.ToString(params.Range)
	f.ranges = append(f.ranges, rng)

	var start, end int64
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	if end >= int64(len(f.data)) {
		end = int64(len(f.data)) - 1
	}
	body := f.data[start : end+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func newTestSource(t *testing.T, data []byte, chunkSize int64) (*Source, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{key: "images/disk.raw", data: data}
	src, err := NewWithClient(context.Background(), api, Config{
		Bucket:    "bucket",
		Prefix:    "images",
		Key:       "disk.raw",
		ChunkSize: chunkSize,
	})
	if err != nil {
		t.Fatalf("NewWithClient failed: %v", err)
	}
	return src, api
}

func TestReadRanged(t *testing.T) {
	src, api := newTestSource(t, []byte("0123456789abcdef"), 4)

	if src.Key() != "images/disk.raw" {
		t.Errorf("Key = %q, want %q", src.Key(), "images/disk.raw")
	}

	buf := make([]byte, 2)
	if _, err := src.Seek(6, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if _, err := io.ReadFull(src, buf); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if string(buf) != "67" {
		t.Errorf("read = %q, want %q", buf, "67")
	}

	// The next read is served from the cached chunk.
	if _, err := io.ReadFull(src, buf); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
	if string(buf) != "89" {
		t.Errorf("read = %q, want %q", buf, "89")
	}
	if len(api.ranges) != 1 || api.ranges[0] != "bytes=6-9" {
		t.Errorf("ranges = %v, want [bytes=6-9]", api.ranges)
	}
}

func TestReadAll(t *testing.T) {
	data := []byte("the quick brown fox")
	src, _ := newTestSource(t, data, 5)

	content, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(content, data) {
		t.Errorf("content = %q, want %q", content, data)
	}
}

func TestReadPastEnd(t *testing.T) {
	src, api := newTestSource(t, []byte("abc"), 4)

	if _, err := src.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	n, err := src.Read(make([]byte, 4))
	if n != 0 || err != io.EOF {
		t.Errorf("Read past end = (%d, %v), want (0, EOF)", n, err)
	}
	if len(api.ranges) != 0 {
		t.Errorf("Read past end issued %d requests, want 0", len(api.ranges))
	}
}

func TestSeekEnd(t *testing.T) {
	src, _ := newTestSource(t, []byte("abcdef"), 4)

	pos, err := src.Seek(-2, io.SeekEnd)
	if err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if pos != 4 {
		t.Errorf("Seek = %d, want 4", pos)
	}
	if _, err := src.Seek(-10, io.SeekCurrent); err == nil {
		t.Error("Seek to negative position should fail")
	}
}

func TestWriteNotSupported(t *testing.T) {
	src, _ := newTestSource(t, []byte("abc"), 4)

	h, err := omnivolume.OpenSource(src, omnivolume.AccessReadWrite)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}
	defer func() { _ = h.Free() }()

	_, err = h.Write([]byte("x"))
	if !omnivolume.IsNotSupported(err) {
		t.Errorf("Write error = %v, want not supported", err)
	}

	size, err := h.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 3 {
		t.Errorf("Size = %d, want 3", size)
	}
}

func TestClose(t *testing.T) {
	src, _ := newTestSource(t, []byte("abc"), 4)

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if src.IsOpen() {
		t.Error("IsOpen should be false after Close")
	}
	if _, err := src.Read(make([]byte, 1)); !errors.Is(err, omnivolume.ErrReaderClosed) {
		t.Errorf("Read after Close error = %v, want ErrReaderClosed", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestNewWithClientNotFound(t *testing.T) {
	api := &fakeAPI{key: "other"}
	_, err := NewWithClient(context.Background(), api, Config{Bucket: "bucket", Key: "missing"})
	if !omnivolume.IsNotFound(err) {
		t.Errorf("NewWithClient missing key error = %v, want not found", err)
	}
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantNotFound   bool
		wantPermission bool
	}{
		{name: "nil", err: nil},
		{name: "not found", err: &types.NotFound{}, wantNotFound: true},
		{name: "no such key", err: &types.NoSuchKey{}, wantNotFound: true},
		{name: "no such bucket", err: &types.NoSuchBucket{}, wantNotFound: true},
		{name: "api not found", err: &smithy.GenericAPIError{Code: "NoSuchKey"}, wantNotFound: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, wantPermission: true},
		{name: "bad signature", err: &smithy.GenericAPIError{Code: "SignatureDoesNotMatch"}, wantPermission: true},
		{name: "other", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.err, "bucket", "key")
			if tt.err == nil {
				if got != nil {
					t.Errorf("translateError(nil) = %v, want nil", got)
				}
				return
			}
			if omnivolume.IsNotFound(got) != tt.wantNotFound {
				t.Errorf("IsNotFound(%v) = %v, want %v", got, !tt.wantNotFound, tt.wantNotFound)
			}
			if omnivolume.IsPermissionDenied(got) != tt.wantPermission {
				t.Errorf("IsPermissionDenied(%v) = %v, want %v", got, !tt.wantPermission, tt.wantPermission)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"valid", Config{Bucket: "b", Key: "k"}, nil},
		{"missing bucket", Config{Key: "k"}, ErrBucketRequired},
		{"missing key", Config{Bucket: "b"}, ErrKeyRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	if got := DefaultConfig().ChunkSize; got != 1024*1024 {
		t.Errorf("ChunkSize = %d, want %d", got, 1024*1024)
	}
}

func TestConfigFromMap(t *testing.T) {
	config := ConfigFromMap(map[string]string{
		"bucket":         "my-bucket",
		"key":            "disk.raw",
		"region":         "us-west-2",
		"endpoint":       "http://localhost:9000",
		"prefix":         "images",
		"use_path_style": "true",
		"disable_ssl":    "1",
		"chunk_size":     "4096",
	})

	if config.Bucket != "my-bucket" {
		t.Errorf("Bucket = %q, want %q", config.Bucket, "my-bucket")
	}
	if config.Key != "disk.raw" {
		t.Errorf("Key = %q, want %q", config.Key, "disk.raw")
	}
	if config.Region != "us-west-2" {
		t.Errorf("Region = %q, want %q", config.Region, "us-west-2")
	}
	if config.Endpoint != "http://localhost:9000" {
		t.Errorf("Endpoint = %q, want %q", config.Endpoint, "http://localhost:9000")
	}
	if config.Prefix != "images" {
		t.Errorf("Prefix = %q, want %q", config.Prefix, "images")
	}
	if !config.UsePathStyle {
		t.Error("UsePathStyle should be true")
	}
	if !config.DisableSSL {
		t.Error("DisableSSL should be true")
	}
	if config.ChunkSize != 4096 {
		t.Errorf("ChunkSize = %d, want 4096", config.ChunkSize)
	}

	// Invalid chunk size keeps the default
	config = ConfigFromMap(map[string]string{"chunk_size": "-1"})
	if config.ChunkSize != DefaultConfig().ChunkSize {
		t.Errorf("ChunkSize = %d, want default", config.ChunkSize)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OMNIVOLUME_S3_BUCKET", "env-bucket")
	t.Setenv("OMNIVOLUME_S3_KEY", "env.raw")
	t.Setenv("OMNIVOLUME_S3_REGION", "eu-central-1")
	t.Setenv("OMNIVOLUME_S3_USE_PATH_STYLE", "true")

	config := ConfigFromEnv()
	if config.Bucket != "env-bucket" {
		t.Errorf("Bucket = %q, want %q", config.Bucket, "env-bucket")
	}
	if config.Key != "env.raw" {
		t.Errorf("Key = %q, want %q", config.Key, "env.raw")
	}
	if config.Region != "eu-central-1" {
		t.Errorf("Region = %q, want %q", config.Region, "eu-central-1")
	}
	if !config.UsePathStyle {
		t.Error("UsePathStyle should be true")
	}
}

func TestRegistry(t *testing.T) {
	if !omnivolume.IsRegistered("s3") {
		t.Error("s3 source should be registered")
	}
}

// Integration test that requires a real S3-compatible service.
// Set OMNIVOLUME_S3_TEST_BUCKET and OMNIVOLUME_S3_TEST_KEY to run it.
func TestIntegrationRead(t *testing.T) {
	bucket := os.Getenv("OMNIVOLUME_S3_TEST_BUCKET")
	key := os.Getenv("OMNIVOLUME_S3_TEST_KEY")
	if bucket == "" || key == "" {
		t.Skip("OMNIVOLUME_S3_TEST_BUCKET or OMNIVOLUME_S3_TEST_KEY not set, skipping integration test")
	}

	src, err := New(context.Background(), Config{
		Bucket:       bucket,
		Key:          key,
		Region:       os.Getenv("OMNIVOLUME_S3_TEST_REGION"),
		Endpoint:     os.Getenv("OMNIVOLUME_S3_TEST_ENDPOINT"),
		UsePathStyle: os.Getenv("OMNIVOLUME_S3_USE_PATH_STYLE") == "true",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = src.Close() }()

	size, err := src.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	content, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if int64(len(content)) != size {
		t.Errorf("read %d bytes, want %d", len(content), size)
	}
}
