package s3

import (
	"os"
	"strconv"
)

// Config holds configuration for the S3 source.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Key is the object key of the volume image (required).
	Key string

	// Region is the AWS region (e.g., "us-east-1").
	// If empty, uses AWS_REGION or AWS_DEFAULT_REGION environment variable.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible services.
	// Examples:
	//   - MinIO: "http://localhost:9000"
	//   - Cloudflare R2: "https://<account_id>.r2.cloudflarestorage.com"
	// Leave empty for AWS S3.
	Endpoint string

	// Prefix is an optional prefix prepended to Key.
	Prefix string

	// AccessKeyID is the AWS access key ID.
	// If empty, uses AWS_ACCESS_KEY_ID environment variable or IAM role.
	AccessKeyID string

	// SecretAccessKey is the AWS secret access key.
	// If empty, uses AWS_SECRET_ACCESS_KEY environment variable or IAM role.
	SecretAccessKey string

	// SessionToken is an optional session token for temporary credentials.
	SessionToken string

	// UsePathStyle forces path-style addressing instead of virtual-hosted-style.
	// Required for some S3-compatible services like MinIO.
	UsePathStyle bool

	// DisableSSL disables HTTPS for the endpoint.
	// Only use for local development (e.g., local MinIO).
	DisableSSL bool

	// ChunkSize is the minimum number of bytes fetched per ranged GET.
	// Storage engines issue many small reads; fetching a chunk and serving
	// the following reads from it keeps the request count down.
	// Default: 1MB.
	ChunkSize int64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ChunkSize: 1024 * 1024, // 1MB
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - OMNIVOLUME_S3_BUCKET or AWS_S3_BUCKET: bucket name
//   - OMNIVOLUME_S3_KEY: object key
//   - OMNIVOLUME_S3_REGION or AWS_REGION or AWS_DEFAULT_REGION: region
//   - OMNIVOLUME_S3_ENDPOINT: custom endpoint
//   - OMNIVOLUME_S3_PREFIX: key prefix
//   - AWS_ACCESS_KEY_ID: access key
//   - AWS_SECRET_ACCESS_KEY: secret key
//   - AWS_SESSION_TOKEN: session token
//   - OMNIVOLUME_S3_USE_PATH_STYLE: "true" for path-style addressing
//   - OMNIVOLUME_S3_DISABLE_SSL: "true" to disable SSL
func ConfigFromEnv() Config {
	config := DefaultConfig()

	// Bucket
	if v := os.Getenv("OMNIVOLUME_S3_BUCKET"); v != "" {
		config.Bucket = v
	} else if v := os.Getenv("AWS_S3_BUCKET"); v != "" {
		config.Bucket = v
	}

	config.Key = os.Getenv("OMNIVOLUME_S3_KEY")

	// Region
	if v := os.Getenv("OMNIVOLUME_S3_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_DEFAULT_REGION"); v != "" {
		config.Region = v
	}

	if v := os.Getenv("OMNIVOLUME_S3_ENDPOINT"); v != "" {
		config.Endpoint = v
	}
	if v := os.Getenv("OMNIVOLUME_S3_PREFIX"); v != "" {
		config.Prefix = v
	}

	// Credentials from environment (AWS SDK will also pick these up)
	config.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	config.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	config.SessionToken = os.Getenv("AWS_SESSION_TOKEN")

	if v := os.Getenv("OMNIVOLUME_S3_USE_PATH_STYLE"); v == "true" || v == "1" {
		config.UsePathStyle = true
	}
	if v := os.Getenv("OMNIVOLUME_S3_DISABLE_SSL"); v == "true" || v == "1" {
		config.DisableSSL = true
	}

	return config
}

// ConfigFromMap creates a Config from a string map.
// Supported keys:
//   - bucket: bucket name (required)
//   - key: object key (required)
//   - region: AWS region
//   - endpoint: custom endpoint URL
//   - prefix: key prefix
//   - access_key_id: AWS access key
//   - secret_access_key: AWS secret key
//   - session_token: session token
//   - use_path_style: "true" for path-style addressing
//   - disable_ssl: "true" to disable SSL
//   - chunk_size: minimum ranged GET size in bytes
func ConfigFromMap(m map[string]string) Config {
	config := DefaultConfig()

	if v, ok := m["bucket"]; ok {
		config.Bucket = v
	}
	if v, ok := m["key"]; ok {
		config.Key = v
	}
	if v, ok := m["region"]; ok {
		config.Region = v
	}
	if v, ok := m["endpoint"]; ok {
		config.Endpoint = v
	}
	if v, ok := m["prefix"]; ok {
		config.Prefix = v
	}
	if v, ok := m["access_key_id"]; ok {
		config.AccessKeyID = v
	}
	if v, ok := m["secret_access_key"]; ok {
		config.SecretAccessKey = v
	}
	if v, ok := m["session_token"]; ok {
		config.SessionToken = v
	}
	if v, ok := m["use_path_style"]; ok && (v == "true" || v == "1") {
		config.UsePathStyle = true
	}
	if v, ok := m["disable_ssl"]; ok && (v == "true" || v == "1") {
		config.DisableSSL = true
	}
	if v, ok := m["chunk_size"]; ok {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil && size > 0 {
			config.ChunkSize = size
		}
	}

	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	if c.Key == "" {
		return ErrKeyRequired
	}
	return nil
}
