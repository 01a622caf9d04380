package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options configures the telemetry archive. The archive is off unless
// Enabled is set.
type S3Options struct {
	Enabled         bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool   `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string `json:"bucket-name" mapstructure:"bucket-name"`
	Region          string `json:"region" mapstructure:"region"`

	// A batch is uploaded when it holds BatchSize records or when
	// FlushInterval has passed since its first record.
	BatchSize     int           `json:"batch-size" mapstructure:"batch-size"`
	FlushInterval time.Duration `json:"flush-interval" mapstructure:"flush-interval"`
}

func NewS3Options() *S3Options {
	return &S3Options{
		Endpoint:      "localhost:9000",
		UseSSL:        false,
		BucketName:    "vajra-telemetry",
		Region:        "us-east-1",
		BatchSize:     100,
		FlushInterval: time.Minute,
	}
}

func (o *S3Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	errors := []error{}

	if o.Endpoint == "" {
		errors = append(errors, fmt.Errorf("--s3.endpoint must not be empty"))
	}
	if o.BucketName == "" {
		errors = append(errors, fmt.Errorf("--s3.bucket-name must not be empty"))
	}
	if o.BatchSize <= 0 {
		errors = append(errors, fmt.Errorf("--s3.batch-size must be positive, got %d", o.BatchSize))
	}
	if o.FlushInterval <= 0 {
		errors = append(errors, fmt.Errorf("--s3.flush-interval must be positive"))
	}

	return errors
}

func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "s3.enabled", o.Enabled, "Archive accepted telemetry to S3 compatible storage.")
	fs.StringVar(&o.Endpoint, "s3.endpoint", o.Endpoint, "S3 service endpoint (e.g. s3.amazonaws.com or minio.local)")
	fs.StringVar(&o.AccessKeyID, "s3.access-key-id", o.AccessKeyID, "S3 access key ID")
	fs.StringVar(&o.SecretAccessKey, "s3.secret-access-key", o.SecretAccessKey, "S3 secret access key")
	fs.BoolVar(&o.UseSSL, "s3.use-ssl", o.UseSSL, "Enable SSL for S3 connection")
	fs.StringVar(&o.BucketName, "s3.bucket-name", o.BucketName, "S3 bucket name for the telemetry archive")
	fs.StringVar(&o.Region, "s3.region", o.Region, "S3 region")
	fs.IntVar(&o.BatchSize, "s3.batch-size", o.BatchSize, "Records per archive object.")
	fs.DurationVar(&o.FlushInterval, "s3.flush-interval", o.FlushInterval, "Maximum age of a pending archive batch.")
}
