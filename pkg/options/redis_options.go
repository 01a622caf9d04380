package options

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

var _ IOptions = (*RedisOptions)(nil)

// RedisOptions configures the snapshot mirror. An empty URL disables it.
type RedisOptions struct {
	// URL in the redis://[user:password@]host:port/db form.
	URL       string        `json:"url" mapstructure:"url"`
	KeyPrefix string        `json:"key-prefix" mapstructure:"key-prefix"`
	TTL       time.Duration `json:"ttl" mapstructure:"ttl"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewRedisOptions creates a RedisOptions object with default parameters.
func NewRedisOptions() *RedisOptions {
	return &RedisOptions{
		KeyPrefix: "vajra",
		Timeout:   5 * time.Second,
	}
}

// Enabled reports whether a redis URL was configured.
func (o *RedisOptions) Enabled() bool {
	return o != nil && o.URL != ""
}

func (o *RedisOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	errors := []error{}

	if _, err := redis.ParseURL(o.URL); err != nil {
		errors = append(errors, fmt.Errorf("--redis.url: %w", err))
	}
	if o.KeyPrefix == "" {
		errors = append(errors, fmt.Errorf("--redis.key-prefix must not be empty"))
	}
	if o.TTL < 0 {
		errors = append(errors, fmt.Errorf("--redis.ttl must not be negative"))
	}

	return errors
}

func (o *RedisOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.URL, "redis.url", o.URL, "Redis URL for the snapshot mirror; empty disables it.")
	fs.StringVar(&o.KeyPrefix, "redis.key-prefix", o.KeyPrefix, "Prefix of the snapshot key and breach channel.")
	fs.DurationVar(&o.TTL, "redis.ttl", o.TTL, "Expiry of the mirrored snapshot, 0 keeps it forever.")
	fs.DurationVar(&o.Timeout, "redis.timeout", o.Timeout, "Timeout for a single redis call.")
}

// ToRedisOptions parses the URL into client options.
func (o *RedisOptions) ToRedisOptions() (*redis.Options, error) {
	opt, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, err
	}
	return opt, nil
}
