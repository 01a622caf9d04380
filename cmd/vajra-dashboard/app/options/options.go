package options

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/vajra-io/vajra/internal/dashboard"
	"github.com/vajra-io/vajra/pkg/log"
	"github.com/vajra-io/vajra/pkg/options"
)

// EnvPrefix prefixes every environment override, e.g. VAJRA_MQTT_BROKER.
const EnvPrefix = "VAJRA"

type DashboardOptions struct {
	MqttOptions    *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions    *options.HttpOptions    `json:"http" mapstructure:"http"`
	S3Options      *options.S3Options      `json:"s3" mapstructure:"s3"`
	RedisOptions   *options.RedisOptions   `json:"redis" mapstructure:"redis"`
	CodecOptions   *options.CodecOptions   `json:"codec" mapstructure:"codec"`
	VehicleOptions *options.VehicleOptions `json:"vehicle" mapstructure:"vehicle"`
	Log            *log.Options            `json:"log" mapstructure:"log"`

	// ConfigFile is a YAML, JSON or TOML file with the same layout as the
	// flags, e.g. mqtt.broker.
	ConfigFile string `json:"-" mapstructure:"-"`
}

func NewDashboardOptions() *DashboardOptions {
	return &DashboardOptions{
		MqttOptions:    options.NewMqttOptions(),
		HttpOptions:    options.NewHttpOptions(),
		S3Options:      options.NewS3Options(),
		RedisOptions:   options.NewRedisOptions(),
		CodecOptions:   options.NewCodecOptions(),
		VehicleOptions: options.NewVehicleOptions(),
		Log:            log.NewOptions(),
	}
}

func (o *DashboardOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fss.FlagSet("generic").StringVar(&o.ConfigFile, "config", o.ConfigFile, "Path to a configuration file. Flags and VAJRA_* environment variables override it.")
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.VehicleOptions.AddFlags(fss.FlagSet("vehicle"))
	o.CodecOptions.AddFlags(fss.FlagSet("codec"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("Log"))
	return fss
}

// Complete merges the config file and the environment into the options.
// Precedence is flag, then environment, then file, then default.
func (o *DashboardOptions) Complete(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", o.ConfigFile, err)
		}
	}

	if err := v.Unmarshal(o); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}

func (o *DashboardOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.CodecOptions.Validate()...)
	errs = append(errs, o.VehicleOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *DashboardOptions) Config() (*dashboard.Config, error) {
	return &dashboard.Config{
		MqttOptions:    o.MqttOptions,
		HttpOptions:    o.HttpOptions,
		S3Options:      o.S3Options,
		RedisOptions:   o.RedisOptions,
		CodecOptions:   o.CodecOptions,
		VehicleOptions: o.VehicleOptions,
	}, nil
}
