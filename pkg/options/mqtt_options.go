package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/vajra-io/vajra/pkg/mqtt"
	"github.com/vajra-io/vajra/pkg/mqtt/topic"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for the MQTT client and the tracker topics.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ReconnectDelay time.Duration `json:"reconnect-delay" mapstructure:"reconnect-delay"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// If true, TLS accepts any certificate presented by the server and any host name in that certificate.
	// In this mode, TLS is susceptible to man-in-the-middle attacks. This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// Tracker addressing. Topics are {TopicRoot}/{IMEI}/up|down for the
	// mobile layout and {TopicRoot}/device/{IMEI}/data|control for web.
	IMEI      string `json:"imei" mapstructure:"imei"`
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
	Layout    string `json:"layout" mapstructure:"layout"`

	// Commands
	CommandFormat  string        `json:"command-format" mapstructure:"command-format"`
	QoS            int           `json:"qos" mapstructure:"qos"`
	PublishTimeout time.Duration `json:"publish-timeout" mapstructure:"publish-timeout"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:         "wss://broker.emqx.io:8084/mqtt",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReconnectDelay: 3 * time.Second,
		CleanStart:     true,
		IMEI:           "887744556677882",
		TopicRoot:      "telematics",
		Layout:         string(topic.LayoutMobile),
		CommandFormat:  "set-do",
		QoS:            1,
		PublishTimeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := o.ToClientConfig().Validate(); err != nil {
		errors = append(errors, fmt.Errorf("--mqtt.broker: %w", err))
	}
	if o.IMEI == "" {
		errors = append(errors, fmt.Errorf("--mqtt.imei must not be empty"))
	}
	if o.TopicRoot == "" {
		errors = append(errors, fmt.Errorf("--mqtt.topic-root must not be empty"))
	}
	if _, err := topic.ParseLayout(o.Layout); err != nil {
		errors = append(errors, fmt.Errorf("--mqtt.layout: %w", err))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errors = append(errors, fmt.Errorf("--mqtt.qos must be 0, 1 or 2, got %d", o.QoS))
	}
	if o.KeepAlive < time.Second || o.KeepAlive.Seconds() > 65535 {
		errors = append(errors, fmt.Errorf("--mqtt.keep-alive must be between 1s and 65535s, got %s", o.KeepAlive))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit Client ID (optional, usually generated).")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.DurationVar(&o.ReconnectDelay, "mqtt.reconnect-delay", o.ReconnectDelay, "Constant delay between reconnect attempts.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start a clean MQTT session on the first connection.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	// Topics
	fs.StringVar(&o.IMEI, "mqtt.imei", o.IMEI, "IMEI of the tracker to follow.")
	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Root of the tracker topic tree.")
	fs.StringVar(&o.Layout, "mqtt.layout", o.Layout, "Topic layout of the tracker firmware ('mobile' or 'web').")

	// Commands
	fs.StringVar(&o.CommandFormat, "mqtt.command-format", o.CommandFormat, "JSON shape of immobilizer commands ('set-do' or 'flat').")
	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS for subscriptions and command publishes.")
	fs.DurationVar(&o.PublishTimeout, "mqtt.publish-timeout", o.PublishTimeout, "Timeout for a single command publish.")
}

// ToClientConfig converts the options into a pkg/mqtt client configuration.
func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		ReconnectDelay:     o.ReconnectDelay,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}

// TopicBuilder returns the builder for the configured topic tree. Call it
// after Validate.
func (o *MqttOptions) TopicBuilder() *topic.TopicBuilder {
	layout, _ := topic.ParseLayout(o.Layout)
	return topic.NewTopicBuilder(o.TopicRoot, layout)
}
