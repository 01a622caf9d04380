package options

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*VehicleOptions)(nil)

// Transport modes.
const (
	TransportBroker    = "broker"
	TransportSimulator = "simulator"
)

// VehicleOptions configures the reconciler and the simulated fallback device.
type VehicleOptions struct {
	// Transport is "broker" for a live MQTT link or "simulator" to run
	// offline with the simulator as transport.
	Transport string `json:"transport" mapstructure:"transport"`

	TickInterval          time.Duration `json:"tick-interval" mapstructure:"tick-interval"`
	StickyLiveRecord      bool          `json:"sticky-live-record" mapstructure:"sticky-live-record"`
	IgnitionPolicy        string        `json:"ignition-policy" mapstructure:"ignition-policy"`
	AcceptInvalidChecksum bool          `json:"accept-invalid-checksum" mapstructure:"accept-invalid-checksum"`
	CloseTimeout          time.Duration `json:"close-timeout" mapstructure:"close-timeout"`

	// ZoneFile is a GeoJSON FeatureCollection watched for changes. When
	// empty the built-in city centre fence is used.
	ZoneFile string `json:"zone-file" mapstructure:"zone-file"`

	// Simulator
	SimulatorRevision string        `json:"simulator-revision" mapstructure:"simulator-revision"`
	SimulatorSeed     int64         `json:"simulator-seed" mapstructure:"simulator-seed"`
	SimulatorAckDelay time.Duration `json:"simulator-ack-delay" mapstructure:"simulator-ack-delay"`
}

// NewVehicleOptions creates a VehicleOptions object with default parameters.
func NewVehicleOptions() *VehicleOptions {
	return &VehicleOptions{
		Transport:         TransportBroker,
		TickInterval:      2 * time.Second,
		IgnitionPolicy:    "independent",
		CloseTimeout:      5 * time.Second,
		SimulatorRevision: "A",
		SimulatorAckDelay: 300 * time.Millisecond,
	}
}

func (o *VehicleOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Transport {
	case TransportBroker, TransportSimulator:
	default:
		errors = append(errors, fmt.Errorf("--vehicle.transport must be %q or %q, got %q", TransportBroker, TransportSimulator, o.Transport))
	}
	if o.TickInterval <= 0 {
		errors = append(errors, fmt.Errorf("--vehicle.tick-interval must be positive"))
	}
	switch strings.ToLower(o.IgnitionPolicy) {
	case "independent", "coupled":
	default:
		errors = append(errors, fmt.Errorf("--vehicle.ignition-policy must be 'independent' or 'coupled', got %q", o.IgnitionPolicy))
	}
	switch strings.ToUpper(o.SimulatorRevision) {
	case "A", "B", "C":
	default:
		errors = append(errors, fmt.Errorf("--vehicle.simulator-revision must be A, B or C, got %q", o.SimulatorRevision))
	}
	if o.SimulatorAckDelay < 0 {
		errors = append(errors, fmt.Errorf("--vehicle.simulator-ack-delay must not be negative"))
	}

	return errors
}

func (o *VehicleOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Transport, "vehicle.transport", o.Transport, "Vehicle link: 'broker' for MQTT or 'simulator' to run offline.")
	fs.DurationVar(&o.TickInterval, "vehicle.tick-interval", o.TickInterval, "Interval of simulated frames while no live link is up.")
	fs.BoolVar(&o.StickyLiveRecord, "vehicle.sticky-live-record", o.StickyLiveRecord, "Keep the last live record as latest when simulated frames arrive.")
	fs.StringVar(&o.IgnitionPolicy, "vehicle.ignition-policy", o.IgnitionPolicy, "How ignition relates to the immobilizer ('independent' or 'coupled').")
	fs.BoolVar(&o.AcceptInvalidChecksum, "vehicle.accept-invalid-checksum", o.AcceptInvalidChecksum, "Ingest frames whose checksum does not match.")
	fs.DurationVar(&o.CloseTimeout, "vehicle.close-timeout", o.CloseTimeout, "Time allowed for the transport to close on shutdown.")
	fs.StringVar(&o.ZoneFile, "vehicle.zone-file", o.ZoneFile, "GeoJSON file with geofence zones, reloaded on change.")

	fs.StringVar(&o.SimulatorRevision, "vehicle.simulator-revision", o.SimulatorRevision, "Frame revision the simulator emits (A, B or C).")
	fs.Int64Var(&o.SimulatorSeed, "vehicle.simulator-seed", o.SimulatorSeed, "Random seed of the simulator, 0 picks one.")
	fs.DurationVar(&o.SimulatorAckDelay, "vehicle.simulator-ack-delay", o.SimulatorAckDelay, "Delay before the simulator acknowledges a command.")
}
