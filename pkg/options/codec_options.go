package options

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/vajra-io/vajra/pkg/frame"
)

var _ IOptions = (*CodecOptions)(nil)

// CodecOptions selects the battery unit of every revision and the revision
// outbound frames are written in.
type CodecOptions struct {
	BatteryA string `json:"battery-a" mapstructure:"battery-a"`
	BatteryB string `json:"battery-b" mapstructure:"battery-b"`
	BatteryC string `json:"battery-c" mapstructure:"battery-c"`
	Encode   string `json:"encode" mapstructure:"encode"`
}

// NewCodecOptions returns the units of the known hardware revisions.
func NewCodecOptions() *CodecOptions {
	def := frame.DefaultOptions()
	return &CodecOptions{
		BatteryA: string(def.Battery[frame.RevisionA]),
		BatteryB: string(def.Battery[frame.RevisionB]),
		BatteryC: string(def.Battery[frame.RevisionC]),
		Encode:   string(def.Encode),
	}
}

func (o *CodecOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if _, err := o.ToCodecOptions(); err != nil {
		return []error{err}
	}
	return nil
}

func (o *CodecOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	usage := "Battery unit of revision %s frames ('deci-volts' or 'percent')."
	fs.StringVar(&o.BatteryA, "codec.battery-a", o.BatteryA, fmt.Sprintf(usage, frame.RevisionA))
	fs.StringVar(&o.BatteryB, "codec.battery-b", o.BatteryB, fmt.Sprintf(usage, frame.RevisionB))
	fs.StringVar(&o.BatteryC, "codec.battery-c", o.BatteryC, fmt.Sprintf(usage, frame.RevisionC))
	fs.StringVar(&o.Encode, "codec.encode", o.Encode, "Revision used when encoding frames (A, B or C).")
}

// ToCodecOptions converts and validates the options.
func (o *CodecOptions) ToCodecOptions() (frame.Options, error) {
	rev, err := frame.ParseRevision(o.Encode)
	if err != nil {
		return frame.Options{}, fmt.Errorf("--codec.encode: %w", err)
	}
	opts := frame.Options{
		Battery: map[frame.Revision]frame.BatteryUnit{
			frame.RevisionA: frame.BatteryUnit(o.BatteryA),
			frame.RevisionB: frame.BatteryUnit(o.BatteryB),
			frame.RevisionC: frame.BatteryUnit(o.BatteryC),
		},
		Encode: rev,
	}
	if err := opts.Validate(); err != nil {
		return frame.Options{}, err
	}
	return opts, nil
}
