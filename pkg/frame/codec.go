// Package frame implements the tracker's delimited telemetry format:
// $<payload>*<XOR checksum>, in every layout revision seen in the field.
package frame

import (
	"fmt"
	"math"
	"strings"
)

// Options configures a Codec.
type Options struct {
	// Battery says, per revision, whether the battery field is deci-volts
	// or a raw percentage. The codec never guesses from the magnitude.
	Battery map[Revision]BatteryUnit `json:"battery" mapstructure:"battery"`

	// Encode is the revision Encode writes.
	Encode Revision `json:"encode" mapstructure:"encode"`
}

// DefaultOptions returns the units the known hardware revisions report.
func DefaultOptions() Options {
	return Options{
		Battery: map[Revision]BatteryUnit{
			RevisionA: BatteryDeciVolts,
			RevisionB: BatteryPercent,
			RevisionC: BatteryDeciVolts,
		},
		Encode: RevisionB,
	}
}

// Validate checks that every unit and the encode revision are known.
func (o Options) Validate() error {
	for rev, unit := range o.Battery {
		if _, err := ParseRevision(string(rev)); err != nil {
			return err
		}
		if unit != BatteryDeciVolts && unit != BatteryPercent {
			return fmt.Errorf("revision %s: unknown battery unit %q", rev, unit)
		}
	}
	if _, err := ParseRevision(string(o.Encode)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// Codec converts between raw frames and Records. It holds no mutable state
// and is safe for concurrent use.
type Codec struct {
	opts Options
}

// NewCodec validates opts and fills in missing battery units from the
// defaults.
func NewCodec(opts Options) (*Codec, error) {
	defaults := DefaultOptions()
	merged := Options{
		Battery: make(map[Revision]BatteryUnit, len(Revisions)),
		Encode:  opts.Encode,
	}
	for rev, unit := range defaults.Battery {
		merged.Battery[rev] = unit
	}
	for rev, unit := range opts.Battery {
		merged.Battery[rev] = unit
	}
	if merged.Encode == "" {
		merged.Encode = defaults.Encode
	}
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid codec options: %w", err)
	}
	return &Codec{opts: merged}, nil
}

// Options returns the effective options.
func (c *Codec) Options() Options {
	return c.opts
}

// BatteryUnit returns the configured unit for rev.
func (c *Codec) BatteryUnit(rev Revision) BatteryUnit {
	return c.opts.Battery[rev]
}

// Decode parses one frame. A malformed frame yields a nil Record and an
// error wrapping one of the Err* sentinels; Decode never panics. A frame
// whose checksum does not match is still decoded, with CRCValid false.
func (c *Codec) Decode(raw string, src Source) (rec *Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("%w: %v", ErrUnknownLayout, r)
		}
	}()

	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "$") {
		return nil, ErrMissingStart
	}
	star := strings.LastIndexByte(raw, '*')
	if star < 0 {
		return nil, ErrMissingTrailer
	}

	payload := raw[1:star]
	want, ok := parseChecksum(raw[star+1:])
	crcValid := ok && want == Checksum(payload)

	l, tokens, err := sniff(payload)
	if err != nil {
		return nil, err
	}
	if len(tokens) < l.minTokens {
		return nil, fmt.Errorf("%w: revision %s %s wants %d, got %d",
			ErrTooFewFields, l.revision, l.kind, l.minTokens, len(tokens))
	}

	rec, err = l.decode(tokens, c.opts.Battery[l.revision])
	if err != nil {
		return nil, err
	}
	rec.Revision = l.revision
	rec.Kind = l.kind
	rec.Source = src
	rec.CRCValid = crcValid
	rec.Raw = raw
	return rec, nil
}

// Encode writes rec in the configured revision.
func (c *Codec) Encode(rec *Record) (string, error) {
	return c.EncodeAs(c.opts.Encode, rec)
}

// EncodeAs writes rec in revision rev, including the length prefix and the
// checksum trailer.
func (c *Codec) EncodeAs(rev Revision, rec *Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if rec.Kind == KindControl {
		return c.EncodeControl(rec.ImmobilizerOn(), rec.IgnitionOn()), nil
	}

	var (
		payload string
		err     error
	)
	unit := c.opts.Battery[rev]
	switch rev {
	case RevisionA:
		payload, err = encodeRevisionA(rec, unit)
	case RevisionB:
		payload, err = encodeRevisionB(rec, unit)
	case RevisionC:
		payload, err = encodeRevisionC(rec, unit)
	default:
		return "", fmt.Errorf("%w: revision %q", ErrInvalidRecord, rev)
	}
	if err != nil {
		return "", err
	}
	return seal(payload), nil
}

// EncodeControl builds a CTRL acknowledgement frame.
func (c *Codec) EncodeControl(immobilizer, ignition bool) string {
	return seal(encodeControl(immobilizer, ignition))
}

func seal(payload string) string {
	return "$" + payload + "*" + FormatChecksum(Checksum(payload))
}

func round(v float64) int64 {
	return int64(math.Round(v))
}
