package frame

import (
	"time"
)

// Source tells where a record came from.
type Source string

const (
	SourceLive      Source = "LIVE"
	SourceSimulated Source = "SIMULATED"
)

// Kind separates telemetry frames from control acknowledgements.
type Kind string

const (
	KindData    Kind = "DATA"
	KindControl Kind = "CTRL"
)

// BatteryUnit describes how Record.Battery must be read.
type BatteryUnit string

const (
	// BatteryDeciVolts: the wire carries volts*10, the record carries volts.
	BatteryDeciVolts BatteryUnit = "deci-volts"
	// BatteryPercent: the wire and the record carry a raw 0-100 percentage.
	BatteryPercent BatteryUnit = "percent"
)

// Record is one decoded frame. It is a superset of the fields found across
// all layout revisions; a revision leaves the fields it does not carry nil
// or zero. Records are values and must not be mutated once decoded.
type Record struct {
	Revision Revision `json:"revision"`
	Kind     Kind     `json:"kind"`
	Source   Source   `json:"source"`
	CRCValid bool     `json:"crcValid"`

	// DeclaredLength is the length prefix sent by the device. It is never
	// used for integrity.
	DeclaredLength int    `json:"declaredLength"`
	Raw            string `json:"raw,omitempty"`

	IMEI        string `json:"imei,omitempty"`
	FrameNumber int64  `json:"frameNumber"`
	Timestamp   int64  `json:"timestamp"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	HasGPSFix bool     `json:"hasGpsFix"`
	SpeedKmh  float64  `json:"speedKmh"`

	Ignition    *bool `json:"ignition,omitempty"`
	Immobilizer *bool `json:"immobilizer,omitempty"`

	Battery     *float64    `json:"battery,omitempty"`
	BatteryUnit BatteryUnit `json:"batteryUnit,omitempty"`

	// Revision A only.
	PacketStatus   int     `json:"packetStatus,omitempty"`
	OperatorCode   string  `json:"operatorCode,omitempty"`
	SignalStrength int     `json:"signalStrength,omitempty"`
	MCC            int     `json:"mcc,omitempty"`
	MNC            int     `json:"mnc,omitempty"`
	FixStatus      int     `json:"fixStatus,omitempty"`
	HDOP           float64 `json:"hdop,omitempty"`
	PDOP           float64 `json:"pdop,omitempty"`
}

var operatorNames = map[string]string{
	"00": "Unknown",
	"01": "BSNL",
	"02": "VI",
	"03": "Airtel",
	"04": "JIO",
}

// Operator returns the network operator name for OperatorCode.
func (r *Record) Operator() string {
	if name, ok := operatorNames[r.OperatorCode]; ok {
		return name
	}
	return "Unknown"
}

// Time returns the device timestamp in UTC.
func (r *Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// TimestampUTC is the human-readable form of the device timestamp.
func (r *Record) TimestampUTC() string {
	return r.Time().Format(time.RFC1123)
}

// Position returns the coordinates when the record carries a GPS fix.
func (r *Record) Position() (lat, lon float64, ok bool) {
	if !r.HasGPSFix || r.Latitude == nil || r.Longitude == nil {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// IgnitionOn reports the ignition flag, false when absent.
func (r *Record) IgnitionOn() bool {
	return r.Ignition != nil && *r.Ignition
}

// ImmobilizerOn reports the immobilizer flag, false when absent.
func (r *Record) ImmobilizerOn() bool {
	return r.Immobilizer != nil && *r.Immobilizer
}

// Float builds an optional numeric field of a Record.
func Float(v float64) *float64 { return &v }

// Bool builds an optional flag of a Record.
func Bool(v bool) *bool { return &v }
