package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CommandKind names an outbound command.
type CommandKind string

const (
	CommandImmobilizer     CommandKind = "immobilizer"
	CommandPollingInterval CommandKind = "polling-interval"
	CommandOptimizerMode   CommandKind = "optimizer-mode"
)

// OptimizerMode is the tracker's reporting profile.
type OptimizerMode string

const (
	ModeHigh OptimizerMode = "HIGH"
	ModeMid  OptimizerMode = "MID"
	ModeLow  OptimizerMode = "LOW"
)

// ParseOptimizerMode accepts HIGH, MID or LOW in any case.
func ParseOptimizerMode(s string) (OptimizerMode, error) {
	switch m := OptimizerMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeHigh, ModeMid, ModeLow:
		return m, nil
	}
	return "", fmt.Errorf("unknown optimizer mode %q", s)
}

// CommandFormat selects the JSON shape of an immobilizer command.
type CommandFormat string

const (
	// FormatSetDO is {"command":"SET_DO","pin":"DO1","state":0|1,...}.
	FormatSetDO CommandFormat = "set-do"
	// FormatFlat is {"immobilize":0|1,...}.
	FormatFlat CommandFormat = "flat"
)

// ParseCommandFormat accepts "set-do" or "flat".
func ParseCommandFormat(s string) (CommandFormat, error) {
	switch f := CommandFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSetDO, FormatFlat:
		return f, nil
	}
	return "", fmt.Errorf("unknown command format %q (want %q or %q)", s, FormatSetDO, FormatFlat)
}

// Pin driving the immobilizer relay.
const ImmobilizerPin = "DO1"

// Command is a structured outbound command.
type Command struct {
	Kind CommandKind
	// IMEI of the target device, empty when unknown.
	IMEI      string
	Timestamp time.Time

	Immobilize      bool
	IntervalSeconds int
	Mode            OptimizerMode
}

// ImmobilizerCommand sets the immobilizer output.
func ImmobilizerCommand(imei string, on bool, at time.Time) Command {
	return Command{Kind: CommandImmobilizer, IMEI: imei, Immobilize: on, Timestamp: at}
}

// PollingIntervalCommand changes the telemetry interval.
func PollingIntervalCommand(imei string, seconds int, at time.Time) Command {
	return Command{Kind: CommandPollingInterval, IMEI: imei, IntervalSeconds: seconds, Timestamp: at}
}

// OptimizerModeCommand switches the reporting profile.
func OptimizerModeCommand(imei string, mode OptimizerMode, at time.Time) Command {
	return Command{Kind: CommandOptimizerMode, IMEI: imei, Mode: mode, Timestamp: at}
}

func (c Command) String() string {
	switch c.Kind {
	case CommandImmobilizer:
		return fmt.Sprintf("immobilizer=%t", c.Immobilize)
	case CommandPollingInterval:
		return fmt.Sprintf("interval=%ds", c.IntervalSeconds)
	case CommandOptimizerMode:
		return fmt.Sprintf("mode=%s", c.Mode)
	}
	return string(c.Kind)
}

// Validate rejects commands no device would accept.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandImmobilizer:
	case CommandPollingInterval:
		if c.IntervalSeconds <= 0 {
			return fmt.Errorf("polling interval must be positive, got %d", c.IntervalSeconds)
		}
	case CommandOptimizerMode:
		if _, err := ParseOptimizerMode(string(c.Mode)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return nil
}

// Wire payloads.
type (
	setDOPayload struct {
		Command   string `json:"command"`
		Pin       string `json:"pin"`
		State     int    `json:"state"`
		IMEI      string `json:"imei,omitempty"`
		Timestamp int64  `json:"timestamp"`
	}

	flatPayload struct {
		Immobilize int    `json:"immobilize"`
		IMEI       string `json:"imei,omitempty"`
		Timestamp  int64  `json:"timestamp"`
	}

	setFreqPayload struct {
		Command         string `json:"command"`
		IntervalSeconds int    `json:"interval_seconds"`
		IMEI            string `json:"imei,omitempty"`
		Timestamp       int64  `json:"timestamp"`
	}

	modePayload struct {
		Mode      OptimizerMode `json:"mode"`
		IMEI      string        `json:"imei,omitempty"`
		Timestamp int64         `json:"timestamp"`
	}
)

const (
	commandSetDO   = "SET_DO"
	commandSetFreq = "SET_FREQ"
)

// Marshal renders the command as the JSON the device firmware expects.
func (c Command) Marshal(format CommandFormat) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ts := c.Timestamp.Unix()

	switch c.Kind {
	case CommandImmobilizer:
		if format == FormatFlat {
			return json.Marshal(flatPayload{Immobilize: boolToInt(c.Immobilize), IMEI: c.IMEI, Timestamp: ts})
		}
		return json.Marshal(setDOPayload{
			Command:   commandSetDO,
			Pin:       ImmobilizerPin,
			State:     boolToInt(c.Immobilize),
			IMEI:      c.IMEI,
			Timestamp: ts,
		})
	case CommandPollingInterval:
		return json.Marshal(setFreqPayload{
			Command:         commandSetFreq,
			IntervalSeconds: c.IntervalSeconds,
			IMEI:            c.IMEI,
			Timestamp:       ts,
		})
	default:
		return json.Marshal(modePayload{Mode: c.Mode, IMEI: c.IMEI, Timestamp: ts})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ack is a JSON acknowledgement seen on the control topic. Fields the
// message did not carry are nil.
type Ack struct {
	Immobilizer     *bool
	Ignition        *bool
	IntervalSeconds int
}

type ackPayload struct {
	Command         string `json:"command"`
	Pin             string `json:"pin"`
	State           *int   `json:"state"`
	Immobilize      *int   `json:"immobilize"`
	Ignition        *int   `json:"ignition"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// ParseAck recognises JSON acknowledgements: SET_DO on the immobilizer pin,
// the flat immobilize form, and SET_FREQ. ok is false for anything else,
// including non-JSON payloads.
func ParseAck(payload []byte) (Ack, bool) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return Ack{}, false
	}

	var p ackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Ack{}, false
	}

	var ack Ack
	switch {
	case p.Command == commandSetDO && p.State != nil && (p.Pin == "" || p.Pin == ImmobilizerPin):
		ack.Immobilizer = flag(*p.State)
	case p.Command == "" && p.Immobilize != nil:
		ack.Immobilizer = flag(*p.Immobilize)
	case p.Command == commandSetFreq && p.IntervalSeconds > 0:
		ack.IntervalSeconds = p.IntervalSeconds
	default:
		return Ack{}, false
	}
	if p.Ignition != nil {
		ack.Ignition = flag(*p.Ignition)
	}
	return ack, true
}

func flag(v int) *bool {
	b := v != 0
	return &b
}
