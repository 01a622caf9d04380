package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var at = time.Unix(1700000000, 0)

func TestCommandMarshal(t *testing.T) {
	tests := []struct {
		name   string
		cmd    Command
		format CommandFormat
		want   string
	}{
		{
			"set-do on",
			ImmobilizerCommand("887744556677882", true, at),
			FormatSetDO,
			`{"command":"SET_DO","pin":"DO1","state":1,"imei":"887744556677882","timestamp":1700000000}`,
		},
		{
			"set-do off without imei",
			ImmobilizerCommand("", false, at),
			FormatSetDO,
			`{"command":"SET_DO","pin":"DO1","state":0,"timestamp":1700000000}`,
		},
		{
			"flat",
			ImmobilizerCommand("", true, at),
			FormatFlat,
			`{"immobilize":1,"timestamp":1700000000}`,
		},
		{
			"polling interval ignores format",
			PollingIntervalCommand("", 30, at),
			FormatFlat,
			`{"command":"SET_FREQ","interval_seconds":30,"timestamp":1700000000}`,
		},
		{
			"optimizer mode",
			OptimizerModeCommand("887744556677882", ModeLow, at),
			FormatSetDO,
			`{"mode":"LOW","imei":"887744556677882","timestamp":1700000000}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Marshal(tt.format)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal = %s\nwant     %s", got, tt.want)
			}
		})
	}
}

func TestCommandValidate(t *testing.T) {
	bad := []Command{
		PollingIntervalCommand("", 0, at),
		PollingIntervalCommand("", -5, at),
		OptimizerModeCommand("", "TURBO", at),
		{Kind: "reboot"},
	}
	for _, cmd := range bad {
		if _, err := cmd.Marshal(FormatSetDO); err == nil {
			t.Errorf("Marshal(%v) accepted an invalid command", cmd)
		}
	}
}

func TestParseAck(t *testing.T) {
	on, off := true, false

	tests := []struct {
		name    string
		payload string
		want    Ack
		ok      bool
	}{
		{"set-do", `{"command":"SET_DO","pin":"DO1","state":1,"timestamp":1}`, Ack{Immobilizer: &on}, true},
		{"set-do without pin", `{"command":"SET_DO","state":0}`, Ack{Immobilizer: &off}, true},
		{"set-do other pin", `{"command":"SET_DO","pin":"DO2","state":1}`, Ack{}, false},
		{"flat with ignition", ` {"immobilize":0,"ignition":1}`, Ack{Immobilizer: &off, Ignition: &on}, true},
		{"set-freq", `{"command":"SET_FREQ","interval_seconds":15}`, Ack{IntervalSeconds: 15}, true},
		{"unrelated json", `{"hello":"world"}`, Ack{}, false},
		{"frame", `$15,CTRL,1,0*1F`, Ack{}, false},
		{"broken json", `{"command":`, Ack{}, false},
		{"empty", ``, Ack{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAck([]byte(tt.payload))
			if ok != tt.ok {
				t.Fatalf("ParseAck ok = %v, want %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseAck mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMarshalledCommandIsItsOwnAck(t *testing.T) {
	for _, format := range []CommandFormat{FormatSetDO, FormatFlat} {
		raw, err := ImmobilizerCommand("887744556677882", true, at).Marshal(format)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !json.Valid(raw) {
			t.Fatalf("invalid json %s", raw)
		}
		ack, ok := ParseAck(raw)
		if !ok || ack.Immobilizer == nil || !*ack.Immobilizer {
			t.Errorf("%s: echoed command not recognised as ack: %+v %v", format, ack, ok)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	if m, err := ParseOptimizerMode("mid"); err != nil || m != ModeMid {
		t.Errorf("ParseOptimizerMode = %q, %v", m, err)
	}
	if f, err := ParseCommandFormat("FLAT"); err != nil || f != FormatFlat {
		t.Errorf("ParseCommandFormat = %q, %v", f, err)
	}
	if _, err := ParseCommandFormat("xml"); err == nil {
		t.Error("ParseCommandFormat accepted xml")
	}
	if !StatusConnected.Live() || StatusSimulated.Live() {
		t.Error("Live() is wrong")
	}
}
