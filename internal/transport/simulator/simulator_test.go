package simulator

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/go-logr/logr"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/vajra-io/vajra/internal/transport"
	"github.com/vajra-io/vajra/pkg/frame"
)

var start = time.Unix(1700000000, 0)

func newTestSimulator(t *testing.T, cfg Config) (*Simulator, *frame.Codec, *clocktesting.FakeClock) {
	t.Helper()

	codec, err := frame.NewCodec(frame.DefaultOptions())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	clk := clocktesting.NewFakeClock(start)
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	s, err := New(cfg, codec, logr.Discard(), WithClock(clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, codec, clk
}

func onRoute(lat, lon float64) bool {
	for _, p := range BangaloreLoop {
		if math.Abs(p.Lat-lat) < 1e-6 && math.Abs(p.Lon-lon) < 1e-6 {
			return true
		}
	}
	return false
}

func TestGeneratedFramesDecode(t *testing.T) {
	for _, rev := range frame.Revisions {
		t.Run(string(rev), func(t *testing.T) {
			s, codec, _ := newTestSimulator(t, Config{Revision: rev})
			cfg := s.Config()

			for i := 0; i < 30; i++ {
				raw, err := s.Generate(start.Add(time.Duration(i) * 2 * time.Second))
				if err != nil {
					t.Fatalf("Generate: %v", err)
				}
				rec, err := codec.Decode(raw, frame.SourceSimulated)
				if err != nil {
					t.Fatalf("Decode(%q): %v", raw, err)
				}
				if !rec.CRCValid {
					t.Errorf("frame %d: bad checksum", i)
				}
				if rec.Revision != rev {
					t.Errorf("frame %d: revision %s", i, rec.Revision)
				}
				if lat, lon, ok := rec.Position(); !ok || !onRoute(lat, lon) {
					t.Errorf("frame %d: position %v,%v off route", i, lat, lon)
				}
				if rec.Battery == nil || *rec.Battery < cfg.BatteryMin || *rec.Battery > cfg.BatteryMax {
					t.Errorf("frame %d: battery %v outside [%v, %v]", i, rec.Battery, cfg.BatteryMin, cfg.BatteryMax)
				}
				if !rec.IgnitionOn() || rec.SpeedKmh < cfg.SpeedMin || rec.SpeedKmh > cfg.SpeedMax {
					t.Errorf("frame %d: ignition %v speed %v", i, rec.IgnitionOn(), rec.SpeedKmh)
				}
			}
		})
	}
}

func TestBatteryDefaultsFollowUnit(t *testing.T) {
	a, _, _ := newTestSimulator(t, Config{Revision: frame.RevisionA})
	if got := a.Config(); got.BatteryMax != 14.5 || got.BatteryStart != 12.4 {
		t.Errorf("revision A battery = %+v", got)
	}
	b, _, _ := newTestSimulator(t, Config{Revision: frame.RevisionB})
	if got := b.Config(); got.BatteryMax != 100 {
		t.Errorf("revision B battery max = %v, want 100", got.BatteryMax)
	}
}

func TestRouteLoopsWithoutRepeatingClosingPoint(t *testing.T) {
	s, codec, _ := newTestSimulator(t, Config{})

	var firstLat float64
	for i := 0; i < len(BangaloreLoop)-1; i++ {
		raw, err := s.Generate(start)
		if err != nil {
			t.Fatal(err)
		}
		rec, _ := codec.Decode(raw, frame.SourceSimulated)
		lat, _, _ := rec.Position()
		if i == 0 {
			firstLat = lat
		}
		if rec.FrameNumber != int64(i+1) {
			t.Errorf("frame number %d, want %d", rec.FrameNumber, i+1)
		}
	}
	if math.Abs(firstLat-BangaloreLoop[1].Lat) > 1e-6 {
		t.Errorf("first frame at %v, want second route point", firstLat)
	}

	raw, _ := s.Generate(start)
	rec, _ := codec.Decode(raw, frame.SourceSimulated)
	if lat, _, _ := rec.Position(); math.Abs(lat-BangaloreLoop[1].Lat) > 1e-6 {
		t.Errorf("after one loop at %v, want %v", lat, BangaloreLoop[1].Lat)
	}
}

func TestApplyStopsTheVehicle(t *testing.T) {
	s, codec, _ := newTestSimulator(t, Config{})
	s.Apply(true, false)

	raw, _ := s.Generate(start)
	rec, err := codec.Decode(raw, frame.SourceSimulated)
	if err != nil {
		t.Fatal(err)
	}
	if rec.SpeedKmh != 0 || rec.IgnitionOn() || !rec.ImmobilizerOn() {
		t.Errorf("immobilized frame: speed %v ignition %v immobilizer %v", rec.SpeedKmh, rec.IgnitionOn(), rec.ImmobilizerOn())
	}
}

func connect(t *testing.T, s *Simulator) (<-chan []byte, []transport.Status) {
	t.Helper()

	var statuses []transport.Status
	if err := s.Connect(context.Background(), func(st transport.Status) { statuses = append(statuses, st) }); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	msgs := make(chan []byte, 4)
	s.OnMessage(func(p []byte) { msgs <- p })
	return msgs, statuses
}

func TestPublishImmobilizerAcksAfterDelay(t *testing.T) {
	s, codec, clk := newTestSimulator(t, Config{})
	msgs, statuses := connect(t, s)

	if len(statuses) != 1 || statuses[0] != transport.StatusSimulated {
		t.Fatalf("statuses = %v, want [SIMULATED]", statuses)
	}

	if err := s.Publish(context.Background(), transport.ImmobilizerCommand("", true, start)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	clk.Step(299 * time.Millisecond)
	select {
	case p := <-msgs:
		t.Fatalf("ack %s before the delay", p)
	case <-time.After(50 * time.Millisecond):
	}

	clk.Step(time.Millisecond)
	select {
	case p := <-msgs:
		rec, err := codec.Decode(string(p), frame.SourceSimulated)
		if err != nil {
			t.Fatalf("Decode ack: %v", err)
		}
		if rec.Kind != frame.KindControl || !rec.ImmobilizerOn() || rec.IgnitionOn() {
			t.Errorf("ack %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatal("no ack")
	}
}

func TestPublishPollingIntervalAcksJSON(t *testing.T) {
	s, _, clk := newTestSimulator(t, Config{})
	msgs, _ := connect(t, s)

	if err := s.Publish(context.Background(), transport.PollingIntervalCommand("", 15, start)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	clk.Step(time.Second)

	select {
	case p := <-msgs:
		if !json.Valid(p) {
			t.Fatalf("ack %s is not json", p)
		}
		ack, ok := transport.ParseAck(p)
		if !ok || ack.IntervalSeconds != 15 {
			t.Errorf("ParseAck = %+v, %v", ack, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("no ack")
	}
}

func TestOptimizerModeHasNoAck(t *testing.T) {
	s, _, clk := newTestSimulator(t, Config{})
	msgs, _ := connect(t, s)

	if err := s.Publish(context.Background(), transport.OptimizerModeCommand("", transport.ModeLow, start)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	clk.Step(time.Second)
	select {
	case p := <-msgs:
		t.Errorf("unexpected ack %s", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseCancelsPendingAcks(t *testing.T) {
	s, _, clk := newTestSimulator(t, Config{})
	msgs, _ := connect(t, s)

	if err := s.Publish(context.Background(), transport.ImmobilizerCommand("", true, start)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	s.Close(context.Background())
	clk.Step(time.Second)

	select {
	case p := <-msgs:
		t.Errorf("ack %s after Close", p)
	case <-time.After(50 * time.Millisecond):
	}
	if err := s.Publish(context.Background(), transport.ImmobilizerCommand("", false, start)); err != transport.ErrClosed {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if err := s.Connect(context.Background(), nil); err != transport.ErrClosed {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
}

func TestNewValidates(t *testing.T) {
	codec, _ := frame.NewCodec(frame.DefaultOptions())

	if _, err := New(Config{}, nil, logr.Discard()); err == nil {
		t.Error("nil codec accepted")
	}
	if _, err := New(Config{AckDelay: -time.Second}, codec, logr.Discard()); err == nil {
		t.Error("negative ack delay accepted")
	}
	if _, err := New(Config{BatteryMin: 5, BatteryMax: 4}, codec, logr.Discard()); err == nil {
		t.Error("inverted battery range accepted")
	}
	if _, err := New(Config{Revision: "Z"}, codec, logr.Discard()); err == nil {
		t.Error("unknown revision accepted")
	}
}
