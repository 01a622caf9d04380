package vehicle

import (
	"bytes"
	"context"
	"time"

	"github.com/vajra-io/vajra/internal/pkg/metrics"
	"github.com/vajra-io/vajra/internal/transport"
	"github.com/vajra-io/vajra/pkg/frame"
	"github.com/vajra-io/vajra/pkg/geofence"
)

// handleMessage routes one inbound payload. JSON payloads on the control
// topic are acknowledgements; everything else must be a frame.
func (r *Reconciler) handleMessage(ctx context.Context, payload []byte) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '{' {
		ack, ok := transport.ParseAck(payload)
		if !ok {
			r.log.V(1).Info("Ignoring unrecognised control payload", "payload", string(payload))
			return
		}
		r.applyAck(ack)
		return
	}

	src := frame.SourceSimulated
	if r.state.ConnectionStatus.Live() {
		src = frame.SourceLive
	}
	r.ingestRaw(ctx, string(payload), src)
}

// tick asks the generator for a frame. The frame is always produced so the
// simulated device keeps moving, but it is discarded while the link is live.
func (r *Reconciler) tick(ctx context.Context) {
	raw, err := r.gen.Generate(r.opts.clock.Now())
	if err != nil {
		metrics.SimulatorTicks.WithLabelValues(metrics.TickFailed).Inc()
		r.log.Error(err, "Simulator tick failed")
		return
	}
	if r.link.mode() == ModeLive {
		metrics.SimulatorTicks.WithLabelValues(metrics.TickSuppressed).Inc()
		return
	}
	metrics.SimulatorTicks.WithLabelValues(metrics.TickIngested).Inc()
	r.ingestRaw(ctx, raw, frame.SourceSimulated)
}

func (r *Reconciler) ingestRaw(ctx context.Context, raw string, src frame.Source) {
	rec, err := r.codec.Decode(raw, src)
	if err != nil {
		r.drop(metrics.ReasonMalformed, raw, "error", err.Error())
		return
	}
	if !rec.CRCValid && !r.opts.acceptBadCRC {
		r.drop(metrics.ReasonChecksum, raw)
		return
	}

	if rec.Kind == frame.KindControl {
		r.log.V(1).Info("Control acknowledgement", "immobilizer", rec.ImmobilizerOn(), "ignition", rec.IgnitionOn())
		r.applyPins(rec.Immobilizer, rec.Ignition)
		return
	}
	r.ingest(ctx, rec)
}

func (r *Reconciler) drop(reason, raw string, kv ...any) {
	r.state.Dropped++
	r.dirty = true
	metrics.FramesDropped.WithLabelValues(reason).Inc()
	r.log.V(1).Info("Frame dropped", append([]any{"reason", reason, "frame", raw}, kv...)...)
}

// ingest applies one decoded data record.
func (r *Reconciler) ingest(ctx context.Context, rec *frame.Record) {
	now := r.opts.clock.Now()
	r.dirty = true

	history := make([]*frame.Record, 0, min(len(r.state.History)+1, HistorySize))
	history = append(history, rec)
	history = append(history, r.state.History[:min(len(r.state.History), HistorySize-1)]...)
	r.state.History = history

	if rec.Battery != nil {
		trail := r.state.VoltageTrail
		if len(trail) >= VoltageTrailSize {
			trail = trail[len(trail)-VoltageTrailSize+1:]
		}
		next := make([]VoltageSample, 0, len(trail)+1)
		next = append(next, trail...)
		next = append(next, VoltageSample{
			Label: now.Local().Format(voltageLabelLayout),
			At:    now,
			Value: *rec.Battery,
			Unit:  rec.BatteryUnit,
		})
		r.state.VoltageTrail = next
	}

	r.applyPins(rec.Immobilizer, rec.Ignition)

	if rec.Source == frame.SourceLive {
		r.lastLive = rec
	}
	if !r.opts.sticky || rec.Source == frame.SourceLive || r.lastLive == nil {
		r.state.Latest = rec
	}

	metrics.FramesAccepted.WithLabelValues(string(rec.Source), string(rec.Revision)).Inc()

	// Membership stays frozen while immobilized.
	if rec.HasGPSFix && !r.state.ImmobilizerActive {
		r.evaluateZones(ctx, rec, now)
	}
}

// applyPins applies the flags a record or acknowledgement carried. Absent
// flags leave the state alone. Under the coupled policy ignition follows
// the immobilizer and reported ignition is ignored.
func (r *Reconciler) applyPins(immobilizer, ignition *bool) {
	if ignition != nil && r.opts.ignition == IgnitionIndependent {
		r.state.IgnitionActive = *ignition
	}
	if immobilizer != nil {
		r.state.ImmobilizerActive = *immobilizer
		if r.opts.ignition == IgnitionCoupled {
			r.state.IgnitionActive = !*immobilizer
		}
	}
	if immobilizer != nil || ignition != nil {
		r.dirty = true
		r.syncGenerator()
	}
}

func (r *Reconciler) applyAck(ack transport.Ack) {
	r.log.V(1).Info("Command acknowledged", "immobilizer", ack.Immobilizer, "ignition", ack.Ignition, "interval", ack.IntervalSeconds)
	r.applyPins(ack.Immobilizer, ack.Ignition)
	if ack.IntervalSeconds > 0 && ack.IntervalSeconds != r.state.PollingIntervalSeconds {
		r.state.PollingIntervalSeconds = ack.IntervalSeconds
		r.dirty = true
	}
}

// evaluateZones records membership for every zone and breaches on an
// inside to outside transition. A breach immobilizes, so later zones in the
// same pass only update membership.
func (r *Reconciler) evaluateZones(ctx context.Context, rec *frame.Record, now time.Time) {
	lat, lon, ok := rec.Position()
	if !ok {
		return
	}
	for _, z := range r.zones {
		inside := z.Contains(lat, lon)
		wasInside, known := r.membership[z.ID]
		r.membership[z.ID] = inside

		if known && wasInside && !inside && !r.state.ImmobilizerActive {
			r.breach(ctx, z, rec, now)
		}
	}
}

func (r *Reconciler) breach(ctx context.Context, z geofence.Zone, rec *frame.Record, now time.Time) {
	r.log.Info("Geofence breached, immobilizing", "zone", z.ID, "name", z.Name, "frame", rec.FrameNumber)
	metrics.Breaches.WithLabelValues(z.ID).Inc()

	r.state.ImmobilizerActive = true
	if r.opts.ignition == IgnitionCoupled {
		r.state.IgnitionActive = false
	}
	r.syncGenerator()
	r.publishCommand(ctx, transport.ImmobilizerCommand(r.imei(), true, now))

	r.fired = append(r.fired, Breach{ZoneID: z.ID, ZoneName: z.Name, Record: rec, At: now})
	r.dirty = true
}

func (r *Reconciler) syncGenerator() {
	if r.gen != nil {
		r.gen.Apply(r.state.ImmobilizerActive, r.state.IgnitionActive)
	}
}
