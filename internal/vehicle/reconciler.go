// Package vehicle reconciles live telemetry, simulated fallback frames and
// operator commands into one authoritative vehicle snapshot.
//
// A Reconciler owns all of its state on a single event loop started by Run.
// Transport callbacks, status changes, generator ticks, commands and zone
// updates are queued onto that loop, so no two updates ever interleave.
// Readers get immutable snapshots without taking a lock.
package vehicle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/vajra-io/vajra/internal/pkg/metrics"
	"github.com/vajra-io/vajra/internal/transport"
	"github.com/vajra-io/vajra/pkg/frame"
	"github.com/vajra-io/vajra/pkg/geofence"
)

type eventKind int

const (
	eventMessage eventKind = iota
	eventStatus
	eventCall
)

type event struct {
	kind    eventKind
	payload []byte
	status  transport.Status
	call    func(ctx context.Context) error
	reply   chan error
}

// Reconciler merges everything known about one vehicle.
type Reconciler struct {
	adapter transport.Adapter
	gen     Generator
	codec   *frame.Codec
	opts    options
	log     logr.Logger

	events   chan event
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	snap      atomic.Pointer[Snapshot]
	zoneView  atomic.Pointer[[]geofence.Zone]
	snapshots *observers[Snapshot]
	breaches  *observers[Breach]

	// Owned by the event loop.
	state      Snapshot
	link       *linkMachine
	zones      []geofence.Zone
	membership map[string]bool
	lastLive   *frame.Record
	dirty      bool
	fired      []Breach
}

// New wires a reconciler to its transport, its fallback generator and the
// codec used for every inbound frame. gen may be nil, which disables ticks.
func New(adapter transport.Adapter, gen Generator, codec *frame.Codec, opts ...Option) (*Reconciler, error) {
	if adapter == nil {
		return nil, errors.New("vehicle reconciler needs a transport adapter")
	}
	if codec == nil {
		return nil, errors.New("vehicle reconciler needs a frame codec")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := &Reconciler{
		adapter:    adapter,
		gen:        gen,
		codec:      codec,
		opts:       o,
		log:        o.log.WithName("vehicle"),
		events:     make(chan event, o.queueSize),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		snapshots:  newObservers[Snapshot](),
		breaches:   newObservers[Breach](),
		membership: make(map[string]bool),
	}
	r.link = newLinkMachine(r.log)
	r.state = Snapshot{
		History:          []*frame.Record{},
		VoltageTrail:     []VoltageSample{},
		ConnectionStatus: transport.StatusDisconnected,
		Mode:             r.link.mode(),
		UpdatedAt:        o.clock.Now(),
	}
	initial := r.state
	r.snap.Store(&initial)
	r.zoneView.Store(&[]geofence.Zone{})
	return r, nil
}

// Run connects the transport and processes events until ctx is done or
// Stop is called. Teardown happens before Run returns: the adapter is
// closed, the ticker stopped and every listener dropped.
func (r *Reconciler) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(r.done)

	select {
	case <-r.stopCh:
		return ErrStopped
	default:
	}

	unsubscribe := r.adapter.OnMessage(func(payload []byte) {
		r.enqueue(event{kind: eventMessage, payload: bytes.Clone(payload)})
	})
	defer r.teardown(unsubscribe)

	if err := r.adapter.Connect(ctx, func(s transport.Status) {
		r.enqueue(event{kind: eventStatus, status: s})
	}); err != nil {
		r.log.Error(err, "Transport connect failed, staying on simulated data")
		r.enqueue(event{kind: eventStatus, status: transport.StatusError})
	}

	var tick <-chan time.Time
	if r.gen != nil {
		ticker := r.opts.clock.NewTicker(r.opts.tickInterval)
		defer ticker.Stop()
		tick = ticker.C()
	}

	r.log.Info("Reconciler started", "tickInterval", r.opts.tickInterval, "ignitionPolicy", r.opts.ignition, "sticky", r.opts.sticky)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopCh:
			return nil
		case ev := <-r.events:
			r.handle(ctx, ev)
		case <-tick:
			r.tick(ctx)
			r.flush()
		}
	}
}

// Stop ends Run and waits for teardown. It must not be called from a
// listener.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.started.Load() {
		<-r.done
	}
}

// Done is closed once Run has returned.
func (r *Reconciler) Done() <-chan struct{} {
	return r.done
}

func (r *Reconciler) teardown(unsubscribe func()) {
	r.stopOnce.Do(func() { close(r.stopCh) })
	unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.closeTimeout)
	defer cancel()
	r.adapter.Close(ctx)

	r.snapshots.clear()
	r.breaches.clear()

	for {
		select {
		case ev := <-r.events:
			if ev.reply != nil {
				ev.reply <- ErrStopped
			}
		default:
			r.log.Info("Reconciler stopped")
			return
		}
	}
}

// Snapshot returns the latest published state.
func (r *Reconciler) Snapshot() Snapshot {
	return *r.snap.Load()
}

// Subscribe registers fn for every published snapshot. fn runs on the
// event loop and must not call back into the reconciler synchronously.
func (r *Reconciler) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return r.snapshots.add(fn)
}

// SubscribeBreaches registers fn for every geofence breach. Breaches are
// delivered after the snapshot that carries the immobilized state.
func (r *Reconciler) SubscribeBreaches(fn func(Breach)) (unsubscribe func()) {
	return r.breaches.add(fn)
}

// RequestImmobilizerState publishes an immobilizer command and applies the
// target state optimistically; a later acknowledgement or record confirms
// or corrects it. Publish failures are logged, not returned.
func (r *Reconciler) RequestImmobilizerState(ctx context.Context, on bool) error {
	return r.do(ctx, func(loopCtx context.Context) error {
		cmd := transport.ImmobilizerCommand(r.imei(), on, r.opts.clock.Now())
		r.publishCommand(loopCtx, cmd)

		r.state.ImmobilizerActive = on
		r.state.IgnitionActive = !on
		r.syncGenerator()
		r.dirty = true
		return nil
	})
}

// RequestPollingInterval asks the tracker to report every seconds seconds.
func (r *Reconciler) RequestPollingInterval(ctx context.Context, seconds int) error {
	if err := transport.PollingIntervalCommand("", seconds, time.Time{}).Validate(); err != nil {
		return err
	}
	return r.do(ctx, func(loopCtx context.Context) error {
		r.publishCommand(loopCtx, transport.PollingIntervalCommand(r.imei(), seconds, r.opts.clock.Now()))
		r.state.PollingIntervalSeconds = seconds
		r.dirty = true
		return nil
	})
}

// RequestOptimizerMode switches the tracker's reporting profile.
func (r *Reconciler) RequestOptimizerMode(ctx context.Context, mode transport.OptimizerMode) error {
	if err := transport.OptimizerModeCommand("", mode, time.Time{}).Validate(); err != nil {
		return err
	}
	return r.do(ctx, func(loopCtx context.Context) error {
		r.publishCommand(loopCtx, transport.OptimizerModeCommand(r.imei(), mode, r.opts.clock.Now()))
		r.state.OptimizerMode = mode
		r.dirty = true
		return nil
	})
}

// SetZones replaces the zone set. Every zone is validated first and nothing
// changes unless all of them pass. Membership is forgotten for zones that
// are removed or whose shape changed.
func (r *Reconciler) SetZones(ctx context.Context, zones []geofence.Zone) error {
	var errs []error
	seen := make(map[string]bool, len(zones))
	for _, z := range zones {
		if err := z.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[z.ID] {
			errs = append(errs, fmt.Errorf("duplicate zone id %q", z.ID))
		}
		seen[z.ID] = true
	}
	if len(errs) > 0 {
		return utilerrors.NewAggregate(errs)
	}

	next := slices.Clone(zones)
	return r.do(ctx, func(context.Context) error {
		byID := make(map[string]geofence.Zone, len(next))
		for _, z := range next {
			byID[z.ID] = z
		}
		for _, old := range r.zones {
			if z, ok := byID[old.ID]; !ok || !z.Equal(old) {
				delete(r.membership, old.ID)
			}
		}
		r.storeZones(next)
		return nil
	})
}

// AddZone adds one validated zone.
func (r *Reconciler) AddZone(ctx context.Context, zone geofence.Zone) error {
	if err := zone.Validate(); err != nil {
		return err
	}
	return r.do(ctx, func(context.Context) error {
		if slices.ContainsFunc(r.zones, func(z geofence.Zone) bool { return z.ID == zone.ID }) {
			return fmt.Errorf("%w: %s", ErrZoneExists, zone.ID)
		}
		delete(r.membership, zone.ID)
		r.storeZones(append(slices.Clone(r.zones), zone))
		return nil
	})
}

// RemoveZone deletes a zone and forgets its membership, so re-adding the
// same id later cannot produce a stale breach.
func (r *Reconciler) RemoveZone(ctx context.Context, id string) error {
	return r.do(ctx, func(context.Context) error {
		i := slices.IndexFunc(r.zones, func(z geofence.Zone) bool { return z.ID == id })
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrZoneNotFound, id)
		}
		delete(r.membership, id)
		r.storeZones(slices.Delete(slices.Clone(r.zones), i, i+1))
		return nil
	})
}

// Zones returns a copy of the configured zones.
func (r *Reconciler) Zones() []geofence.Zone {
	return slices.Clone(*r.zoneView.Load())
}

func (r *Reconciler) storeZones(zones []geofence.Zone) {
	r.zones = zones
	view := slices.Clone(zones)
	r.zoneView.Store(&view)
}

// do runs fn on the event loop and returns its error.
func (r *Reconciler) do(ctx context.Context, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	select {
	case <-r.stopCh:
		return ErrStopped
	default:
	}
	select {
	case r.events <- event{kind: eventCall, call: fn, reply: reply}:
	case <-r.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) enqueue(ev event) {
	select {
	case <-r.stopCh:
		return
	default:
	}
	select {
	case r.events <- ev:
	case <-r.stopCh:
	}
}

func (r *Reconciler) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventMessage:
		r.handleMessage(ctx, ev.payload)
	case eventStatus:
		r.handleStatus(ctx, ev.status)
	case eventCall:
		// The caller must see its own update once it returns.
		err := ev.call(ctx)
		r.flush()
		ev.reply <- err
		return
	}
	r.flush()
}

// flush publishes the snapshot if anything changed, then delivers the
// breaches raised while handling the event.
func (r *Reconciler) flush() {
	if !r.dirty {
		return
	}
	r.dirty = false

	r.state.UpdatedAt = r.opts.clock.Now()
	snap := r.state
	r.snap.Store(&snap)
	r.snapshots.notify(snap)

	fired := r.fired
	r.fired = nil
	for _, b := range fired {
		r.breaches.notify(b)
	}
}

func (r *Reconciler) handleStatus(ctx context.Context, s transport.Status) {
	if err := r.link.apply(ctx, s); err != nil {
		r.log.Error(err, "Link state transition failed", "status", s)
	}
	if r.state.ConnectionStatus == s && r.state.Mode == r.link.mode() {
		return
	}
	r.log.V(1).Info("Connection status changed", "from", r.state.ConnectionStatus, "to", s)
	r.state.ConnectionStatus = s
	r.state.Mode = r.link.mode()
	r.dirty = true
}

func (r *Reconciler) publishCommand(ctx context.Context, cmd transport.Command) {
	if err := r.adapter.Publish(ctx, cmd); err != nil {
		metrics.Commands.WithLabelValues(string(cmd.Kind), metrics.StatusFailed).Inc()
		r.log.Error(err, "Command not published", "command", cmd.String())
		return
	}
	r.log.V(1).Info("Command handed to transport", "command", cmd.String())
}

// imei is the configured identity, or the one the vehicle last reported.
func (r *Reconciler) imei() string {
	if r.opts.imei != "" {
		return r.opts.imei
	}
	for _, rec := range r.state.History {
		if rec.IMEI != "" {
			return rec.IMEI
		}
	}
	return ""
}
