// Package simulator is the offline transport. It drives a virtual tracker
// around a route, answers commands with control frames and generates the
// telemetry the reconciler ingests while no live link is up.
package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/vajra-io/vajra/internal/transport"
	"github.com/vajra-io/vajra/pkg/frame"
)

var _ transport.Adapter = (*Simulator)(nil)

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock replaces the real clock used to delay acknowledgements.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(s *Simulator) { s.clock = c }
}

// Simulator is a transport.Adapter backed by a virtual device.
type Simulator struct {
	cfg    Config
	codec  *frame.Codec
	device *device
	clock  clock.WithDelayedExecution
	log    logr.Logger

	cbMu sync.Mutex

	mu       sync.Mutex
	onStatus func(transport.Status)
	handlers map[uint64]func([]byte)
	nextID   uint64
	closed   bool

	// pending holds ack timers by id. A nil entry marks a timer that
	// fired before it was recorded.
	pending   map[uint64]clock.Timer
	nextTimer uint64
}

// New returns a simulator for cfg. Zero fields take DefaultConfig values.
func New(cfg Config, codec *frame.Codec, logger logr.Logger, opts ...Option) (*Simulator, error) {
	if codec == nil {
		return nil, fmt.Errorf("simulator needs a frame codec")
	}
	rev := cfg.Revision
	if rev == "" {
		rev = DefaultConfig().Revision
	}
	cfg.complete(codec.BatteryUnit(rev))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulator config: %w", err)
	}

	s := &Simulator{
		cfg:      cfg,
		codec:    codec,
		device:   newDevice(cfg, codec),
		clock:    clock.RealClock{},
		log:      logger.WithName("simulator").WithValues("imei", cfg.IMEI),
		handlers: make(map[uint64]func([]byte)),
		pending:  make(map[uint64]clock.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the completed configuration.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Generate advances the virtual device one step and returns its frame.
func (s *Simulator) Generate(now time.Time) (string, error) {
	raw, err := s.device.next(now)
	if err != nil {
		return "", fmt.Errorf("generate frame: %w", err)
	}
	return raw, nil
}

// Apply forces the device pins, so generated frames follow the state the
// reconciler settled on.
func (s *Simulator) Apply(immobilizer, ignition bool) {
	s.device.setPins(immobilizer, ignition)
}

// Connect reports SIMULATED straight away. There is nothing to dial.
func (s *Simulator) Connect(_ context.Context, onStatus func(transport.Status)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	s.onStatus = onStatus
	s.mu.Unlock()

	s.log.Info("Simulated link up", "revision", s.cfg.Revision)
	s.emit(transport.StatusSimulated)
	return nil
}

// OnMessage registers handler for acknowledgements from the virtual device.
func (s *Simulator) OnMessage(handler func(payload []byte)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// Publish applies cmd to the virtual device and schedules its
// acknowledgement after the configured delay.
func (s *Simulator) Publish(_ context.Context, cmd transport.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	var ack []byte
	switch cmd.Kind {
	case transport.CommandImmobilizer:
		s.device.setImmobilizer(cmd.Immobilize)
		immob, ign := s.device.pins()
		ack = []byte(s.codec.EncodeControl(immob, ign))
	case transport.CommandPollingInterval:
		s.device.setInterval(cmd.IntervalSeconds)
		ack = []byte(fmt.Sprintf(`{"command":"SET_FREQ","interval_seconds":%d}`, cmd.IntervalSeconds))
	case transport.CommandOptimizerMode:
		// The device takes the mode silently.
	}
	s.log.Info("Command applied", "command", cmd.String())

	if ack != nil {
		s.schedule(ack)
	}
	return nil
}

// Close cancels pending acknowledgements and silences every callback.
func (s *Simulator) Close(context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.onStatus = nil
	s.handlers = map[uint64]func([]byte){}
	for _, t := range s.pending {
		if t != nil {
			t.Stop()
		}
	}
	s.pending = nil
	s.mu.Unlock()

	// Wait out running callbacks.
	s.cbMu.Lock()
	s.cbMu.Unlock()
	s.log.V(1).Info("Simulated link closed")
}

func (s *Simulator) schedule(payload []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	id := s.nextTimer
	s.nextTimer++
	s.mu.Unlock()

	// Timer callbacks can run under the clock's lock, so the callback
	// hands off to a goroutine before touching anything else.
	t := s.clock.AfterFunc(s.cfg.AckDelay, func() {
		go func() {
			s.mu.Lock()
			if _, ok := s.pending[id]; ok {
				delete(s.pending, id)
			} else if s.pending != nil {
				s.pending[id] = nil
			}
			s.mu.Unlock()
			s.deliver(payload)
		}()
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	switch prev, ok := s.pending[id]; {
	case s.closed:
		t.Stop()
	case ok && prev == nil:
		delete(s.pending, id)
	default:
		s.pending[id] = t
	}
}

func (s *Simulator) deliver(payload []byte) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	handlers := make([]func([]byte), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

func (s *Simulator) emit(st transport.Status) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	onStatus, closed := s.onStatus, s.closed
	s.mu.Unlock()
	if onStatus != nil && !closed {
		onStatus(st)
	}
}
