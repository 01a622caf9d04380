package vehicle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/vajra-io/vajra/internal/transport"
	"github.com/vajra-io/vajra/pkg/frame"
)

const testIMEI = "887744556677882"

var epoch = time.Unix(1700000000, 0)

type fakeAdapter struct {
	mu         sync.Mutex
	onStatus   func(transport.Status)
	handler    func([]byte)
	connectErr error
	closed     bool

	published chan transport.Command
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{published: make(chan transport.Command, 64)}
}

func (f *fakeAdapter) Connect(_ context.Context, onStatus func(transport.Status)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStatus = onStatus
	return f.connectErr
}

func (f *fakeAdapter) OnMessage(h func([]byte)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}
}

func (f *fakeAdapter) Publish(_ context.Context, cmd transport.Command) error {
	f.published <- cmd
	return nil
}

func (f *fakeAdapter) Close(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.onStatus = nil
}

func (f *fakeAdapter) status(s transport.Status) {
	f.mu.Lock()
	fn := f.onStatus
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *fakeAdapter) deliver(payload string) {
	f.mu.Lock()
	fn := f.handler
	f.mu.Unlock()
	if fn != nil {
		fn([]byte(payload))
	}
}

func (f *fakeAdapter) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// drain returns every command published so far.
func (f *fakeAdapter) drain() []transport.Command {
	var cmds []transport.Command
	for {
		select {
		case c := <-f.published:
			cmds = append(cmds, c)
		default:
			return cmds
		}
	}
}

type fakeGenerator struct {
	codec *frame.Codec

	mu          sync.Mutex
	calls       int
	immobilizer bool
	ignition    bool
}

func (g *fakeGenerator) Generate(now time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.codec.EncodeAs(frame.RevisionB, &frame.Record{
		IMEI:        testIMEI,
		FrameNumber: int64(1000 + g.calls),
		Timestamp:   now.Unix(),
		Latitude:    frame.Float(12.9716),
		Longitude:   frame.Float(77.5946),
		Ignition:    frame.Bool(g.ignition),
		Immobilizer: frame.Bool(g.immobilizer),
		Battery:     frame.Float(50),
	})
}

func (g *fakeGenerator) Apply(immobilizer, ignition bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.immobilizer, g.ignition = immobilizer, ignition
}

func (g *fakeGenerator) pins() (immobilizer, ignition bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.immobilizer, g.ignition
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type harness struct {
	t       *testing.T
	r       *Reconciler
	adapter *fakeAdapter
	gen     *fakeGenerator
	codec   *frame.Codec
	clock   *clocktesting.FakeClock
	runErr  chan error
}

func newCodec(t *testing.T) *frame.Codec {
	t.Helper()
	codec, err := frame.NewCodec(frame.DefaultOptions())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

// start runs a reconciler over a fake adapter. withGenerator enables ticks.
func start(t *testing.T, withGenerator bool, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		adapter: newFakeAdapter(),
		codec:   newCodec(t),
		clock:   clocktesting.NewFakeClock(epoch),
		runErr:  make(chan error, 1),
	}
	var gen Generator
	if withGenerator {
		h.gen = &fakeGenerator{codec: h.codec}
		gen = h.gen
	}

	opts = append([]Option{WithClock(h.clock), WithIMEI(testIMEI), WithLogger(logr.Discard())}, opts...)
	r, err := New(h.adapter, gen, h.codec, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.r = r

	go func() { h.runErr <- r.Run(context.Background()) }()
	t.Cleanup(r.Stop)

	if withGenerator {
		eventually(t, "ticker created", h.clock.HasWaiters)
	}
	h.sync()
	return h
}

// sync returns once every event queued before it has been handled.
func (h *harness) sync() {
	h.t.Helper()
	if err := h.r.do(context.Background(), func(context.Context) error { return nil }); err != nil {
		h.t.Fatalf("sync: %v", err)
	}
}

// feed delivers frames through the adapter and waits for them.
func (h *harness) feed(frames ...string) {
	h.t.Helper()
	for _, f := range frames {
		h.adapter.deliver(f)
	}
	h.sync()
}

func (h *harness) status(s transport.Status) {
	h.t.Helper()
	h.adapter.status(s)
	h.sync()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	codec := newCodec(t)
	if _, err := New(nil, nil, codec); err == nil {
		t.Error("nil adapter accepted")
	}
	if _, err := New(newFakeAdapter(), nil, nil); err == nil {
		t.Error("nil codec accepted")
	}
}

func TestInitialSnapshot(t *testing.T) {
	r, err := New(newFakeAdapter(), nil, newCodec(t))
	if err != nil {
		t.Fatal(err)
	}
	s := r.Snapshot()
	if s.Latest != nil || len(s.History) != 0 || s.Mode != ModeSimulating || s.ConnectionStatus != transport.StatusDisconnected {
		t.Errorf("initial snapshot %+v", s)
	}
	if s.History == nil || s.VoltageTrail == nil {
		t.Error("initial slices must be empty, not nil")
	}
}

func TestConnectFailureFallsBackToError(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.connectErr = errors.New("dial tcp: refused")
	r, err := New(adapter, nil, newCodec(t))
	if err != nil {
		t.Fatal(err)
	}
	go r.Run(context.Background())
	t.Cleanup(r.Stop)

	eventually(t, "error status", func() bool { return r.Snapshot().ConnectionStatus == transport.StatusError })
	if r.Snapshot().Mode != ModeSimulating {
		t.Error("mode left simulating")
	}
}

func TestStopTearsDown(t *testing.T) {
	h := start(t, true)

	snapshots := 0
	var mu sync.Mutex
	h.r.Subscribe(func(Snapshot) {
		mu.Lock()
		snapshots++
		mu.Unlock()
	})

	h.r.Stop()
	h.r.Stop()

	select {
	case err := <-h.runErr:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if !h.adapter.isClosed() {
		t.Error("adapter not closed")
	}
	h.adapter.deliver("$garbage*00")
	h.clock.Step(10 * time.Second)

	ctx := context.Background()
	if err := h.r.RequestImmobilizerState(ctx, true); !errors.Is(err, ErrStopped) {
		t.Errorf("RequestImmobilizerState after Stop = %v, want ErrStopped", err)
	}
	if err := h.r.RemoveZone(ctx, "x"); !errors.Is(err, ErrStopped) {
		t.Errorf("RemoveZone after Stop = %v, want ErrStopped", err)
	}
	if err := h.r.Run(ctx); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run = %v, want ErrRunning", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if snapshots != 0 {
		t.Errorf("%d snapshots delivered after Stop", snapshots)
	}
}

func TestRunAfterStop(t *testing.T) {
	r, err := New(newFakeAdapter(), nil, newCodec(t))
	if err != nil {
		t.Fatal(err)
	}
	r.Stop()
	if err := r.Run(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Run after Stop = %v, want ErrStopped", err)
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	adapter := newFakeAdapter()
	r, err := New(adapter, nil, newCodec(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	cancel()

	select {
	case <-errc:
	case <-time.After(time.Second):
		t.Fatal("Run ignored cancellation")
	}
	<-r.Done()
	if !adapter.isClosed() {
		t.Error("adapter not closed")
	}
}

func TestLinkModeFollowsStatus(t *testing.T) {
	h := start(t, false)

	steps := []struct {
		status transport.Status
		mode   Mode
	}{
		{transport.StatusConnecting, ModeSimulating},
		{transport.StatusConnected, ModeLive},
		{transport.StatusConnecting, ModeLive},
		{transport.StatusDisconnected, ModeSimulating},
		{transport.StatusReconnecting, ModeSimulating},
		{transport.StatusConnected, ModeLive},
		{transport.StatusError, ModeSimulating},
		{transport.StatusSimulated, ModeSimulating},
	}
	for i, s := range steps {
		h.status(s.status)
		snap := h.r.Snapshot()
		if snap.ConnectionStatus != s.status || snap.Mode != s.mode {
			t.Errorf("step %d: status %s mode %s, want %s %s", i, snap.ConnectionStatus, snap.Mode, s.status, s.mode)
		}
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	h := start(t, false)

	got := make(chan Snapshot, 8)
	unsubscribe := h.r.Subscribe(func(s Snapshot) { got <- s })

	h.status(transport.StatusConnected)
	select {
	case s := <-got:
		if s.ConnectionStatus != transport.StatusConnected {
			t.Errorf("snapshot status %s", s.ConnectionStatus)
		}
	default:
		t.Fatal("no snapshot delivered")
	}

	unsubscribe()
	unsubscribe()
	h.status(transport.StatusDisconnected)
	select {
	case s := <-got:
		t.Errorf("snapshot %v after unsubscribe", s.ConnectionStatus)
	default:
	}
}

func TestRequestImmobilizerState(t *testing.T) {
	h := start(t, true)
	ctx := context.Background()

	if err := h.r.RequestImmobilizerState(ctx, true); err != nil {
		t.Fatal(err)
	}
	s := h.r.Snapshot()
	if !s.ImmobilizerActive || s.IgnitionActive {
		t.Errorf("after immobilize: immobilizer %v ignition %v", s.ImmobilizerActive, s.IgnitionActive)
	}
	cmds := h.adapter.drain()
	if len(cmds) != 1 || cmds[0].Kind != transport.CommandImmobilizer || !cmds[0].Immobilize || cmds[0].IMEI != testIMEI {
		t.Fatalf("published %+v", cmds)
	}
	if !cmds[0].Timestamp.Equal(epoch) {
		t.Errorf("command timestamp %v, want %v", cmds[0].Timestamp, epoch)
	}
	if immob, ign := h.gen.pins(); !immob || ign {
		t.Error("generator not told about the new pin state")
	}

	if err := h.r.RequestImmobilizerState(ctx, false); err != nil {
		t.Fatal(err)
	}
	if s := h.r.Snapshot(); s.ImmobilizerActive || !s.IgnitionActive {
		t.Errorf("after release: immobilizer %v ignition %v", s.ImmobilizerActive, s.IgnitionActive)
	}
}

func TestRequestsAreVisibleOnReturn(t *testing.T) {
	h := start(t, false)
	ctx := context.Background()

	for i := range 500 {
		on := i%2 == 0
		if err := h.r.RequestImmobilizerState(ctx, on); err != nil {
			t.Fatal(err)
		}
		if got := h.r.Snapshot().ImmobilizerActive; got != on {
			t.Fatalf("iteration %d: snapshot immobilizer %v, want %v", i, got, on)
		}

		secs := 10 + i
		if err := h.r.RequestPollingInterval(ctx, secs); err != nil {
			t.Fatal(err)
		}
		if got := h.r.Snapshot().PollingIntervalSeconds; got != secs {
			t.Fatalf("iteration %d: snapshot interval %d, want %d", i, got, secs)
		}

		mode := transport.ModeHigh
		if on {
			mode = transport.ModeLow
		}
		if err := h.r.RequestOptimizerMode(ctx, mode); err != nil {
			t.Fatal(err)
		}
		if got := h.r.Snapshot().OptimizerMode; got != mode {
			t.Fatalf("iteration %d: snapshot mode %q, want %q", i, got, mode)
		}
		h.adapter.drain()
	}
}

func TestRequestPollingIntervalAndMode(t *testing.T) {
	h := start(t, false)
	ctx := context.Background()

	if err := h.r.RequestPollingInterval(ctx, 0); err == nil {
		t.Error("zero interval accepted")
	}
	if err := h.r.RequestOptimizerMode(ctx, "TURBO"); err == nil {
		t.Error("unknown mode accepted")
	}
	if len(h.adapter.drain()) != 0 {
		t.Fatal("invalid requests were published")
	}

	if err := h.r.RequestPollingInterval(ctx, 30); err != nil {
		t.Fatal(err)
	}
	if err := h.r.RequestOptimizerMode(ctx, transport.ModeLow); err != nil {
		t.Fatal(err)
	}
	cmds := h.adapter.drain()
	if len(cmds) != 2 || cmds[0].IntervalSeconds != 30 || cmds[1].Mode != transport.ModeLow {
		t.Fatalf("published %+v", cmds)
	}
	s := h.r.Snapshot()
	if s.PollingIntervalSeconds != 30 || s.OptimizerMode != transport.ModeLow {
		t.Errorf("snapshot interval %d mode %s", s.PollingIntervalSeconds, s.OptimizerMode)
	}
}

func TestRequestHonoursContext(t *testing.T) {
	r, err := New(newFakeAdapter(), nil, newCodec(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Run was never started, so nothing answers.
	if err := r.RequestImmobilizerState(ctx, true); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}
