// Package broker is the live transport: it connects to an MQTT broker and
// exchanges frames and commands with one tracker.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/vajra-io/vajra/internal/pkg/metrics"
	"github.com/vajra-io/vajra/internal/transport"
	"github.com/vajra-io/vajra/pkg/mqtt"
	"github.com/vajra-io/vajra/pkg/mqtt/topic"
)

var _ transport.Adapter = (*Adapter)(nil)

// Config holds everything the broker transport needs.
type Config struct {
	// Client is copied; the adapter installs its own lifecycle hooks.
	Client mqtt.ClientConfig
	Topics *topic.TopicBuilder
	IMEI   string

	QoS            int
	Format         transport.CommandFormat
	PublishTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Topics == nil {
		c.Topics = topic.NewTopicBuilder("telematics", topic.LayoutMobile)
	}
	if c.QoS == 0 {
		c.QoS = 1
	}
	if c.Format == "" {
		c.Format = transport.FormatSetDO
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

// Validate checks the adapter configuration.
func (c *Config) Validate() error {
	if c.IMEI == "" {
		return errors.New("device imei is required")
	}
	if c.QoS < 0 || c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if _, err := transport.ParseCommandFormat(string(c.Format)); err != nil {
		return err
	}
	return nil
}

// ClientFactory builds the MQTT client. Tests swap it for a fake.
type ClientFactory func(cfg *mqtt.ClientConfig) (mqtt.Client, error)

// Option configures an Adapter.
type Option func(*Adapter)

// WithClientFactory replaces mqtt.NewClient.
func WithClientFactory(f ClientFactory) Option {
	return func(a *Adapter) { a.newClient = f }
}

// Adapter is a transport.Adapter over pkg/mqtt.
type Adapter struct {
	cfg       Config
	log       logr.Logger
	newClient ClientFactory

	// cbMu is held while a callback runs so Close can wait them out.
	cbMu sync.Mutex

	mu       sync.Mutex
	client   mqtt.Client
	onStatus func(transport.Status)
	handlers map[uint64]func([]byte)
	nextID   uint64
	closed   bool

	// everConnected and failing drive the ERROR/RECONNECTING choice.
	everConnected bool
	failing       bool

	inflight sync.WaitGroup
}

// New validates cfg and returns an unconnected adapter.
func New(cfg Config, logger logr.Logger, opts ...Option) (*Adapter, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid broker config: %w", err)
	}

	a := &Adapter{
		cfg:       cfg,
		log:       logger.WithName("broker").WithValues("imei", cfg.IMEI),
		newClient: mqtt.NewClient,
		handlers:  make(map[uint64]func([]byte)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Connect starts the MQTT client and subscribes to the tracker's uplink
// and control topics. It returns once the client runs in the background.
func (a *Adapter) Connect(ctx context.Context, onStatus func(transport.Status)) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return transport.ErrClosed
	}
	if a.client != nil {
		a.mu.Unlock()
		return errors.New("broker adapter already connected")
	}
	a.onStatus = onStatus
	a.mu.Unlock()

	clientCfg := a.cfg.Client
	clientCfg.Logger = a.log.WithName("mqtt")
	clientCfg.OnConnectionUp = a.connectionUp
	clientCfg.OnConnectionDown = a.connectionDown
	clientCfg.OnConnectError = a.connectError

	client, err := a.newClient(&clientCfg)
	if err != nil {
		a.emit(transport.StatusError)
		return fmt.Errorf("create mqtt client: %w", err)
	}

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	a.emit(transport.StatusConnecting)
	if err := client.Start(ctx); err != nil {
		a.emit(transport.StatusError)
		return fmt.Errorf("start mqtt client: %w", err)
	}

	for _, t := range []string{a.cfg.Topics.Uplink(a.cfg.IMEI), a.cfg.Topics.Downlink(a.cfg.IMEI)} {
		if err := client.Subscribe(ctx, t, a.cfg.QoS, a.dispatch); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// OnMessage registers handler for every inbound payload on either topic.
func (a *Adapter) OnMessage(handler func(payload []byte)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++
	a.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.handlers, id)
			a.mu.Unlock()
		})
	}
}

// Publish marshals cmd and sends it on the control topic in the background.
// Only marshalling and lifecycle errors are returned.
func (a *Adapter) Publish(ctx context.Context, cmd transport.Command) error {
	if cmd.IMEI == "" {
		cmd.IMEI = a.cfg.IMEI
	}
	payload, err := cmd.Marshal(a.cfg.Format)
	if err != nil {
		return err
	}

	a.mu.Lock()
	client, closed := a.client, a.closed
	if !closed && client != nil {
		a.inflight.Add(1)
	}
	a.mu.Unlock()
	switch {
	case closed:
		return transport.ErrClosed
	case client == nil:
		return transport.ErrNotConnected
	}

	topicName := a.cfg.Topics.Downlink(cmd.IMEI)
	go func() {
		defer a.inflight.Done()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.PublishTimeout)
		defer cancel()

		start := time.Now()
		err := client.Publish(pubCtx, topicName, a.cfg.QoS, false, payload)
		metrics.PublishLatency.WithLabelValues(string(cmd.Kind)).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.Commands.WithLabelValues(string(cmd.Kind), metrics.StatusFailed).Inc()
			a.log.Error(err, "Command publish failed", "command", cmd.String(), "topic", topicName)
			return
		}
		metrics.Commands.WithLabelValues(string(cmd.Kind), metrics.StatusSent).Inc()
		a.log.V(1).Info("Command published", "command", cmd.String(), "topic", topicName)
	}()
	return nil
}

// Close silences every callback, disconnects and waits for in-flight
// publishes until ctx expires.
func (a *Adapter) Close(ctx context.Context) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.onStatus = nil
	a.handlers = map[uint64]func([]byte){}
	client := a.client
	a.mu.Unlock()

	// Wait out running callbacks.
	a.cbMu.Lock()
	a.cbMu.Unlock()

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Info("Gave up waiting for in-flight publishes")
	}

	if client != nil {
		client.Disconnect(ctx)
	}
}

func (a *Adapter) dispatch(_ context.Context, t string, payload []byte) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	handlers := make([]func([]byte), 0, len(a.handlers))
	for _, h := range a.handlers {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()

	a.log.V(2).Info("Frame received", "topic", t, "bytes", len(payload))
	for _, h := range handlers {
		h(payload)
	}
}

func (a *Adapter) connectionUp() {
	a.mu.Lock()
	a.everConnected = true
	a.failing = false
	a.mu.Unlock()
	a.emit(transport.StatusConnected)
}

func (a *Adapter) connectionDown(err error) {
	a.log.Info("Broker connection lost", "reason", err.Error())
	a.mu.Lock()
	a.failing = true
	a.mu.Unlock()
	a.emit(transport.StatusDisconnected)
	a.emit(transport.StatusReconnecting)
}

// connectError reports ERROR for the first failure of a fresh connection
// attempt and RECONNECTING for every retry after it.
func (a *Adapter) connectError(err error) {
	a.mu.Lock()
	first := !a.failing && !a.everConnected
	a.failing = true
	a.mu.Unlock()

	if first {
		a.emit(transport.StatusError)
		return
	}
	a.emit(transport.StatusReconnecting)
}

func (a *Adapter) emit(s transport.Status) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()

	a.mu.Lock()
	onStatus, closed := a.onStatus, a.closed
	a.mu.Unlock()
	if onStatus != nil && !closed {
		onStatus(s)
	}
}
