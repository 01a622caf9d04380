package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/go-logr/logr"
)

// inboxSize bounds messages waiting for their handlers. A full inbox blocks
// the paho reader, which in turn stops acknowledging the broker.
const inboxSize = 256

type subscription struct {
	qos     byte
	handler MessageHandler
}

type message struct {
	topic   string
	payload []byte
}

type pahoClient struct {
	cfg *ClientConfig
	log logr.Logger
	cm  *autopaho.ConnectionManager

	connected atomic.Bool

	mu   sync.RWMutex
	subs map[string]subscription

	inbox chan message
	done  chan struct{}
	stop  sync.Once
}

// NewClient validates cfg, fills in defaults and returns a client that is
// not yet connected.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, errors.New("mqtt config is required")
	}

	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:   cfg,
		log:   cfg.Logger,
		subs:  make(map[string]subscription),
		inbox: make(chan message, inboxSize),
		done:  make(chan struct{}),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	broker, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return err
	}

	cm, err := autopaho.NewConnection(ctx, autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{broker},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectDelay),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg:                        &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify},
		WillMessage:                   c.willMessage(),
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError:                c.onConnectError,
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived:  []func(paho.PublishReceived) (bool, error){c.enqueue},
		},
	})
	if err != nil {
		return err
	}
	c.cm = cm

	c.log.Info("MQTT client started", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)
	go c.deliver(ctx)
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.log.V(1).Info("MQTT disconnect returned an error", "err", err.Error())
	}
	c.connected.Store(false)
	c.stop.Do(func() { close(c.done) })
	c.log.Info("MQTT client disconnected")
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: byte(qos), handler: handler}
	c.mu.Unlock()

	if !c.connected.Load() {
		c.log.V(1).Info("Subscription deferred until connected", "topic", topic)
		return nil
	}
	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: byte(qos)}},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.log.Info("Subscribed", "topic", topic)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, topic string) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	if !c.connected.Load() {
		return nil
	}
	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{topic}})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

// onConnectionUp restores every recorded filter in a single SUBSCRIBE.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)

	c.mu.RLock()
	opts := make([]paho.SubscribeOptions, 0, len(c.subs))
	for t, s := range c.subs {
		opts = append(opts, paho.SubscribeOptions{Topic: t, QoS: s.qos})
	}
	c.mu.RUnlock()

	c.log.Info("MQTT connection up", "subscriptions", len(opts))
	if len(opts) > 0 {
		if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{Subscriptions: opts}); err != nil {
			c.log.Error(err, "Failed to restore subscriptions")
		}
	}

	if c.cfg.OnConnectionUp != nil {
		c.cfg.OnConnectionUp()
	}
}

func (c *pahoClient) onConnectError(err error) {
	c.log.Error(err, "MQTT connection attempt failed", "retryIn", c.cfg.ReconnectDelay)
	if c.cfg.OnConnectError != nil {
		c.cfg.OnConnectError(err)
	}
}

func (c *pahoClient) onClientError(err error) {
	c.log.Error(err, "MQTT client error")
	c.connectionLost(err)
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	var reason string
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.log.Info("Broker closed the connection", "code", d.ReasonCode, "reason", reason)
	c.connectionLost(fmt.Errorf("server disconnect: code %d %s", d.ReasonCode, reason))
}

// connectionLost fires OnConnectionDown once per established connection.
func (c *pahoClient) connectionLost(err error) {
	if !c.connected.CompareAndSwap(true, false) {
		return
	}
	if err == nil {
		err = errors.New("connection lost")
	}
	if c.cfg.OnConnectionDown != nil {
		c.cfg.OnConnectionDown(err)
	}
}

// enqueue hands an inbound PUBLISH to the delivery goroutine.
func (c *pahoClient) enqueue(p paho.PublishReceived) (bool, error) {
	select {
	case c.inbox <- message{topic: p.Packet.Topic, payload: p.Packet.Payload}:
	case <-c.done:
	}
	return true, nil
}

// deliver runs handlers one message at a time in arrival order.
func (c *pahoClient) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.stop.Do(func() { close(c.done) })
			return
		case <-c.done:
			return
		case m := <-c.inbox:
			c.route(ctx, m)
		}
	}
}

func (c *pahoClient) route(ctx context.Context, m message) {
	c.mu.RLock()
	var handlers []MessageHandler
	for filter, s := range c.subs {
		if topicsMatch(topicFilter(filter), m.topic) {
			handlers = append(handlers, s.handler)
		}
	}
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.log.V(1).Info("Message on unhandled topic", "topic", m.topic)
		return
	}
	for _, h := range handlers {
		h(ctx, m.topic, m.payload)
	}
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}

// topicsMatch reports whether topic matches filter, honouring the + and #
// wildcards.
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, level := range fl {
		switch {
		case level == "#":
			return true
		case i >= len(tl):
			return false
		case level != "+" && level != tl[i]:
			return false
		}
	}
	return len(fl) == len(tl)
}

// topicFilter strips the $share/<group>/ prefix of a shared subscription.
func topicFilter(filter string) string {
	rest, ok := strings.CutPrefix(filter, "$share/")
	if !ok {
		return filter
	}
	if _, f, ok := strings.Cut(rest, "/"); ok {
		return f
	}
	return filter
}
