// Package mirror copies the vehicle snapshot to Redis and publishes
// geofence breaches there, so other services can follow the vehicle
// without talking to the dashboard.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vajra-io/vajra/internal/vehicle"
	"github.com/vajra-io/vajra/pkg/log"
	"github.com/vajra-io/vajra/pkg/options"
)

const breachQueueSize = 64

// Client is the subset of redis.Cmdable the mirror uses.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Mirror is fed from reconciler listeners. The listeners never block: the
// latest snapshot replaces any snapshot not yet written, and breaches beyond
// the queue are dropped with a log line.
type Mirror struct {
	client  Client
	key     string
	channel string
	ttl     time.Duration
	timeout time.Duration

	snapshots chan vehicle.Snapshot
	breaches  chan vehicle.Breach
}

// Keys returns the snapshot key and the breach channel of a vehicle.
func Keys(prefix, imei string) (key, channel string) {
	return fmt.Sprintf("%s:snapshot:%s", prefix, imei), fmt.Sprintf("%s:breaches:%s", prefix, imei)
}

// New returns a mirror writing through client.
func New(client Client, opts *options.RedisOptions, imei string) *Mirror {
	key, channel := Keys(opts.KeyPrefix, imei)
	return &Mirror{
		client:    client,
		key:       key,
		channel:   channel,
		ttl:       opts.TTL,
		timeout:   opts.Timeout,
		snapshots: make(chan vehicle.Snapshot, 1),
		breaches:  make(chan vehicle.Breach, breachQueueSize),
	}
}

// Dial connects to the configured redis and checks it answers.
func Dial(ctx context.Context, opts *options.RedisOptions) (*redis.Client, error) {
	ropts, err := opts.ToRedisOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// OnSnapshot queues s, replacing a snapshot that is still pending.
func (m *Mirror) OnSnapshot(s vehicle.Snapshot) {
	for {
		select {
		case m.snapshots <- s:
			return
		default:
		}
		select {
		case <-m.snapshots:
		default:
		}
	}
}

// OnBreach queues b for publishing.
func (m *Mirror) OnBreach(b vehicle.Breach) {
	select {
	case m.breaches <- b:
	default:
		log.Warn("Breach queue full, dropping redis notification", "zone", b.ZoneID)
	}
}

// Start writes queued updates until ctx is done.
func (m *Mirror) Start(ctx context.Context) error {
	log.Info("Starting redis mirror", "key", m.key, "channel", m.channel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-m.snapshots:
			if err := m.writeSnapshot(ctx, s); err != nil {
				log.Error(err, "Failed to mirror snapshot", "key", m.key)
			}
		case b := <-m.breaches:
			if err := m.publishBreach(ctx, b); err != nil {
				log.Error(err, "Failed to publish breach", "channel", m.channel, "zone", b.ZoneID)
			}
		}
	}
}

func (m *Mirror) writeSnapshot(ctx context.Context, s vehicle.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.client.Set(ctx, m.key, data, m.ttl).Err()
}

func (m *Mirror) publishBreach(ctx context.Context, b vehicle.Breach) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.client.Publish(ctx, m.channel, data).Err()
}
