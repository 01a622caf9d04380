package dashboard

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vajra-io/vajra/internal/dashboard/archive"
	"github.com/vajra-io/vajra/internal/dashboard/mirror"
	"github.com/vajra-io/vajra/internal/dashboard/server"
	"github.com/vajra-io/vajra/internal/dashboard/zonefile"
	"github.com/vajra-io/vajra/internal/transport"
	"github.com/vajra-io/vajra/internal/transport/broker"
	"github.com/vajra-io/vajra/internal/transport/simulator"
	"github.com/vajra-io/vajra/internal/vehicle"
	"github.com/vajra-io/vajra/pkg/frame"
	"github.com/vajra-io/vajra/pkg/geofence"
	"github.com/vajra-io/vajra/pkg/log"
	"github.com/vajra-io/vajra/pkg/options"
)

type Config struct {
	MqttOptions    *options.MqttOptions
	HttpOptions    *options.HttpOptions
	S3Options      *options.S3Options
	RedisOptions   *options.RedisOptions
	CodecOptions   *options.CodecOptions
	VehicleOptions *options.VehicleOptions
}

// NewDashboard builds every component. External stores are dialled here so
// a bad redis or S3 endpoint fails start-up instead of the first write.
func (cfg *Config) NewDashboard(ctx context.Context) (*Dashboard, error) {
	vopts := cfg.VehicleOptions

	// 1. Codec
	codecOpts, err := cfg.CodecOptions.ToCodecOptions()
	if err != nil {
		return nil, err
	}
	codec, err := frame.NewCodec(codecOpts)
	if err != nil {
		return nil, err
	}

	// 2. Simulated device, always present as the fallback generator
	rev, err := frame.ParseRevision(vopts.SimulatorRevision)
	if err != nil {
		return nil, err
	}
	sim, err := simulator.New(simulator.Config{
		IMEI:     cfg.MqttOptions.IMEI,
		Revision: rev,
		Seed:     vopts.SimulatorSeed,
		AckDelay: vopts.SimulatorAckDelay,
	}, codec, log.Logr())
	if err != nil {
		return nil, fmt.Errorf("failed to init simulator: %w", err)
	}

	// 3. Transport
	var adapter transport.Adapter = sim
	if vopts.Transport == options.TransportBroker {
		adapter, err = cfg.newBroker()
		if err != nil {
			return nil, err
		}
	}

	// 4. Reconciler
	policy, err := vehicle.ParseIgnitionPolicy(vopts.IgnitionPolicy)
	if err != nil {
		return nil, err
	}
	rec, err := vehicle.New(adapter, sim, codec,
		vehicle.WithLogger(log.Logr()),
		vehicle.WithIMEI(cfg.MqttOptions.IMEI),
		vehicle.WithTickInterval(vopts.TickInterval),
		vehicle.WithStickyLiveRecord(vopts.StickyLiveRecord),
		vehicle.WithIgnitionPolicy(policy),
		vehicle.WithAcceptInvalidChecksum(vopts.AcceptInvalidChecksum),
		vehicle.WithCloseTimeout(vopts.CloseTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init reconciler: %w", err)
	}

	d := &Dashboard{reconciler: rec}

	// 5. Zones: a watched file, or the fence that ships with the demo route
	if vopts.ZoneFile != "" {
		d.zones = zonefile.New(vopts.ZoneFile, rec)
	} else {
		d.zones = staticZones{target: rec, zones: []geofence.Zone{simulator.CityCentreFence}}
	}

	// 6. Optional sinks
	if cfg.RedisOptions.Enabled() {
		client, err := mirror.Dial(ctx, cfg.RedisOptions)
		if err != nil {
			return nil, err
		}
		m := mirror.New(client, cfg.RedisOptions, cfg.MqttOptions.IMEI)
		d.servers = append(d.servers, m)
		d.closers = append(d.closers, client.Close)
		rec.Subscribe(m.OnSnapshot)
		rec.SubscribeBreaches(m.OnBreach)
	}
	if cfg.S3Options.Enabled {
		store, err := archive.NewMinIOStore(cfg.S3Options)
		if err != nil {
			return nil, err
		}
		if err := store.CheckBucket(ctx); err != nil {
			return nil, err
		}
		a := archive.New(store, archive.Config{
			IMEI:          cfg.MqttOptions.IMEI,
			BatchSize:     cfg.S3Options.BatchSize,
			FlushInterval: cfg.S3Options.FlushInterval,
		})
		d.servers = append(d.servers, a)
		rec.Subscribe(a.OnSnapshot)
	}
	rec.SubscribeBreaches(func(b vehicle.Breach) {
		log.Warn("Vehicle left geofence, immobilizer engaged", "zone", b.ZoneID, "name", b.ZoneName, "frame", b.Record.FrameNumber)
	})

	// 7. HTTP API
	d.servers = append(d.servers, server.NewServer(cfg.HttpOptions, rec, d.ready))

	return d, nil
}

func (cfg *Config) newBroker() (*broker.Adapter, error) {
	client := cfg.MqttOptions.ToClientConfig()
	if client.ClientID == "" {
		hostname, _ := os.Hostname()
		client.ClientID = fmt.Sprintf("vajra-dashboard-%s", strings.ToLower(hostname))
	}

	format, err := transport.ParseCommandFormat(cfg.MqttOptions.CommandFormat)
	if err != nil {
		return nil, err
	}

	adapter, err := broker.New(broker.Config{
		Client:         *client,
		Topics:         cfg.MqttOptions.TopicBuilder(),
		IMEI:           cfg.MqttOptions.IMEI,
		QoS:            cfg.MqttOptions.QoS,
		Format:         format,
		PublishTimeout: cfg.MqttOptions.PublishTimeout,
	}, log.Logr())
	if err != nil {
		return nil, fmt.Errorf("failed to init broker transport: %w", err)
	}
	return adapter, nil
}

// staticZones applies a fixed zone set once.
type staticZones struct {
	target zonefile.ZoneSetter
	zones  []geofence.Zone
}

func (s staticZones) Start(ctx context.Context) error {
	if err := s.target.SetZones(ctx, s.zones); err != nil {
		return fmt.Errorf("failed to apply default zones: %w", err)
	}
	log.Info("Using built-in geofence zones", "zones", len(s.zones))
	<-ctx.Done()
	return nil
}
