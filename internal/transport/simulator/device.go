package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/vajra-io/vajra/pkg/frame"
	"github.com/vajra-io/vajra/pkg/geofence"
)

// BangaloreLoop is the default route: a city loop starting and ending at
// MG Road.
var BangaloreLoop = []geofence.LatLon{
	{Lat: 12.971599, Lon: 77.594566},
	{Lat: 12.975867, Lon: 77.600413},
	{Lat: 12.978900, Lon: 77.608100},
	{Lat: 12.984000, Lon: 77.614500},
	{Lat: 12.990000, Lon: 77.620000},
	{Lat: 12.995000, Lon: 77.628000},
	{Lat: 12.985000, Lon: 77.635000},
	{Lat: 12.974000, Lon: 77.638000},
	{Lat: 12.965000, Lon: 77.626000},
	{Lat: 12.960000, Lon: 77.613000},
	{Lat: 12.963000, Lon: 77.600000},
	{Lat: 12.971599, Lon: 77.594566},
}

// CityCentreFence is the geofence that ships with the demo route.
var CityCentreFence = geofence.Zone{
	ID:   "city-centre",
	Name: "City centre",
	Polygon: []geofence.LatLon{
		{Lat: 12.990, Lon: 77.580},
		{Lat: 12.990, Lon: 77.640},
		{Lat: 12.955, Lon: 77.640},
		{Lat: 12.955, Lon: 77.580},
	},
}

// Config describes the simulated tracker.
type Config struct {
	IMEI     string         `json:"imei" mapstructure:"imei"`
	Revision frame.Revision `json:"revision" mapstructure:"revision"`

	// Route is driven point by point. A closing point equal to the first
	// one is skipped when looping.
	Route []geofence.LatLon `json:"route" mapstructure:"route"`

	OperatorCode   string `json:"operator" mapstructure:"operator"`
	SignalStrength int    `json:"signal-strength" mapstructure:"signal-strength"`
	MCC            int    `json:"mcc" mapstructure:"mcc"`
	MNC            int    `json:"mnc" mapstructure:"mnc"`

	// Battery drift, in the unit the codec uses for Revision. Zero max
	// picks defaults for that unit.
	BatteryMin   float64 `json:"battery-min" mapstructure:"battery-min"`
	BatteryMax   float64 `json:"battery-max" mapstructure:"battery-max"`
	BatteryStart float64 `json:"battery-start" mapstructure:"battery-start"`

	// Speed range while the ignition is on, km/h.
	SpeedMin float64 `json:"speed-min" mapstructure:"speed-min"`
	SpeedMax float64 `json:"speed-max" mapstructure:"speed-max"`

	// AckDelay is how long the device takes to acknowledge a command.
	AckDelay time.Duration `json:"ack-delay" mapstructure:"ack-delay"`

	// Seed fixes the random drift; 0 seeds from the clock.
	Seed int64 `json:"seed" mapstructure:"seed"`
}

// DefaultConfig is the demo tracker on the Bangalore loop.
func DefaultConfig() Config {
	return Config{
		IMEI:           "887744556677882",
		Revision:       frame.RevisionA,
		Route:          BangaloreLoop,
		OperatorCode:   "03",
		SignalStrength: 21,
		MCC:            404,
		MNC:            10,
		SpeedMin:       30,
		SpeedMax:       90,
		AckDelay:       300 * time.Millisecond,
	}
}

func (c *Config) complete(unit frame.BatteryUnit) {
	def := DefaultConfig()
	if c.IMEI == "" {
		c.IMEI = def.IMEI
	}
	if c.Revision == "" {
		c.Revision = def.Revision
	}
	if len(c.Route) == 0 {
		c.Route = def.Route
	}
	if c.OperatorCode == "" {
		c.OperatorCode = def.OperatorCode
	}
	if c.SpeedMax == 0 {
		c.SpeedMin, c.SpeedMax = def.SpeedMin, def.SpeedMax
	}
	if c.AckDelay == 0 {
		c.AckDelay = def.AckDelay
	}
	if c.BatteryMax == 0 {
		if unit == frame.BatteryPercent {
			c.BatteryMin, c.BatteryMax, c.BatteryStart = 0, 100, 80
		} else {
			c.BatteryMin, c.BatteryMax, c.BatteryStart = 10, 14.5, 12.4
		}
	}
}

// Validate checks ranges after defaults are applied.
func (c *Config) Validate() error {
	var errs []error
	if _, err := frame.ParseRevision(string(c.Revision)); err != nil {
		errs = append(errs, err)
	}
	if c.BatteryMin > c.BatteryMax || c.BatteryStart < c.BatteryMin || c.BatteryStart > c.BatteryMax {
		errs = append(errs, fmt.Errorf("battery start %v outside [%v, %v]", c.BatteryStart, c.BatteryMin, c.BatteryMax))
	}
	if c.SpeedMin < 0 || c.SpeedMin > c.SpeedMax {
		errs = append(errs, fmt.Errorf("speed range [%v, %v] is invalid", c.SpeedMin, c.SpeedMax))
	}
	if c.AckDelay < 0 {
		errs = append(errs, errors.New("ack delay must not be negative"))
	}
	return errors.Join(errs...)
}

// device is the simulated tracker hardware: position along the route,
// drifting battery and the two digital pins.
type device struct {
	cfg   Config
	codec *frame.Codec
	unit  frame.BatteryUnit

	mu          sync.Mutex
	rng         *rand.Rand
	routeIndex  int
	frameNumber int64
	battery     float64
	ignition    bool
	immobilizer bool
	interval    int
}

func newDevice(cfg Config, codec *frame.Codec) *device {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &device{
		cfg:      cfg,
		codec:    codec,
		unit:     codec.BatteryUnit(cfg.Revision),
		rng:      rand.New(rand.NewSource(seed)),
		battery:  cfg.BatteryStart,
		ignition: true,
	}
}

// next advances the device by one reporting period and encodes the frame.
func (d *device) next(now time.Time) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	loop := len(d.cfg.Route)
	if loop > 1 && d.cfg.Route[0] == d.cfg.Route[loop-1] {
		loop--
	}
	d.routeIndex = (d.routeIndex + 1) % loop
	pos := d.cfg.Route[d.routeIndex]
	d.frameNumber++

	d.battery = d.drift(d.battery)
	battery := round(d.battery, 0)
	if d.unit == frame.BatteryDeciVolts {
		battery = round(d.battery, 1)
	}

	speed := 0.0
	if d.ignition && !d.immobilizer {
		speed = round(d.cfg.SpeedMin+d.rng.Float64()*(d.cfg.SpeedMax-d.cfg.SpeedMin), 2)
	}

	signal := d.cfg.SignalStrength + int(math.Floor((d.rng.Float64()-0.5)*4))
	signal = max(5, min(31, signal))

	rec := &frame.Record{
		Kind:           frame.KindData,
		IMEI:           d.cfg.IMEI,
		PacketStatus:   1,
		FrameNumber:    d.frameNumber,
		Timestamp:      now.Unix(),
		OperatorCode:   d.cfg.OperatorCode,
		SignalStrength: signal,
		MCC:            d.cfg.MCC,
		MNC:            d.cfg.MNC,
		FixStatus:      1,
		Latitude:       frame.Float(pos.Lat),
		Longitude:      frame.Float(pos.Lon),
		HasGPSFix:      true,
		HDOP:           1.2,
		PDOP:           1.8,
		SpeedKmh:       speed,
		Ignition:       frame.Bool(d.ignition),
		Immobilizer:    frame.Bool(d.immobilizer),
		Battery:        frame.Float(battery),
	}
	return d.codec.EncodeAs(d.cfg.Revision, rec)
}

// drift moves the battery reading by a small random step clamped to the
// configured range.
func (d *device) drift(v float64) float64 {
	span := d.cfg.BatteryMax - d.cfg.BatteryMin
	v += (d.rng.Float64() - 0.5) * span / 25
	return max(d.cfg.BatteryMin, min(d.cfg.BatteryMax, v))
}

func (d *device) setImmobilizer(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.immobilizer = on
	d.ignition = !on
}

func (d *device) setPins(immobilizer, ignition bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.immobilizer = immobilizer
	d.ignition = ignition
}

func (d *device) setInterval(seconds int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interval = seconds
}

func (d *device) pins() (immobilizer, ignition bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.immobilizer, d.ignition
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
