package vehicle

import (
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

type options struct {
	clock        clock.WithTicker
	tickInterval time.Duration
	log          logr.Logger
	imei         string
	sticky       bool
	ignition     IgnitionPolicy
	acceptBadCRC bool
	closeTimeout time.Duration
	queueSize    int
}

func defaultOptions() options {
	return options{
		clock:        clock.RealClock{},
		tickInterval: DefaultTickInterval,
		log:          logr.Discard(),
		ignition:     IgnitionIndependent,
		closeTimeout: 5 * time.Second,
		queueSize:    256,
	}
}

// Option configures a Reconciler.
type Option func(*options)

// WithClock replaces the real clock driving ticks and timestamps.
func WithClock(c clock.WithTicker) Option {
	return func(o *options) { o.clock = c }
}

// WithTickInterval sets the generator period. Non-positive values keep the
// default.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithIMEI sets the device identity carried by outbound commands. Without
// it the IMEI of the latest record is used.
func WithIMEI(imei string) Option {
	return func(o *options) { o.imei = imei }
}

// WithStickyLiveRecord keeps Snapshot.Latest on the last live record while
// simulated frames fill the history.
func WithStickyLiveRecord(on bool) Option {
	return func(o *options) { o.sticky = on }
}

// WithIgnitionPolicy selects how ignition is tracked.
func WithIgnitionPolicy(p IgnitionPolicy) Option {
	return func(o *options) {
		if p == IgnitionCoupled || p == IgnitionIndependent {
			o.ignition = p
		}
	}
}

// WithAcceptInvalidChecksum ingests frames whose checksum does not match
// instead of dropping them.
func WithAcceptInvalidChecksum(on bool) Option {
	return func(o *options) { o.acceptBadCRC = on }
}

// WithCloseTimeout bounds how long teardown waits for the adapter.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}
