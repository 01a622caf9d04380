// Package dashboard runs the vehicle reconciler together with everything
// that consumes it: the HTTP API, the zone file, the redis mirror and the
// telemetry archive.
package dashboard

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/vajra-io/vajra/internal/vehicle"
	"github.com/vajra-io/vajra/pkg/log"
)

// Server defines the common interface for all sub-servers.
type Server interface {
	Start(ctx context.Context) error
}

var errReconcilerStopped = errors.New("vehicle reconciler stopped")

type Dashboard struct {
	reconciler *vehicle.Reconciler
	zones      Server
	servers    []Server
	closers    []func() error
}

// Reconciler returns the reconciler the dashboard drives.
func (d *Dashboard) Reconciler() *vehicle.Reconciler {
	return d.reconciler
}

// Run starts the reconciler and all sub-servers and blocks until ctx is
// done or one of them fails.
func (d *Dashboard) Run(ctx context.Context) error {
	defer d.close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := d.reconciler.Run(ctx)
		if err == nil && ctx.Err() == nil {
			err = errReconcilerStopped
		}
		return err
	})

	for _, s := range append([]Server{d.zones}, d.servers...) {
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	log.Info("All servers starting...")
	return g.Wait()
}

func (d *Dashboard) ready() error {
	select {
	case <-d.reconciler.Done():
		return errReconcilerStopped
	default:
		return nil
	}
}

func (d *Dashboard) close() {
	for _, c := range d.closers {
		if err := c(); err != nil {
			log.Error(err, "Failed to close client")
		}
	}
}
