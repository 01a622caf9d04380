// Package zonefile keeps the reconciler's geofences in sync with a GeoJSON
// file on disk.
package zonefile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vajra-io/vajra/pkg/geofence"
	"github.com/vajra-io/vajra/pkg/log"
)

// DefaultDebounce collapses the burst of events an editor produces for a
// single save.
const DefaultDebounce = 250 * time.Millisecond

// ZoneSetter receives every successfully parsed zone set.
type ZoneSetter interface {
	SetZones(ctx context.Context, zones []geofence.Zone) error
}

type Watcher struct {
	path     string
	target   ZoneSetter
	debounce time.Duration
}

func New(path string, target ZoneSetter) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		target:   target,
		debounce: DefaultDebounce,
	}
}

// Load reads the file once and hands the zones to the target.
func (w *Watcher) Load(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read zone file: %w", err)
	}
	zones, err := geofence.ParseGeoJSON(data)
	if err != nil {
		return fmt.Errorf("invalid zone file %s: %w", w.path, err)
	}
	if err := w.target.SetZones(ctx, zones); err != nil {
		return fmt.Errorf("failed to apply zones: %w", err)
	}
	log.Info("Geofence zones loaded", "file", w.path, "zones", len(zones))
	return nil
}

// Start loads the file and reloads it on every change until ctx is done.
// The initial load must succeed; later failures are logged and the previous
// zones stay in force.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.Load(ctx); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory: editors and config-map mounts replace the file
	// instead of writing it in place.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			trigger = timer.C

		case <-trigger:
			trigger = nil
			if err := w.Load(ctx); err != nil {
				log.Error(err, "Zone file reload failed, keeping previous zones", "file", w.path)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Error(err, "Zone file watcher error", "file", w.path)
		}
	}
}
