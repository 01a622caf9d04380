// Package archive batches accepted telemetry records and uploads them to
// object storage as newline-delimited JSON.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/vajra-io/vajra/internal/pkg/metrics"
	"github.com/vajra-io/vajra/internal/vehicle"
	"github.com/vajra-io/vajra/pkg/frame"
	"github.com/vajra-io/vajra/pkg/log"
)

const (
	queueSize     = 1024
	uploadTimeout = 30 * time.Second
)

// Config tunes the archiver.
type Config struct {
	IMEI          string
	BatchSize     int
	FlushInterval time.Duration
	Clock         clock.WithTicker
}

// Archiver receives snapshots, extracts the records it has not seen yet
// and uploads them in batches. A batch is written once it is full or when
// the flush interval fires, and whatever is pending is written on shutdown.
type Archiver struct {
	store Store
	cfg   Config

	queue chan *frame.Record

	// Owned by OnSnapshot, which the reconciler calls from its loop.
	lastSeen *frame.Record

	// Owned by Start.
	pending []*frame.Record
	seq     int
}

func New(store Store, cfg Config) *Archiver {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	return &Archiver{
		store: store,
		cfg:   cfg,
		queue: make(chan *frame.Record, queueSize),
	}
}

// OnSnapshot queues the records added to History since the previous call.
// History is newest first and records are immutable, so identity marks the
// boundary.
func (a *Archiver) OnSnapshot(s vehicle.Snapshot) {
	var fresh []*frame.Record
	for _, rec := range s.History {
		if rec == a.lastSeen {
			break
		}
		fresh = append(fresh, rec)
	}
	if len(s.History) > 0 {
		a.lastSeen = s.History[0]
	}
	for i := len(fresh) - 1; i >= 0; i-- {
		select {
		case a.queue <- fresh[i]:
		default:
			metrics.ArchiveObjects.WithLabelValues(metrics.ArchiveDropped).Inc()
			log.Warn("Archive queue full, dropping record", "frame", fresh[i].FrameNumber)
		}
	}
}

// Start uploads batches until ctx is done, then flushes what is left.
func (a *Archiver) Start(ctx context.Context) error {
	log.Info("Starting telemetry archive", "batchSize", a.cfg.BatchSize, "flushInterval", a.cfg.FlushInterval)

	ticker := a.cfg.Clock.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.drain()
			flushCtx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
			defer cancel()
			a.flush(flushCtx)
			return nil
		case rec := <-a.queue:
			a.pending = append(a.pending, rec)
			if len(a.pending) >= a.cfg.BatchSize {
				a.flush(ctx)
			}
		case <-ticker.C():
			a.flush(ctx)
		}
	}
}

func (a *Archiver) drain() {
	for {
		select {
		case rec := <-a.queue:
			a.pending = append(a.pending, rec)
		default:
			return
		}
	}
}

// flush uploads the pending batch. A failed upload is dropped; retrying
// would let one bad object block the archive forever.
func (a *Archiver) flush(ctx context.Context) {
	if len(a.pending) == 0 {
		return
	}
	batch := a.pending
	a.pending = nil

	data, err := encode(batch)
	if err != nil {
		metrics.ArchiveObjects.WithLabelValues(metrics.StatusFailed).Inc()
		log.Error(err, "Failed to encode archive batch", "records", len(batch))
		return
	}

	a.seq++
	key := ObjectKey(a.cfg.IMEI, a.cfg.Clock.Now(), a.seq)
	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	if err := a.store.Put(uploadCtx, key, data); err != nil {
		metrics.ArchiveObjects.WithLabelValues(metrics.StatusFailed).Inc()
		log.Error(err, "Failed to archive telemetry", "key", key, "records", len(batch))
		return
	}
	metrics.ArchiveObjects.WithLabelValues(metrics.StatusSent).Inc()
	log.Debug("Telemetry archived", "key", key, "records", len(batch))
}

// ObjectKey is <imei>/<yyyy>/<mm>/<dd>/<unix>-<seq>.ndjson in UTC.
func ObjectKey(imei string, at time.Time, seq int) string {
	if imei == "" {
		imei = "unknown"
	}
	at = at.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%d-%d.ndjson", imei, at.Year(), int(at.Month()), at.Day(), at.Unix(), seq)
}

func encode(batch []*frame.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range batch {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
