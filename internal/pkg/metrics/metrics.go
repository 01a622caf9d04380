package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vajra"

var (
	// LinkLive is 1 while the reconciler accepts live frames, 0 while it
	// runs on simulated data.
	LinkLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_live",
			Help:      "Whether the vehicle link is live (1) or simulated (0).",
		},
	)

	// FramesAccepted counts records that reached the snapshot.
	FramesAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_accepted_total",
			Help:      "Frames ingested into the vehicle snapshot.",
		},
		[]string{"source", "revision"}, // source: LIVE/SIMULATED
	)

	// FramesDropped counts frames thrown away before ingestion.
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped before ingestion, by reason.",
		},
		[]string{"reason"}, // malformed, checksum, unknown
	)

	// SimulatorTicks counts generator ticks by outcome.
	SimulatorTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulator_ticks_total",
			Help:      "Simulator ticks, ingested or suppressed while live.",
		},
		[]string{"outcome"},
	)

	// Breaches counts geofence exits that immobilized the vehicle.
	Breaches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geofence_breaches_total",
			Help:      "Geofence exits that triggered the immobilizer.",
		},
		[]string{"zone"},
	)

	// Commands counts outbound commands by kind and publish outcome.
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Outbound commands by kind and status.",
		},
		[]string{"kind", "status"}, // status: sent/failed
	)

	// PublishLatency records broker publish round trips.
	PublishLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_latency_seconds",
			Help:      "Latency of command publishes to the broker.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// ArchiveObjects counts telemetry batches written to object storage.
	ArchiveObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_objects_total",
			Help:      "Telemetry archive uploads by status.",
		},
		[]string{"status"},
	)
)

// Drop reasons.
const (
	ReasonMalformed = "malformed"
	ReasonChecksum  = "checksum"
)

// Tick outcomes.
const (
	TickIngested   = "ingested"
	TickSuppressed = "suppressed"
	TickFailed     = "failed"
)

// Command and archive statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"

	ArchiveDropped = "dropped"
)

func init() {
	prometheus.MustRegister(
		LinkLive,
		FramesAccepted,
		FramesDropped,
		SimulatorTicks,
		Breaches,
		Commands,
		PublishLatency,
		ArchiveObjects,
	)
}
