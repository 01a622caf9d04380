package vehicle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vajra-io/vajra/internal/transport"
	"github.com/vajra-io/vajra/pkg/frame"
)

const (
	// HistorySize bounds Snapshot.History.
	HistorySize = 50
	// VoltageTrailSize bounds Snapshot.VoltageTrail.
	VoltageTrailSize = 30
	// DefaultTickInterval is how often the generator is polled.
	DefaultTickInterval = 2 * time.Second

	voltageLabelLayout = "15:04:05"
)

var (
	// ErrStopped is returned by every request made after Stop or after Run
	// has returned.
	ErrStopped = errors.New("vehicle reconciler stopped")
	// ErrRunning is returned by a second call to Run.
	ErrRunning = errors.New("vehicle reconciler already running")
	// ErrZoneExists is returned by AddZone for a duplicate id.
	ErrZoneExists = errors.New("geofence zone already exists")
	// ErrZoneNotFound is returned by RemoveZone for an unknown id.
	ErrZoneNotFound = errors.New("geofence zone not found")
)

// Generator produces the frames ingested while no live link is up.
type Generator interface {
	// Generate returns one raw frame stamped with now.
	Generate(now time.Time) (string, error)
	// Apply tells the generator the pin states the reconciler settled on.
	Apply(immobilizer, ignition bool)
}

// IgnitionPolicy decides how ignition relates to the immobilizer.
type IgnitionPolicy string

const (
	// IgnitionIndependent trusts the ignition flag each record reports.
	IgnitionIndependent IgnitionPolicy = "independent"
	// IgnitionCoupled derives ignition as the inverse of the immobilizer and
	// ignores reported ignition flags.
	IgnitionCoupled IgnitionPolicy = "coupled"
)

// ParseIgnitionPolicy accepts "independent" or "coupled" in any case.
func ParseIgnitionPolicy(s string) (IgnitionPolicy, error) {
	switch p := IgnitionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case IgnitionIndependent, IgnitionCoupled:
		return p, nil
	}
	return "", fmt.Errorf("unknown ignition policy %q (want %q or %q)", s, IgnitionIndependent, IgnitionCoupled)
}

// Mode is the link state.
type Mode string

const (
	ModeSimulating Mode = "simulating"
	ModeLive       Mode = "live"
)

// VoltageSample is one point of the battery trail.
type VoltageSample struct {
	Label string            `json:"label"`
	At    time.Time         `json:"at"`
	Value float64           `json:"value"`
	Unit  frame.BatteryUnit `json:"unit,omitempty"`
}

// Snapshot is the published vehicle state. Snapshots are immutable: the
// slices are never written to after publication.
type Snapshot struct {
	Latest       *frame.Record   `json:"latest,omitempty"`
	History      []*frame.Record `json:"history"`
	VoltageTrail []VoltageSample `json:"voltageTrail"`

	ImmobilizerActive bool             `json:"immobilizerActive"`
	IgnitionActive    bool             `json:"ignitionActive"`
	ConnectionStatus  transport.Status `json:"connectionStatus"`
	Mode              Mode             `json:"mode"`

	PollingIntervalSeconds int                     `json:"pollingIntervalSeconds,omitempty"`
	OptimizerMode          transport.OptimizerMode `json:"optimizerMode,omitempty"`

	// Dropped counts frames discarded as malformed or failing the checksum.
	Dropped   uint64    `json:"dropped"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Breach is emitted when the vehicle leaves a zone and gets immobilized.
type Breach struct {
	ZoneID   string        `json:"zoneId"`
	ZoneName string        `json:"zoneName"`
	Record   *frame.Record `json:"record"`
	At       time.Time     `json:"at"`
}
