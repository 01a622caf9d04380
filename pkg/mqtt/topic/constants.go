package topic

// Standard MQTT wildcard definitions.
const (
	// Wildcard is the single-level wildcard "+".
	// It matches exactly one topic level.
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#".
	// It must be the last character in the topic filter.
	MultiWildcard = "#"
)

// Topic segments shared with the tracker firmware. Changing them breaks
// every deployed device.
const (
	SuffixUp   = "up"
	SuffixDown = "down"

	SegmentDevice = "device"
	SuffixData    = "data"
	SuffixControl = "control"
)
