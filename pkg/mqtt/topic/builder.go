package topic

import (
	"fmt"
	"strings"
)

// Layout names one of the topic trees trackers publish on.
type Layout string

const (
	// LayoutMobile is {root}/{imei}/up for telemetry and {root}/{imei}/down
	// for commands and acknowledgements.
	LayoutMobile Layout = "mobile"

	// LayoutWeb is {root}/device/{imei}/data and {root}/device/{imei}/control.
	LayoutWeb Layout = "web"
)

// ParseLayout accepts "mobile" or "web".
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case LayoutMobile, LayoutWeb:
		return l, nil
	}
	return "", fmt.Errorf("unknown topic layout %q (want %q or %q)", s, LayoutMobile, LayoutWeb)
}

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "telematics").
	root   string
	layout Layout
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string, layout Layout) *TopicBuilder {
	if layout == "" {
		layout = LayoutMobile
	}
	return &TopicBuilder{root: strings.TrimSuffix(root, "/"), layout: layout}
}

// Layout returns the topic layout in use.
func (b *TopicBuilder) Layout() Layout {
	return b.layout
}

// Uplink returns the topic a tracker publishes telemetry frames on.
// Direction: Device -> Dashboard
func (b *TopicBuilder) Uplink(imei string) string {
	if b.layout == LayoutWeb {
		return b.build(SegmentDevice, imei, SuffixData)
	}
	return b.build(imei, SuffixUp)
}

// Downlink returns the control topic of a tracker. Commands go down on it
// and acknowledgements come back on it.
func (b *TopicBuilder) Downlink(imei string) string {
	if b.layout == LayoutWeb {
		return b.build(SegmentDevice, imei, SuffixControl)
	}
	return b.build(imei, SuffixDown)
}

// UplinkWildcard subscribes to the telemetry of every tracker.
func (b *TopicBuilder) UplinkWildcard() string {
	return b.Uplink(Wildcard)
}

// IMEI extracts the device identity from an uplink or downlink topic.
func (b *TopicBuilder) IMEI(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.root+"/")
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")

	if b.layout == LayoutWeb {
		if len(parts) != 3 || parts[0] != SegmentDevice || (parts[2] != SuffixData && parts[2] != SuffixControl) {
			return "", false
		}
		return parts[1], parts[1] != ""
	}
	if len(parts) != 2 || (parts[1] != SuffixUp && parts[1] != SuffixDown) {
		return "", false
	}
	return parts[0], parts[0] != ""
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{segments...}
func (b *TopicBuilder) build(segments ...string) string {
	return b.root + "/" + strings.Join(segments, "/")
}
