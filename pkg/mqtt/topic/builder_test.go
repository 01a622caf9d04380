package topic

import "testing"

func TestTopicBuilder(t *testing.T) {
	const imei = "887744556677882"

	tests := []struct {
		layout         Layout
		up, down, wild string
	}{
		{LayoutMobile, "telematics/887744556677882/up", "telematics/887744556677882/down", "telematics/+/up"},
		{LayoutWeb, "telematics/device/887744556677882/data", "telematics/device/887744556677882/control", "telematics/device/+/data"},
	}

	for _, tt := range tests {
		t.Run(string(tt.layout), func(t *testing.T) {
			b := NewTopicBuilder("telematics/", tt.layout)
			if got := b.Uplink(imei); got != tt.up {
				t.Errorf("Uplink = %q, want %q", got, tt.up)
			}
			if got := b.Downlink(imei); got != tt.down {
				t.Errorf("Downlink = %q, want %q", got, tt.down)
			}
			if got := b.UplinkWildcard(); got != tt.wild {
				t.Errorf("UplinkWildcard = %q, want %q", got, tt.wild)
			}
			for _, topic := range []string{tt.up, tt.down} {
				if got, ok := b.IMEI(topic); !ok || got != imei {
					t.Errorf("IMEI(%q) = %q, %v", topic, got, ok)
				}
			}
		})
	}
}

func TestTopicBuilderIMEIRejectsForeignTopics(t *testing.T) {
	b := NewTopicBuilder("telematics", LayoutMobile)
	for _, topic := range []string{
		"fleet/887744556677882/up",
		"telematics/887744556677882/status",
		"telematics/device/887744556677882/data",
		"telematics//up",
	} {
		if imei, ok := b.IMEI(topic); ok {
			t.Errorf("IMEI(%q) = %q, want no match", topic, imei)
		}
	}
}

func TestParseLayout(t *testing.T) {
	if l, err := ParseLayout(" Web "); err != nil || l != LayoutWeb {
		t.Errorf("ParseLayout(web) = %q, %v", l, err)
	}
	if _, err := ParseLayout("desktop"); err == nil {
		t.Error("ParseLayout accepted desktop")
	}
	if b := NewTopicBuilder("t", ""); b.Layout() != LayoutMobile {
		t.Errorf("default layout = %q", b.Layout())
	}
}
