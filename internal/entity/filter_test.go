package entity

import "testing"

func TestFilterDomains(t *testing.T) {
	f := NewFilter([]string{"light", "switch"}, nil)

	if !f.Include(Entity{NativeID: "light.kitchen"}) {
		t.Error("light.kitchen should pass")
	}
	if f.Include(Entity{NativeID: "sensor.outdoor_temp"}) {
		t.Error("sensor should be excluded by domain filter")
	}
}

func TestFilterEmptyIncludesAll(t *testing.T) {
	f := NewFilter(nil, nil)

	for _, id := range []string{"light.kitchen", "sensor.uptime", "media_player.tv"} {
		if !f.Include(Entity{NativeID: id}) {
			t.Errorf("%s should pass an empty filter", id)
		}
	}
}

func TestFilterExcludePatterns(t *testing.T) {
	f := NewFilter(nil, []string{"sensor.uptime", "sensor.*_battery"})

	if f.Include(Entity{NativeID: "sensor.uptime"}) {
		t.Error("exact exclusion failed")
	}
	if f.Include(Entity{NativeID: "sensor.door_battery"}) {
		t.Error("glob exclusion failed")
	}
	if !f.Include(Entity{NativeID: "sensor.door"}) {
		t.Error("non-matching entity excluded")
	}
}

func TestParseDomain(t *testing.T) {
	tests := []struct {
		nativeID string
		want     Domain
	}{
		{"light.kitchen", DomainLight},
		{"cover.garage", DomainCover},
		{"automation.morning", DomainAutomation},
		{"media_player.tv", DomainOther},
		{"noseparator", DomainOther},
	}
	for _, tt := range tests {
		if got := ParseDomain(tt.nativeID); got != tt.want {
			t.Errorf("ParseDomain(%q) = %q, want %q", tt.nativeID, got, tt.want)
		}
	}
}

func TestDomainCapabilities(t *testing.T) {
	if !DomainLight.Switchable() || !DomainLight.Settable() {
		t.Error("light should be switchable and settable")
	}
	if DomainSensor.Switchable() || DomainSensor.Settable() {
		t.Error("sensor should be read-only")
	}
	if !DomainAutomation.Triggerable() || DomainLight.Triggerable() {
		t.Error("only automations are triggerable")
	}
}

func TestDomainLabel(t *testing.T) {
	e := Entity{NativeID: "binary_sensor.front_door"}
	if got := e.DomainLabel(); got != "Binary sensor" {
		t.Errorf("DomainLabel = %q", got)
	}
}
