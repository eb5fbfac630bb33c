package format

import (
	"strings"
	"testing"

	"github.com/qthlink/qthlink/internal/entity"
)

func TestAbbrev(t *testing.T) {
	tests := []struct {
		domain entity.Domain
		want   string
	}{
		{entity.DomainLight, "LT"},
		{entity.DomainCover, "BL"},
		{entity.DomainBinarySensor, "BS"},
		{entity.DomainOther, "??"},
	}
	for _, tt := range tests {
		if got := Abbrev(tt.domain); got != tt.want {
			t.Errorf("Abbrev(%q) = %q, want %q", tt.domain, got, tt.want)
		}
	}
}

func TestState(t *testing.T) {
	tests := []struct {
		state string
		attrs map[string]any
		want  string
	}{
		{"on", nil, "[ON]"},
		{"off", nil, "[--]"},
		{"unavailable", nil, "[??]"},
		{"21.4", map[string]any{"unit_of_measurement": "°C"}, "21C"},
		{"78", map[string]any{"unit_of_measurement": "%"}, "78%"},
		{"42", nil, "42"},
		{"running_long_state", nil, "runni."},
	}
	for _, tt := range tests {
		if got := State(tt.state, tt.attrs); got != tt.want {
			t.Errorf("State(%q) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestEntityLine(t *testing.T) {
	e := entity.Entity{
		NumericID: 1,
		NativeID:  "light.kitchen",
		Domain:    entity.DomainLight,
		Name:      "Kitchen",
		State:     "on",
	}
	got := EntityLine(e)
	if !strings.HasPrefix(got, "1.LT Kitchen") || !strings.HasSuffix(got, "[ON]") {
		t.Errorf("EntityLine = %q", got)
	}
}

func TestEntityLineTruncatesName(t *testing.T) {
	e := entity.Entity{
		NumericID: 2,
		Domain:    entity.DomainSwitch,
		Name:      "Extremely Long Device Name",
		State:     "off",
	}
	got := EntityLine(e)
	if strings.Contains(got, "Extremely Long") {
		t.Errorf("name not truncated: %q", got)
	}
}

func TestEntityDetail(t *testing.T) {
	e := entity.Entity{
		NumericID: 3,
		NativeID:  "light.kitchen",
		Domain:    entity.DomainLight,
		Name:      "Kitchen",
		State:     "on",
		Attributes: map[string]any{
			"brightness": 255.0,
		},
	}
	lines := EntityDetail(e)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "#3 LT Kitchen") {
		t.Errorf("missing header: %q", joined)
	}
	if !strings.Contains(joined, "Bright: 100%") {
		t.Errorf("missing brightness: %q", joined)
	}
	if !strings.Contains(joined, "ID: light.kitchen") {
		t.Errorf("missing native id: %q", joined)
	}
}

func makeEntities(n int) []entity.Entity {
	out := make([]entity.Entity, n)
	for i := range out {
		out[i] = entity.Entity{
			NumericID: i + 1,
			Domain:    entity.DomainSwitch,
			Name:      "Dev",
			State:     "off",
		}
	}
	return out
}

func TestPageSingle(t *testing.T) {
	lines := Page(makeEntities(3), 1, 10, "DEVICES")
	if lines[0] != "DEVICES (pg 1/1)" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 4 {
		t.Errorf("single page should have no nav hint, got %d lines", len(lines))
	}
}

func TestPageMulti(t *testing.T) {
	entities := makeEntities(25)

	lines := Page(entities, 1, 10, "DEVICES")
	if lines[0] != "DEVICES (pg 1/3)" {
		t.Errorf("header = %q", lines[0])
	}
	if last := lines[len(lines)-1]; last != "N:" {
		t.Errorf("nav = %q, want N:", last)
	}

	lines = Page(entities, 2, 10, "DEVICES")
	if last := lines[len(lines)-1]; last != "N P:" {
		t.Errorf("nav = %q, want N P:", last)
	}

	// Out-of-range page clamps to the last page
	lines = Page(entities, 9, 10, "DEVICES")
	if lines[0] != "DEVICES (pg 3/3)" {
		t.Errorf("clamped header = %q", lines[0])
	}
}

func TestMessagePrefixes(t *testing.T) {
	if got := OK("Heater on"); got != "OK: Heater on" {
		t.Errorf("OK = %q", got)
	}
	if got := Err("bad"); got != "ERR: bad" {
		t.Errorf("Err = %q", got)
	}
	if Farewell != "73!" {
		t.Errorf("Farewell = %q", Farewell)
	}
}
