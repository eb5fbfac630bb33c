// Package format renders entities, pages, and messages as terse ASCII
// lines. Every byte costs airtime on a 1200-baud link, so output stays
// compact: two-letter domain tags, short state markers, minimal
// padding.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/qthlink/qthlink/internal/entity"
)

const maxNameLen = 12

// Farewell is the last line of every session.
const Farewell = "73!"

var domainAbbrevs = map[entity.Domain]string{
	entity.DomainLight:        "LT",
	entity.DomainSwitch:       "SW",
	entity.DomainSensor:       "SN",
	entity.DomainCover:        "BL",
	entity.DomainAutomation:   "AU",
	entity.DomainScene:        "SC",
	entity.DomainClimate:      "CL",
	entity.DomainFan:          "FN",
	entity.DomainLock:         "LK",
	entity.DomainBinarySensor: "BS",
	entity.DomainInputBoolean: "IB",
	entity.DomainScript:       "SR",
}

// Abbrev returns the two-letter tag for a domain, "??" when unknown.
func Abbrev(d entity.Domain) string {
	if a, ok := domainAbbrevs[d]; ok {
		return a
	}
	return "??"
}

// State renders an entity state in at most six characters.
func State(state string, attributes map[string]any) string {
	switch strings.ToLower(state) {
	case "on":
		return "[ON]"
	case "off":
		return "[--]"
	case "unavailable", "unknown", "none", "":
		return "[??]"
	}

	if v, err := strconv.ParseFloat(state, 64); err == nil {
		unit, _ := attributes["unit_of_measurement"].(string)
		switch {
		case unit == "°C" || unit == "C":
			return fmt.Sprintf("%dC", int(v))
		case unit == "°F" || unit == "F":
			return fmt.Sprintf("%dF", int(v))
		case unit == "%":
			return fmt.Sprintf("%d%%", int(v))
		default:
			if _, ok := attributes["brightness"]; ok {
				return fmt.Sprintf("%d%%", int(v))
			}
			return strconv.Itoa(int(v))
		}
	}

	return Truncate(state, 6)
}

// Truncate shortens text to max characters, marking the cut with a dot.
func Truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	if max < 2 {
		return text[:max]
	}
	return text[:max-1] + "."
}

// EntityLine renders one list row: "1.LT Kitchen      [ON]".
func EntityLine(e entity.Entity) string {
	name := Truncate(e.Name, maxNameLen)
	return fmt.Sprintf("%d.%s %-*s %s",
		e.NumericID, Abbrev(e.Domain), maxNameLen, name, State(e.State, e.Attributes))
}

// EntityDetail renders the multi-line detail view for the show command.
func EntityDetail(e entity.Entity) []string {
	lines := []string{
		fmt.Sprintf("#%d %s %s", e.NumericID, Abbrev(e.Domain), e.Name),
		"State: " + State(e.State, e.Attributes),
	}

	attrs := e.Attributes
	switch e.Domain {
	case entity.DomainLight:
		if b, ok := numAttr(attrs, "brightness"); ok {
			lines = append(lines, fmt.Sprintf("Bright: %d%%", int(b/255*100)))
		}
		if rgb, ok := attrs["rgb_color"].([]any); ok && len(rgb) == 3 {
			r, _ := toNum(rgb[0])
			g, _ := toNum(rgb[1])
			b, _ := toNum(rgb[2])
			lines = append(lines, fmt.Sprintf("Color: RGB(%d,%d,%d)", int(r), int(g), int(b)))
		}
	case entity.DomainCover:
		if p, ok := numAttr(attrs, "current_position"); ok {
			lines = append(lines, fmt.Sprintf("Pos: %d%%", int(p)))
		}
	case entity.DomainClimate:
		if t, ok := numAttr(attrs, "temperature"); ok {
			lines = append(lines, fmt.Sprintf("Target: %g", t))
		}
		if t, ok := numAttr(attrs, "current_temperature"); ok {
			lines = append(lines, fmt.Sprintf("Current: %g", t))
		}
	case entity.DomainSensor:
		if u, ok := attrs["unit_of_measurement"].(string); ok && u != "" {
			lines = append(lines, "Unit: "+u)
		}
	}

	lines = append(lines, "ID: "+e.NativeID)
	return lines
}

func numAttr(attrs map[string]any, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	return toNum(attrs[key])
}

func toNum(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Page renders a page of entities with header and, when more than one
// page exists, a navigation hint. Page numbers out of range clamp.
func Page(entities []entity.Entity, page, pageSize int, title string) []string {
	if pageSize < 1 {
		pageSize = 1
	}
	totalPages := (len(entities) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	lines := []string{fmt.Sprintf("%s (pg %d/%d)", title, page, totalPages)}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(entities) {
		end = len(entities)
	}
	for _, e := range entities[start:end] {
		lines = append(lines, EntityLine(e))
	}

	if totalPages > 1 {
		var nav []string
		if page < totalPages {
			nav = append(nav, "N")
		}
		if page > 1 {
			nav = append(nav, "P")
		}
		lines = append(lines, strings.Join(nav, " ")+":")
	}
	return lines
}

// Help is the main command menu.
func Help() []string {
	return []string{
		"COMMANDS",
		"L [pg]    List devices",
		"S <id>    Show device",
		"ON <id>   Turn on",
		"OFF <id>  Turn off",
		"SET <id> <val> Set value",
		"A [pg]    List automations",
		"T <id>    Trigger automation",
		"R         Refresh device list",
		"H         Help (this menu)",
		"Q         Quit",
	}
}

// Abbreviations is the reference list of domain tags.
func Abbreviations() []string {
	return []string{
		"ABBREVIATIONS",
		"LT  Light",
		"SW  Switch",
		"SN  Sensor",
		"BL  Blind/Cover",
		"AU  Automation",
		"SC  Scene",
		"CL  Climate",
		"FN  Fan",
		"LK  Lock",
	}
}

// OK prefixes a success acknowledgement.
func OK(msg string) string { return "OK: " + msg }

// Err prefixes an error message.
func Err(msg string) string { return "ERR: " + msg }

// Info prefixes an informational message.
func Info(msg string) string { return "INFO: " + msg }

// Welcome greets a freshly authenticated caller.
func Welcome(callsign string) []string {
	return []string{
		"Welcome " + callsign + "!",
		"Type H for help",
	}
}
