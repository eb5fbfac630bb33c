// Package entity models the remote automation entities exposed over the
// line protocol: a closed domain enumeration, capability and value-range
// policy, inclusion filters, and the TTL-bounded cache that maps verbose
// native ids to the dense numeric ids used in commands.
package entity

import (
	"context"
	"strings"
)

// Domain is the category of an entity. The set is closed with an
// "other" fallback for forward compatibility.
type Domain string

const (
	DomainLight        Domain = "light"
	DomainSwitch       Domain = "switch"
	DomainSensor       Domain = "sensor"
	DomainBinarySensor Domain = "binary_sensor"
	DomainCover        Domain = "cover"
	DomainClimate      Domain = "climate"
	DomainFan          Domain = "fan"
	DomainLock         Domain = "lock"
	DomainAutomation   Domain = "automation"
	DomainScene        Domain = "scene"
	DomainScript       Domain = "script"
	DomainInputBoolean Domain = "input_boolean"
	DomainInputNumber  Domain = "input_number"
	DomainNumber       Domain = "number"
	DomainOther        Domain = "other"
)

var knownDomains = map[Domain]bool{
	DomainLight: true, DomainSwitch: true, DomainSensor: true,
	DomainBinarySensor: true, DomainCover: true, DomainClimate: true,
	DomainFan: true, DomainLock: true, DomainAutomation: true,
	DomainScene: true, DomainScript: true, DomainInputBoolean: true,
	DomainInputNumber: true, DomainNumber: true,
}

// ParseDomain classifies the domain prefix of a native id
// (e.g. "light" from "light.kitchen").
func ParseDomain(nativeID string) Domain {
	prefix, _, ok := strings.Cut(nativeID, ".")
	if !ok {
		return DomainOther
	}
	d := Domain(prefix)
	if knownDomains[d] {
		return d
	}
	return DomainOther
}

// Entity is one remote automation entity as served to the command layer.
// NumericID is assigned by the cache (dense, 1-based, stable within one
// cache generation); it is zero on records coming straight from a provider.
type Entity struct {
	NumericID  int
	NativeID   string
	Domain     Domain
	Name       string
	State      string
	Attributes map[string]any
}

// DomainLabel returns a human-readable domain name for messages,
// preserving the raw prefix for unknown domains.
func (e Entity) DomainLabel() string {
	prefix, _, ok := strings.Cut(e.NativeID, ".")
	if !ok || prefix == "" {
		return "Device"
	}
	label := strings.ReplaceAll(prefix, "_", " ")
	return strings.ToUpper(label[:1]) + label[1:]
}

// Switchable reports whether the domain supports turn-on/turn-off.
func (d Domain) Switchable() bool {
	switch d {
	case DomainLight, DomainSwitch, DomainFan, DomainAutomation,
		DomainScene, DomainScript, DomainInputBoolean:
		return true
	}
	return false
}

// Settable reports whether the domain supports a numeric SET value.
func (d Domain) Settable() bool {
	switch d {
	case DomainLight, DomainCover, DomainClimate, DomainFan,
		DomainInputNumber, DomainNumber:
		return true
	}
	return false
}

// Triggerable reports whether the domain can be triggered.
func (d Domain) Triggerable() bool {
	return d == DomainAutomation
}

// Range bounds the legal SET value for a domain.
type Range struct {
	Min float64
	Max float64
}

// Ranges maps each settable domain to its legal value range.
type Ranges map[Domain]Range

// DefaultRanges returns the built-in per-domain value ranges.
func DefaultRanges() Ranges {
	return Ranges{
		DomainLight:       {Min: 0, Max: 255},   // brightness
		DomainCover:       {Min: 0, Max: 100},   // position
		DomainFan:         {Min: 0, Max: 100},   // percentage
		DomainClimate:     {Min: -50, Max: 120}, // temperature
		DomainInputNumber: {Min: -1e6, Max: 1e6},
		DomainNumber:      {Min: -1e6, Max: 1e6},
	}
}

// Merge overlays configured overrides (keyed by domain name) onto r.
func (r Ranges) Merge(overrides map[string]Range) Ranges {
	for name, vr := range overrides {
		r[Domain(name)] = vr
	}
	return r
}

// Provider is the remote automation backend as consumed by the cache
// and the command dispatcher. Implementations must be safe for
// concurrent use.
type Provider interface {
	// ListEntities fetches the full entity set in one bulk query.
	// NumericID on returned entities is unset.
	ListEntities(ctx context.Context) ([]Entity, error)
	TurnOn(ctx context.Context, nativeID string) error
	TurnOff(ctx context.Context, nativeID string) error
	SetValue(ctx context.Context, nativeID string, value float64) error
	TriggerAutomation(ctx context.Context, nativeID string) error
}
