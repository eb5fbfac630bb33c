package command

import (
	"fmt"

	"github.com/qthlink/qthlink/internal/entity"
)

// ValidationError is a well-formed but semantically invalid command.
// The session echoes it with a suggestion and continues.
type ValidationError struct {
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string { return e.Message }

// Lines renders the error for the caller.
func (e *ValidationError) Lines() []string {
	lines := []string{"ERR: " + e.Message}
	if e.Suggestion != "" {
		lines = append(lines, e.Suggestion)
	}
	return lines
}

// Validate checks a parsed command against one cache snapshot and the
// configured value ranges. It is pure: the command, snapshot, and
// ranges are never mutated, so repeated calls agree.
func Validate(cmd Command, snap *entity.Snapshot, ranges entity.Ranges) *ValidationError {
	switch cmd.Kind {
	case KindShow, KindOn, KindOff, KindSet, KindTrigger:
	default:
		return nil
	}

	e, ok := snap.ByNumericID(cmd.ID)
	if !ok {
		return &ValidationError{
			Message:    fmt.Sprintf("Device #%d not found", cmd.ID),
			Suggestion: "Use L to list devices",
		}
	}

	switch cmd.Kind {
	case KindOn:
		if !e.Domain.Switchable() {
			return &ValidationError{
				Message:    e.DomainLabel() + " cannot be turned on",
				Suggestion: "Use SET to control this device",
			}
		}
	case KindOff:
		if !e.Domain.Switchable() {
			return &ValidationError{
				Message:    e.DomainLabel() + " cannot be turned off",
				Suggestion: "Use SET to control this device",
			}
		}
	case KindSet:
		if !e.Domain.Settable() {
			return &ValidationError{
				Message:    e.DomainLabel() + " does not support SET",
				Suggestion: "Use ON/OFF for switches and lights",
			}
		}
		if r, ok := ranges[e.Domain]; ok {
			if cmd.Value < r.Min || cmd.Value > r.Max {
				return &ValidationError{
					Message: fmt.Sprintf("%s value must be %g-%g",
						e.DomainLabel(), r.Min, r.Max),
					Suggestion: fmt.Sprintf("Example: SET %d %d",
						cmd.ID, int((r.Min+r.Max)/2)),
				}
			}
		}
	case KindTrigger:
		if !e.Domain.Triggerable() {
			return &ValidationError{
				Message:    fmt.Sprintf("#%d is not an automation", cmd.ID),
				Suggestion: "Use A to list automations",
			}
		}
	}
	return nil
}
