// Package command implements the line-command pipeline: parse a raw
// input line into a tagged Command, validate it against a pinned cache
// snapshot, and dispatch it to the entity provider.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the closed set of command verbs. Dispatch matches it
// exhaustively, so adding a verb is a compile-checked change.
type Kind int

const (
	KindUnknown Kind = iota
	KindList
	KindShow
	KindOn
	KindOff
	KindSet
	KindAutomations
	KindTrigger
	KindHelp
	KindRefresh
	KindQuit
)

// String names the verb for logs and audit records.
func (k Kind) String() string {
	switch k {
	case KindList:
		return "LIST"
	case KindShow:
		return "SHOW"
	case KindOn:
		return "ON"
	case KindOff:
		return "OFF"
	case KindSet:
		return "SET"
	case KindAutomations:
		return "AUTOMATIONS"
	case KindTrigger:
		return "TRIGGER"
	case KindHelp:
		return "HELP"
	case KindRefresh:
		return "REFRESH"
	case KindQuit:
		return "QUIT"
	}
	return "UNKNOWN"
}

// Write reports whether the command mutates remote state and therefore
// requires a fresh authentication challenge before execution.
func (k Kind) Write() bool {
	switch k {
	case KindOn, KindOff, KindSet, KindTrigger:
		return true
	}
	return false
}

// Command is one parsed input line.
type Command struct {
	Kind  Kind
	Raw   string
	Page  int // 0 when not given
	ID    int
	Value float64
}

// ParseError is a malformed command line. The session echoes it and
// continues.
type ParseError struct {
	Message string
	Usage   string
}

func (e *ParseError) Error() string { return e.Message }

// Lines renders the error for the caller.
func (e *ParseError) Lines() []string {
	lines := []string{"ERR: " + e.Message}
	if e.Usage != "" {
		lines = append(lines, e.Usage)
	}
	return lines
}

var verbs = map[string]Kind{
	"L": KindList, "LIST": KindList,
	"S": KindShow, "SHOW": KindShow,
	"ON":  KindOn,
	"OFF": KindOff,
	"SET": KindSet,
	"A": KindAutomations, "AUTO": KindAutomations, "AUTOMATIONS": KindAutomations,
	"T": KindTrigger, "TRIGGER": KindTrigger,
	"H": KindHelp, "HELP": KindHelp, "?": KindHelp,
	"R": KindRefresh, "REFRESH": KindRefresh,
	"Q": KindQuit, "QUIT": KindQuit, "EXIT": KindQuit, "BYE": KindQuit,
}

// Parse turns a raw line into a Command. Verbs are case-insensitive.
func Parse(line string) (Command, *ParseError) {
	raw := line
	tokens := strings.Fields(strings.ToUpper(strings.TrimSpace(line)))
	if len(tokens) == 0 {
		return Command{Raw: raw}, &ParseError{Message: "Empty command"}
	}

	kind, ok := verbs[tokens[0]]
	if !ok {
		return Command{Raw: raw}, &ParseError{Message: "Unknown command: " + tokens[0]}
	}

	cmd := Command{Kind: kind, Raw: raw}
	switch kind {
	case KindList, KindAutomations:
		if len(tokens) > 1 {
			page, err := parsePositiveInt(tokens[1], "page number")
			if err != nil {
				return cmd, err
			}
			cmd.Page = page
		}
	case KindShow, KindOn, KindOff, KindTrigger:
		noun := "device ID"
		usage := fmt.Sprintf("Usage: %s <id>", tokens[0])
		if kind == KindTrigger {
			noun = "automation ID"
			usage = "Usage: T <id>"
		}
		if len(tokens) < 2 {
			return cmd, &ParseError{
				Message: kind.String() + " requires " + noun,
				Usage:   usage,
			}
		}
		id, err := parsePositiveInt(tokens[1], noun)
		if err != nil {
			return cmd, err
		}
		cmd.ID = id
	case KindSet:
		if len(tokens) < 3 {
			return cmd, &ParseError{
				Message: "SET requires device ID and value",
				Usage:   "Usage: SET <id> <value>",
			}
		}
		id, perr := parsePositiveInt(tokens[1], "device ID")
		if perr != nil {
			return cmd, perr
		}
		cmd.ID = id
		value, err := strconv.ParseFloat(tokens[2], 64)
		if err != nil {
			return cmd, &ParseError{
				Message: "Invalid value: " + tokens[2],
				Usage:   "Usage: SET <id> <value>",
			}
		}
		cmd.Value = value
	}
	return cmd, nil
}

func parsePositiveInt(token, noun string) (int, *ParseError) {
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, &ParseError{Message: fmt.Sprintf("Invalid %s: %s", noun, token)}
	}
	if n < 1 {
		upper := strings.ToUpper(noun[:1]) + noun[1:]
		return 0, &ParseError{Message: upper + " must be >= 1"}
	}
	return n, nil
}
