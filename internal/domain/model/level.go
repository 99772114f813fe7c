package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLevel is returned when a level name cannot be parsed.
var ErrUnknownLevel = errors.New("unknown alert level")

// Level is a discrete alert level. Levels are strictly ordered:
// Green < Yellow < Orange < Red.
type Level int

// Alert levels in increasing order of severity.
const (
	Green Level = iota
	Yellow
	Orange
	Red
)

var levelNames = [...]string{"green", "yellow", "orange", "red"}

// Levels returns all levels from least to most severe.
func Levels() []Level {
	return []Level{Green, Yellow, Orange, Red}
}

// String returns the lower-case level name.
func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	return l >= Green && l <= Red
}

// MoreSevereThan reports whether l is strictly more severe than other.
func (l Level) MoreSevereThan(other Level) bool {
	return l > other
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return Green, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Transition is an ordered (from, to) level pair. It keys the hysteresis
// tables that decide how many consecutive ticks a change needs.
type Transition struct {
	From Level
	To   Level
}

// transitionSep separates the two level names in the textual form.
const transitionSep = "->"

// String renders the transition as "from->to".
func (t Transition) String() string {
	return t.From.String() + transitionSep + t.To.String()
}

// Escalates reports whether the transition moves to a more severe level.
func (t Transition) Escalates() bool { return t.To > t.From }

// Steps returns the number of levels crossed, ignoring direction.
func (t Transition) Steps() int {
	d := int(t.To) - int(t.From)
	if d < 0 {
		return -d
	}
	return d
}

// ParseTransition parses the "from->to" form used in configuration files.
func ParseTransition(s string) (Transition, error) {
	from, to, ok := strings.Cut(s, transitionSep)
	if !ok {
		return Transition{}, fmt.Errorf("invalid transition %q: expected from->to", s)
	}
	f, err := ParseLevel(from)
	if err != nil {
		return Transition{}, fmt.Errorf("invalid transition %q: %w", s, err)
	}
	t, err := ParseLevel(to)
	if err != nil {
		return Transition{}, fmt.Errorf("invalid transition %q: %w", s, err)
	}
	return Transition{From: f, To: t}, nil
}

// AlertState is the mutable per-zone state of an alert engine.
type AlertState struct {
	Level Level `json:"level"`
	Up    int   `json:"up"`
	Down  int   `json:"down"`
}
