package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type SessionID string
type MessageID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrUnknownMode is returned when a mode string is outside the closed set.
var ErrUnknownMode = errors.New("unknown advisor mode")

type Mode string

const (
	ModeSearch   Mode = "search"   // Live web retrieval, fast model
	ModeThinking Mode = "thinking" // Extended reasoning, no tools
	ModeMaps     Mode = "maps"     // Geography-grounded retrieval
)

// DefaultMode is the mode a new session starts in.
const DefaultMode = ModeSearch

// Modes returns every mode in display order.
func Modes() []Mode {
	return []Mode{ModeSearch, ModeThinking, ModeMaps}
}

// ParseMode accepts a mode name, case-insensitive. An empty string yields
// DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultMode, nil
	case ModeSearch:
		return ModeSearch, nil
	case ModeThinking:
		return ModeThinking, nil
	case ModeMaps:
		return ModeMaps, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// PendingLabel is shown while a request in this mode is in flight.
func (m Mode) PendingLabel() string {
	if m == ModeThinking {
		return "Deep Reasoning Active..."
	}
	return "Polling Global Data..."
}

// Placeholder is the input hint for this mode.
func (m Mode) Placeholder() string {
	switch m {
	case ModeThinking:
		return "Complex analysis..."
	case ModeMaps:
		return "Find a location..."
	default:
		return "Search market data..."
	}
}

type Timestamp = time.Time
