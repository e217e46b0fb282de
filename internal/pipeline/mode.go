package pipeline

import "fmt"

// Mode selects how strongly a generation is bound to retrieved research.
type Mode int

const (
	// ModePure answers strictly from retrieved passages and declines
	// when they do not cover the question.
	ModePure Mode = iota

	// ModeCreative uses retrieved passages as inspiration and may
	// extrapolate beyond them.
	ModeCreative

	// ModeHybrid grounds what it can and marks the rest as inferred.
	ModeHybrid
)

// ParseMode converts a mode name from config or a request into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "pure":
		return ModePure, nil
	case "creative":
		return ModeCreative, nil
	case "hybrid":
		return ModeHybrid, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModePure:
		return "pure"
	case ModeCreative:
		return "creative"
	case ModeHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Temperature returns the sampling temperature for the mode. Pure mode
// is deterministic, creative mode samples freely, hybrid sits between.
func (m Mode) Temperature() float32 {
	switch m {
	case ModeCreative:
		return 0.7
	case ModeHybrid:
		return 0.3
	default:
		return 0
	}
}
