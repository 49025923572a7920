package cli

import (
	"fmt"
	"os"
)

const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
)

// disableColor is a cached check for the environment variable
var disableColor = checkNoColor()

func checkNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// Enabled reports whether ANSI colors should be emitted.
func Enabled() bool {
	return !disableColor
}

// Style wraps text in a specific color code
func Style(text string, colorCode string) string {
	if disableColor {
		return text
	}
	return fmt.Sprintf("%s%s%s", colorCode, text, Reset)
}

// BreakerState colors a circuit breaker state name for terminal output.
func BreakerState(state string) string {
	switch state {
	case "closed":
		return Style(state, Green)
	case "half-open":
		return Style(state, Yellow)
	case "open":
		return Style(state, Red)
	default:
		return state
	}
}

// Percent renders a budget usage percentage, turning yellow at the warning
// threshold and red at the limit.
func Percent(p, warn float64) string {
	text := fmt.Sprintf("%5.1f%%", p*100)
	switch {
	case p >= 1:
		return Style(text, Red)
	case p >= warn:
		return Style(text, Yellow)
	default:
		return Style(text, Green)
	}
}

func CheckMark() string {
	return Style("✔", Green)
}

func Arrow() string {
	return Style("➜", Blue)
}

func CrossMark() string {
	return Style("✘", Red)
}
