package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter, enabling color on terminals.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f) && !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// NewPlainFormatter creates a formatter that never emits color codes.
func NewPlainFormatter(w io.Writer) *OutputFormatter {
	f := NewOutputFormatter(w)
	f.useColor = false
	return f
}

// Handle prints events as they occur; use it as a Handler.
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case PlanInvoked:
		return fmt.Sprintf("%s %s Planning %s over %s",
			latency,
			f.colorize("===", color.FgYellow),
			f.colorizeCount("nodes", intData(event, "node.count")),
			f.colorizeCount("edges", intData(event, "edge.count")))

	case PlanSearchComplete:
		pruned := intData(event, "search.short-circuits")
		prunedStr := fmt.Sprintf("%d pruned", pruned)
		if f.useColor && pruned > 0 {
			prunedStr = color.YellowString(prunedStr)
		}
		return fmt.Sprintf("%s Search explored %s (%s, %s) → cost %s",
			latency,
			f.colorizeCount("states", intData(event, "memo.entries")),
			f.colorizeCount("iterations", intData(event, "search.iterations")),
			prunedStr,
			f.formatCost(floatData(event, "cost")))

	case PlanCreated:
		header := fmt.Sprintf("%s %s Plan with %s, visiting %v",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("fragments", intData(event, "fragment.count")),
			event.Data["order"])
		if table, ok := event.Data["plan"].(string); ok && table != "" {
			return header + "\n" + table
		}
		return header

	case StatsEstimate:
		return fmt.Sprintf("%s Estimate(%v) → %s",
			latency,
			event.Data["node"],
			f.formatCost(floatData(event, "estimate")))

	case ErrorPlanTopology, ErrorPlanInternal, ErrorStats:
		return fmt.Sprintf("%s %s Planning failed: %v",
			latency,
			f.colorize("✗", color.FgRed),
			event.Data["error"])

	default:
		// Generic format for unknown events
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	// Use microseconds for sub-millisecond durations
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 10:
		return color.GreenString(s)
	case ms < 100:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// formatCost prints costs compactly; saturated costs get flagged in red.
func (f *OutputFormatter) formatCost(cost float64) string {
	s := fmt.Sprintf("%.4g", cost)
	if !f.useColor {
		return s
	}
	if cost >= 1e300 {
		return color.RedString(s)
	}
	return color.CyanString(s)
}

// colorizeCount formats a count with a label, using color based on the label type.
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)

	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "nodes", "edges":
		return color.CyanString(text)
	case "fragments":
		return color.MagentaString(text)
	case "states", "iterations":
		return color.BlueString(text)
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// ConsoleHandler creates a handler that prints formatted events to stdout.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stdout).Handle
}

func intData(event Event, key string) int {
	switch v := event.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func floatData(event Event, key string) float64 {
	if v, ok := event.Data[key].(float64); ok {
		return v
	}
	return 0
}

// isTerminal checks whether f is a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
