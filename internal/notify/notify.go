// Package notify builds run summaries and hands them to chat sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/orchestrator"
	"github.com/nulzo/content-orchestrator/internal/publish"
)

type Type string

const (
	TypeNewContent    Type = "new_content"
	TypeError         Type = "error"
	TypeWeeklySummary Type = "weekly_summary"
	TypeInfo          Type = "info"
)

// MaxReasons caps how many failure reasons a summary carries.
const MaxReasons = 3

// Action is a link button attached to a notification.
type Action struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type Notification struct {
	Type    Type           `json:"type"`
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Actions []Action       `json:"actions,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Summarize reports a generation batch with aggregate counts and the first
// few failure reasons.
func Summarize(report *orchestrator.BatchReport) Notification {
	n := Notification{Type: TypeWeeklySummary, Title: "Generation run finished"}
	if report.Failed > 0 {
		n.Type = TypeError
		n.Title = "Generation run finished with errors"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d\nSucceeded: %d\nFailed: %d\n", report.Total, report.Succeeded, report.Failed)
	if report.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped: %d\n", report.Skipped)
	}
	fmt.Fprintf(&b, "Cost: $%.4f\n", report.TotalCost)
	if d := report.FinishedAt.Sub(report.StartedAt); d > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", d.Round(time.Second))
	}
	writeReasons(&b, report.Reasons())

	n.Body = strings.TrimRight(b.String(), "\n")
	n.Data = map[string]any{
		"total":      report.Total,
		"succeeded":  report.Succeeded,
		"failed":     report.Failed,
		"skipped":    report.Skipped,
		"total_cost": report.TotalCost,
	}
	return n
}

// SummarizePublish reports a publish run.
func SummarizePublish(report *publish.Report, cmsURL string) Notification {
	n := Notification{Type: TypeNewContent, Title: "Content published"}
	switch {
	case report.Failed > 0:
		n.Type = TypeError
		n.Title = "Publishing finished with errors"
	case report.Created+report.Updated == 0:
		n.Type = TypeInfo
		n.Title = "Nothing new to publish"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Created: %d\nUpdated: %d\nSkipped: %d\nFailed: %d\n",
		report.Created, report.Updated, report.Skipped, report.Failed)
	writeReasons(&b, report.Reasons())
	n.Body = strings.TrimRight(b.String(), "\n")

	if cmsURL != "" && report.Created+report.Updated > 0 {
		n.Actions = []Action{{Text: "Open CMS", URL: strings.TrimRight(cmsURL, "/") + "/admin"}}
	}
	n.Data = map[string]any{
		"created": report.Created,
		"updated": report.Updated,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}
	return n
}

func writeReasons(b *strings.Builder, reasons []string) {
	if len(reasons) == 0 {
		return
	}
	b.WriteString("\nErrors:\n")
	for i, r := range reasons {
		if i == MaxReasons {
			fmt.Fprintf(b, "...and %d more\n", len(reasons)-MaxReasons)
			break
		}
		b.WriteString("- " + firstLine(r) + "\n")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const limit = 200
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

// LogNotifier writes notifications to the log. It is the sink used when no
// chat credentials are configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("type", string(n.Type)),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	}
	if n.Type == TypeError {
		l.logger.Warn("Notification", fields...)
		return nil
	}
	l.logger.Info("Notification", fields...)
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
