// Package notify announces saved interviews to chat channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

// Notifier posts a summary of a saved interview.
type Notifier interface {
	Name() string
	InterviewSaved(ctx context.Context, rec *model.InterviewRecord) error
}

// Fanout sends to every notifier concurrently. A failing notifier is logged
// and does not stop the others.
type Fanout struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewFanout creates a Fanout over ns.
func NewFanout(logger *slog.Logger, ns ...Notifier) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{notifiers: ns, logger: logger.With("component", "notify")}
}

// Len returns the number of configured notifiers.
func (f *Fanout) Len() int { return len(f.notifiers) }

// InterviewSaved notifies every channel and returns the number that failed.
func (f *Fanout) InterviewSaved(ctx context.Context, rec *model.InterviewRecord) int {
	var g errgroup.Group
	failed := make([]bool, len(f.notifiers))
	for i, n := range f.notifiers {
		g.Go(func() error {
			if err := n.InterviewSaved(ctx, rec); err != nil {
				failed[i] = true
				f.logger.Warn("notification failed", "notifier", n.Name(), "interview_id", rec.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, bad := range failed {
		if bad {
			n++
		}
	}
	return n
}

// Summary renders a plain-text summary of a saved interview.
func Summary(rec *model.InterviewRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interview saved: %s for %s (%s)\n", rec.CandidateName, rec.JobTitle, rec.InterviewType)
	fmt.Fprintf(&b, "Final score: %.2f/10 over %d questions\n", rec.FinalScore, len(rec.Questions))
	if !rec.StartTime.IsZero() && !rec.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", rec.CompletedAt.Sub(rec.StartTime).Round(time.Second))
	}
	for _, q := range rec.Questions {
		fmt.Fprintf(&b, "Q%d %.1f  %s\n", q.Number, q.Score, truncate(q.Question, 80))
	}
	fmt.Fprintf(&b, "ID: %s", rec.ID)
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
