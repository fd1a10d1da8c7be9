// Package executor turns a due job into an outbound effect. Notify relays
// the prompt as a plain reminder; Agent asks a chat model and relays its
// answer.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cronbot/internal/task/model"
	logx "cronbot/pkg/logx"
)

// Executor matches the scheduler's executor contract.
type Executor interface {
	Execute(ctx context.Context, job model.CronJob) error
}

// Notifier delivers text and reports the delivery error.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, job model.CronJob) error

func (f Func) Execute(ctx context.Context, job model.CronJob) error { return f(ctx, job) }

// WithTimeout bounds every execution of next by d. d <= 0 returns next.
func WithTimeout(next Executor, d time.Duration) Executor {
	if d <= 0 {
		return next
	}
	return Func(func(ctx context.Context, job model.CronJob) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		err := next.Execute(ctx, job)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s: %w", d, err)
		}
		return err
	})
}

// Notify sends the job's prompt verbatim.
type Notify struct {
	Notifier Notifier
	Log      logx.Logger
}

func (n Notify) Execute(ctx context.Context, job model.CronJob) error {
	text := strings.TrimSpace(job.Prompt)
	if text == "" {
		text = job.Name
	}
	if err := n.Notifier.Send(ctx, text); err != nil {
		return fmt.Errorf("deliver reminder: %w", err)
	}
	n.Log.Debug("reminder delivered", logx.String("id", job.ID))
	return nil
}
