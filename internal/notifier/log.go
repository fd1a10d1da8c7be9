package notifier

import (
	"context"

	logx "cronbot/pkg/logx"
)

// LogSender writes notifications as info log lines. It is the fallback
// when no chat transport is configured.
type LogSender struct {
	Log logx.Logger
}

func (l LogSender) Send(_ context.Context, text string) error {
	l.Log.Info("notification", logx.String("text", text))
	return nil
}
