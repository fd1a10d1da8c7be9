package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	notifyQueueSize = 256
	notifyMaxLen    = 3500
	notifyValueLen  = 600
	notifyTimeout   = 10 * time.Second
	defaultLogFile  = "./cronbot.log"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Notify  NotifyConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// NotifyConfig forwards entries at or above MinLevel to the installed Sender,
// at most RatePerSec per second.
type NotifyConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// Sender delivers a rendered log entry to a person. *notifier.Service
// satisfies it.
type Sender interface {
	Notify(ctx context.Context, text string) error
}

// Service holds the active zerolog pipeline and rebuilds it on Apply.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	logFile *os.File

	active atomic.Pointer[zerolog.Logger]

	sender    Sender
	warned    bool
	minLevel  zerolog.Level
	limiter   *rate.Limiter
	queue     chan string
	startOnce sync.Once
	stop      context.CancelFunc
	wg        sync.WaitGroup
}

// NewService builds the pipeline described by cfg and returns the Service
// with a Logger bound to it.
func NewService(cfg Config) (*Service, Logger) {
	s := &Service{queue: make(chan string, notifyQueueSize)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.active.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSender installs the notify target. Notifiers are built from the same
// config as the logger, so this usually runs after NewService.
func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// Close stops the notify worker and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f, stop := s.logFile, s.stop
	s.logFile, s.stop = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		s.wg.Wait()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply replaces the sinks and level. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = parseLevel(cfg.Notify.MinLevel, zerolog.WarnLevel)
	burst := max(1, cfg.Notify.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(burst), burst)

	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.logFile = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if cfg.Notify.Enabled {
		s.startOnce.Do(s.startNotifier)
		sinks = append(sinks, notifySink{s})
		if s.sender == nil && !s.warned {
			s.warned = true
			fmt.Fprintln(os.Stderr, "logx: notify sink enabled without a notifier")
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.active.Store(&zl)
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeLayout,
		FormatCaller: func(v any) string { s, _ := v.(string); return s },
	}
}

// startNotifier runs with s.mu held.
func (s *Service) startNotifier() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case text := <-s.queue:
				s.deliver(ctx, text)
			}
		}
	}()
}

func (s *Service) deliver(ctx context.Context, text string) {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	_ = sender.Notify(ctx, text)
}

// notifySink is the zerolog writer that feeds the notify queue. Entries are
// dropped when rate limited, below the min level, or the queue is full.
type notifySink struct{ s *Service }

func (n notifySink) Write(p []byte) (int, error) {
	return n.WriteLevel(zerolog.InfoLevel, p)
}

func (n notifySink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := n.s
	s.mu.Lock()
	ok := s.sender != nil && s.limiter != nil && level >= s.minLevel
	lim := s.limiter
	s.mu.Unlock()

	if !ok || !lim.Allow() {
		return len(p), nil
	}
	if text := notifyText(p); text != "" {
		select {
		case s.queue <- text:
		default:
		}
	}
	return len(p), nil
}

// notifyText renders a JSON entry as "[LEVEL] message" followed by one
// "- key=value" line per field, in key order.
func notifyText(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var entry map[string]any
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return clip(raw, notifyMaxLen)
	}

	var b strings.Builder
	if lvl, _ := entry[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := entry[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(entry[k]), notifyValueLen))
	}
	return clip(b.String(), notifyMaxLen)
}

func clip(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n < 10:
		return s[:n]
	default:
		return s[:n-3] + "..."
	}
}
