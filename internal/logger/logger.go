// Package logger configures the process-wide slog logger with the
// compact [time] [LEVEL] message k=v format used across the tool.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	levelMu     sync.RWMutex
	globalLevel = slog.LevelInfo
)

// SetLevel sets the global log level from its string form.
func SetLevel(levelStr string) {
	level := ParseLevel(levelStr)
	levelMu.Lock()
	defer levelMu.Unlock()
	globalLevel = level
}

// ParseLevel parses a string to an slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// jsonParsingWriter reformats JSON log lines emitted by sipgo's
// embedded zerolog logger into our plain format so the console output
// stays uniform.
type jsonParsingWriter struct {
	base io.Writer
}

func (w *jsonParsingWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if strings.HasPrefix(line, "{") {
		var entry map[string]interface{}
		if err := json.Unmarshal(p, &entry); err == nil {
			level := "info"
			if lv, ok := entry["level"]; ok {
				level = fmt.Sprint(lv)
			}
			message := ""
			if msg, ok := entry["message"]; ok {
				message = fmt.Sprint(msg)
			}
			timestamp := time.Now().Format("15:04:05")
			if t, ok := entry["time"]; ok {
				if ts, err := time.Parse(time.RFC3339, fmt.Sprint(t)); err == nil {
					timestamp = ts.Format("15:04:05")
				}
			}
			var attrs []string
			for k, v := range entry {
				if k != "level" && k != "message" && k != "time" && k != "caller" {
					attrs = append(attrs, fmt.Sprintf("%s=%v", k, v))
				}
			}
			formatted := fmt.Sprintf("[%s] [%s] %s", timestamp, strings.ToUpper(level), message)
			if len(attrs) > 0 {
				formatted += " " + strings.Join(attrs, " ")
			}
			return w.base.Write([]byte(formatted + "\n"))
		}
	}
	return w.base.Write(p)
}

// handler writes formatted records to one or more outputs with global
// level filtering.
type handler struct {
	mu   sync.Mutex
	outs []io.Writer
}

func (h *handler) Handle(ctx context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	levelMu.RLock()
	if record.Level < globalLevel {
		levelMu.RUnlock()
		return nil
	}
	levelMu.RUnlock()

	message := record.Message
	var attrs []string
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a.Key+"="+a.Value.String())
		return true
	})
	if len(attrs) > 0 {
		message = message + " " + strings.Join(attrs, " ")
	}

	line := "[" + record.Time.Format("15:04:05") + "] [" + strings.ToUpper(record.Level.String()) + "] " + message + "\n"
	for _, out := range h.outs {
		if out != nil {
			_, _ = out.Write([]byte(line))
		}
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *handler) WithGroup(name string) slog.Handler { return h }

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return level >= globalLevel
}

// InitLogger installs the default logger writing to the given outputs.
func InitLogger(outputs ...io.Writer) {
	wrapped := make([]io.Writer, len(outputs))
	for i, out := range outputs {
		wrapped[i] = &jsonParsingWriter{base: out}
	}
	slog.SetDefault(slog.New(&handler{outs: wrapped}))
}
