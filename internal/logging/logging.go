package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/config"
)

// LevelCritical extends the built-in slog levels for failures the process
// cannot continue past (missing credentials at startup).
const LevelCritical = slog.Level(12)

var levelNames = map[string]slog.Level{
	"DEBUG":    slog.LevelDebug,
	"INFO":     slog.LevelInfo,
	"WARNING":  slog.LevelWarn,
	"WARN":     slog.LevelWarn,
	"ERROR":    slog.LevelError,
	"CRITICAL": LevelCritical,
}

var mu sync.Mutex

// ParseLevel maps a LOG_LEVEL string to a slog level. Unknown names fall
// back to INFO, mirroring the permissive historical behavior.
func ParseLevel(name string) slog.Level {
	if lvl, ok := levelNames[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// Init sets up the process logger: a size/age-rotated file under cfg.LogDir,
// mirrored to stdout unless disabled, rendered as text or JSON lines. The
// returned func closes the file sink. If the log directory cannot be
// created the logger degrades to stdout only.
func Init(cfg config.Settings) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.LogLevel),
		ReplaceAttr: renameCritical,
	}
	newLogger := func(w io.Writer) *slog.Logger {
		if cfg.LogJSON {
			return slog.New(slog.NewJSONHandler(w, opts))
		}
		return slog.New(slog.NewTextHandler(w, opts))
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		logger := newLogger(os.Stdout)
		logger.Warn("cannot create log directory, logging to stdout only",
			"dir", cfg.LogDir, "error", err)
		return logger, func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogPath(),
		MaxSize:    cfg.LogMaxSizeMB,
		MaxAge:     cfg.LogMaxAgeDays,
		MaxBackups: cfg.LogBackups,
	}
	var w io.Writer = rotator
	if cfg.LogStdout {
		w = io.MultiWriter(os.Stdout, rotator)
	}
	logger := newLogger(w)
	logger.Debug("logging initialized", "path", cfg.LogPath(), "level", cfg.LogLevel)
	return logger, func() { rotator.Close() }
}

// Critical logs msg at the CRITICAL level.
func Critical(log *slog.Logger, msg string, args ...any) {
	log.Log(context.Background(), LevelCritical, msg, args...)
}

func renameCritical(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
			a.Value = slog.StringValue("CRITICAL")
		}
	}
	return a
}

// ReadTail returns the last n lines of the log file at path.
func ReadTail(path string, n int) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	// Increase buffer for potentially long lines
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan log file: %w", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.Join(lines, "\n"), nil
}

// Clear truncates the log file at path.
func Clear(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.Truncate(path, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate log file: %w", err)
	}
	return nil
}
