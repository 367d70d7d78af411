package obs

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level controls which log lines are emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	loggerOnce sync.Once
	logger     *log.Logger

	levelMu  sync.RWMutex
	minLevel = LevelInfo
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// SetLevel configures the minimum emitted level from its string form
// (debug, info, warn, error). Unknown values keep the current level.
func SetLevel(level string) {
	levelMu.Lock()
	defer levelMu.Unlock()
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		minLevel = LevelDebug
	case "info":
		minLevel = LevelInfo
	case "warn", "warning":
		minLevel = LevelWarn
	case "error":
		minLevel = LevelError
	}
}

func enabled(l Level) bool {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return l >= minLevel
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Log emits a structured JSON log line with common fields.
func Log(level Level, msg string, fields map[string]any) {
	if !enabled(level) {
		return
	}
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg

	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Debug logs at debug level.
func Debug(msg string, fields map[string]any) { Log(LevelDebug, msg, fields) }

// Info logs at info level.
func Info(msg string, fields map[string]any) { Log(LevelInfo, msg, fields) }

// Warn logs at warn level.
func Warn(msg string, fields map[string]any) { Log(LevelWarn, msg, fields) }

// Error logs at error level.
func Error(msg string, fields map[string]any) { Log(LevelError, msg, fields) }
