// Package logger provides component-tagged structured logging on top of zap.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

var (
	mu       sync.RWMutex
	level             = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	current  LogLevel = INFO
	console  zapcore.Core
	fileCore zapcore.Core
	logFile  *os.File
	base     *zap.Logger
)

func init() {
	console = newConsoleCore(zapcore.Lock(os.Stderr))
	rebuild()
}

func newConsoleCore(ws zapcore.WriteSyncer) zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)
}

func rebuild() {
	cores := []zapcore.Core{console}
	if fileCore != nil {
		cores = append(cores, fileCore)
	}
	base = zap.New(zapcore.NewTee(cores...))
}

// SetLevel changes the minimum level for every sink.
func SetLevel(l LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	current = l
	level.SetLevel(l.zapLevel())
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetOutput redirects console output, mainly for tests.
func SetOutput(ws zapcore.WriteSyncer) {
	mu.Lock()
	defer mu.Unlock()
	console = newConsoleCore(ws)
	rebuild()
}

// EnableFileLogging mirrors every entry as JSON lines into path.
func EnableFileLogging(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	fileCore = zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(f), level)
	rebuild()
	return nil
}

func DisableFileLogging() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	fileCore = nil
	rebuild()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func logMessage(l LogLevel, component, message string, fields map[string]any) {
	mu.RLock()
	lg := base
	mu.RUnlock()

	if !level.Enabled(l.zapLevel()) {
		return
	}

	zfields := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		zfields = append(zfields, zap.String("component", component))
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		zfields = append(zfields, zap.Any(k, fields[k]))
	}

	switch l {
	case DEBUG:
		lg.Debug(message, zfields...)
	case WARN:
		lg.Warn(message, zfields...)
	case ERROR:
		lg.Error(message, zfields...)
	case FATAL:
		lg.Fatal(message, zfields...)
	default:
		lg.Info(message, zfields...)
	}
}

func Debug(message string) { logMessage(DEBUG, "", message, nil) }
func Info(message string)  { logMessage(INFO, "", message, nil) }
func Warn(message string)  { logMessage(WARN, "", message, nil) }
func Error(message string) { logMessage(ERROR, "", message, nil) }

func DebugC(component, message string) { logMessage(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logMessage(INFO, component, message, nil) }
func WarnC(component, message string)  { logMessage(WARN, component, message, nil) }
func ErrorC(component, message string) { logMessage(ERROR, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logMessage(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	logMessage(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	logMessage(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	logMessage(ERROR, component, message, fields)
}

// FatalCF logs and exits the process.
func FatalCF(component, message string, fields map[string]any) {
	logMessage(FATAL, component, message, fields)
}
