package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines log level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string ("debug", "info", ...) to a LogLevel.
// Unknown values fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// filePrefix is the name prefix of rotated log files.
const filePrefix = "shopsearch-"

// Logger wraps a zap logger that writes JSON lines into daily-rotated files
type Logger struct {
	level      LogLevel
	logDir     string
	maxDays    int
	consoleOut bool // Whether to output to console
	file       *rotatingFile
	zap        *zap.Logger
	sugar      *zap.SugaredLogger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Config logger configuration
type Config struct {
	LogDir     string   // Log directory
	Level      LogLevel // Log level
	MaxDays    int      // Max days to keep logs
	ConsoleOut bool     // Output to console as well
}

// Init initializes the default logger
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		defaultLogger, err = NewLogger(cfg)
	})
	return err
}

// NewLogger creates a new logger instance
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 7
	}

	// Ensure log directory exists
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rf := &rotatingFile{logDir: cfg.LogDir, maxDays: cfg.MaxDays}
	if err := rf.rotateIfNeeded(); err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zap.NewAtomicLevelAt(cfg.Level.zapLevel())
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), rf, level),
	}
	if cfg.ConsoleOut {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level))
	}

	z := zap.New(zapcore.NewTee(cores...))
	return &Logger{
		level:      cfg.Level,
		logDir:     cfg.LogDir,
		maxDays:    cfg.MaxDays,
		consoleOut: cfg.ConsoleOut,
		file:       rf,
		zap:        z,
		sugar:      z.Sugar(),
	}, nil
}

// rotatingFile is a zapcore.WriteSyncer that switches files at midnight
type rotatingFile struct {
	mu          sync.Mutex
	logDir      string
	maxDays     int
	currentFile *os.File
	currentDate string
}

// rotateIfNeeded checks if log rotation is needed and performs it.
// Callers must hold mu, except during construction.
func (f *rotatingFile) rotateIfNeeded() error {
	today := time.Now().Format("2006-01-02")
	if f.currentDate == today && f.currentFile != nil {
		return nil
	}

	if f.currentFile != nil {
		f.currentFile.Close()
	}

	filename := filepath.Join(f.logDir, fmt.Sprintf("%s%s.log", filePrefix, today))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	f.currentFile = file
	f.currentDate = today

	go f.cleanOldLogs()

	return nil
}

// cleanOldLogs removes log files older than maxDays
func (f *rotatingFile) cleanOldLogs() {
	files, err := filepath.Glob(filepath.Join(f.logDir, filePrefix+"*.log"))
	if err != nil {
		return
	}

	if len(files) <= f.maxDays {
		return
	}

	// File names sort by date
	sort.Strings(files)

	for i := 0; i < len(files)-f.maxDays; i++ {
		os.Remove(files[i])
	}
}

func (f *rotatingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.rotateIfNeeded(); err != nil {
		fmt.Fprintf(os.Stderr, "Logger rotation error: %v\n", err)
		return 0, err
	}
	return f.currentFile.Write(p)
}

func (f *rotatingFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentFile != nil {
		return f.currentFile.Sync()
	}
	return nil
}

func (f *rotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentFile == nil {
		return nil
	}
	err := f.currentFile.Close()
	f.currentFile = nil
	return err
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Zap returns the underlying structured logger
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Close flushes and closes the logger
func (l *Logger) Close() error {
	_ = l.zap.Sync()
	return l.file.Close()
}

// GetWriter returns an io.Writer for the logger at the specified level
func (l *Logger) GetWriter(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

// logWriter implements io.Writer interface
type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		switch w.level {
		case DEBUG:
			w.logger.sugar.Debug(msg)
		case WARN:
			w.logger.sugar.Warn(msg)
		case ERROR:
			w.logger.sugar.Error(msg)
		default:
			w.logger.sugar.Info(msg)
		}
	}
	return len(p), nil
}

// Package-level functions using the default logger

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug(format, args...)
	}
}

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info(format, args...)
	}
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn(format, args...)
	}
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error(format, args...)
	}
}

// L returns the default structured logger, or a no-op logger before Init
func L() *zap.Logger {
	if defaultLogger != nil {
		return defaultLogger.zap
	}
	return zap.NewNop()
}

// Close closes the default logger
func Close() error {
	if defaultLogger != nil {
		return defaultLogger.Close()
	}
	return nil
}

// GetDefault returns the default logger
func GetDefault() *Logger {
	return defaultLogger
}
