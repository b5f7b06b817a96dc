package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{" warn ", WARN},
		{"warning", WARN},
		{"error", ERROR},
		{"", INFO},
		{"verbose", INFO},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func readTodayLog(t *testing.T, dir string) string {
	t.Helper()
	today := time.Now().Format("2006-01-02")
	content, err := os.ReadFile(filepath.Join(dir, filePrefix+today+".log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.level != INFO {
		t.Errorf("Expected level INFO, got %v", logger.level)
	}
	if logger.maxDays != 7 {
		t.Errorf("Expected maxDays 7, got %d", logger.maxDays)
	}
	if logger.logDir != tmpDir {
		t.Errorf("Expected logDir %s, got %s", tmpDir, logger.logDir)
	}
	if logger.Zap() == nil {
		t.Error("Expected zap logger to be set")
	}
}

func TestNewLogger_DefaultMaxDays(t *testing.T) {
	logger, err := NewLogger(Config{LogDir: t.TempDir(), Level: INFO})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.maxDays != 7 {
		t.Errorf("Expected default maxDays 7, got %d", logger.maxDays)
	}
}

func TestNewLogger_CreateLogDir(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs", "subdir")

	logger, err := NewLogger(Config{LogDir: logDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Error("Log directory was not created")
	}
}

func TestLogger_LogLevels(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: DEBUG, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("debug message %d", 1)
	logger.Info("info message %s", "test")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	logContent := readTodayLog(t, tmpDir)
	for _, want := range []string{
		`"level":"debug"`, `"msg":"debug message 1"`,
		`"level":"info"`, `"msg":"info message test"`,
		`"level":"warn"`, `"msg":"warn message"`,
		`"level":"error"`, `"msg":"error message"`,
	} {
		if !strings.Contains(logContent, want) {
			t.Errorf("Log should contain %s, got:\n%s", want, logContent)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: WARN, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	logContent := readTodayLog(t, tmpDir)
	if strings.Contains(logContent, `"level":"debug"`) {
		t.Error("DEBUG messages should be filtered out")
	}
	if strings.Contains(logContent, `"level":"info"`) {
		t.Error("INFO messages should be filtered out")
	}
	if !strings.Contains(logContent, `"level":"warn"`) {
		t.Error("WARN messages should be logged")
	}
	if !strings.Contains(logContent, `"level":"error"`) {
		t.Error("ERROR messages should be logged")
	}
}

func TestLogger_GetWriter(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewLogger(Config{LogDir: tmpDir, Level: INFO, MaxDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	writer := logger.GetWriter(INFO)
	n, err := writer.Write([]byte("test message via writer\n"))
	if err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if n != 24 {
		t.Errorf("Expected to write 24 bytes, wrote %d", n)
	}
	logger.Close()

	if !strings.Contains(readTodayLog(t, tmpDir), "test message via writer") {
		t.Error("Writer output should reach the log file")
	}
}

func TestRotatingFile_CleanOldLogs(t *testing.T) {
	tmpDir := t.TempDir()
	for _, day := range []string{"2020-01-01", "2020-01-02", "2020-01-03"} {
		path := filepath.Join(tmpDir, filePrefix+day+".log")
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	rf := &rotatingFile{logDir: tmpDir, maxDays: 1}
	rf.cleanOldLogs()

	files, _ := filepath.Glob(filepath.Join(tmpDir, filePrefix+"*.log"))
	if len(files) != 1 {
		t.Fatalf("Expected 1 log file to remain, got %d", len(files))
	}
	if !strings.HasSuffix(files[0], "2020-01-03.log") {
		t.Errorf("Expected newest file to remain, got %s", files[0])
	}
}

func TestPackageLevelFunctions_WithNilLogger(t *testing.T) {
	savedLogger := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = savedLogger }()

	// These should not panic when default logger is nil
	Debug("test")
	Info("test")
	Warn("test")
	Error("test")
	L().Info("noop")

	if err := Close(); err != nil {
		t.Errorf("Close with nil logger returned error: %v", err)
	}
}

func TestGetDefault(t *testing.T) {
	savedLogger := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = savedLogger }()

	if GetDefault() != nil {
		t.Error("GetDefault should return nil when no logger is initialized")
	}
}
