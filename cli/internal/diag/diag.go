// Package diag provides the append-only diagnostic log and the user-facing
// notification sink. The log records command lines, output tails, and gate
// decisions under the per-repo state dir; notifications are single stderr
// lines. All methods no-op on a nil receiver or nil writer so callers never
// guard logging with nil checks.
package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const logFilename = "log"

// Logger appends timestamped lines to a writer, usually the state-dir log
// file. Safe for concurrent use.
type Logger struct {
	mu sync.Mutex
	w  io.Writer
	f  *os.File
	// echo, when non-nil, receives a copy of every line (used by --verbose).
	echo io.Writer
}

// New returns a Logger writing to w. If w is nil, all methods no-op.
func New(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Open opens (creating if needed) stateDir/log for appending and returns a
// Logger over it. The caller should Close it.
func Open(stateDir string) (*Logger, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("diag: create state dir: %w", err)
	}
	path := filepath.Join(stateDir, logFilename)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("diag: open %s: %w", path, err)
	}
	return &Logger{w: f, f: f}, nil
}

// Echo mirrors every subsequent line to w in addition to the log file.
func (l *Logger) Echo(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.echo = w
	l.mu.Unlock()
}

// Enabled reports whether the logger has a destination.
func (l *Logger) Enabled() bool {
	return l != nil && l.w != nil
}

// Printf writes one timestamped line. A trailing newline is added when the
// format does not end with one.
func (l *Logger) Printf(format string, args ...interface{}) {
	if !l.Enabled() {
		return
	}
	line := fmt.Sprintf(format, args...)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line += "\n"
	}
	stamped := time.Now().Format(time.RFC3339) + " " + line
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.w, stamped)
	if l.echo != nil {
		fmt.Fprint(l.echo, "[codexmsg] "+line)
	}
}

// Close closes the underlying log file if this Logger owns one.
func (l *Logger) Close() {
	if l == nil || l.f == nil {
		return
	}
	_ = l.f.Close()
}

// Notifier writes user-facing transient messages. Every failure surfaces as
// exactly one such line; the technical detail goes to the Logger instead.
type Notifier struct {
	Out io.Writer // defaults to os.Stderr when nil
	Log *Logger   // optional; every notification is also logged
}

func (n *Notifier) out() io.Writer {
	if n == nil || n.Out == nil {
		return os.Stderr
	}
	return n.Out
}

// Infof reports a neutral message.
func (n *Notifier) Infof(format string, args ...interface{}) {
	n.write("", format, args...)
}

// Warnf reports a recoverable condition (e.g. a skipped push).
func (n *Notifier) Warnf(format string, args ...interface{}) {
	n.write("warning: ", format, args...)
}

// Errorf reports a failure that aborted the current operation.
func (n *Notifier) Errorf(format string, args ...interface{}) {
	n.write("error: ", format, args...)
}

func (n *Notifier) write(prefix, format string, args ...interface{}) {
	if n == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(n.out(), prefix+msg)
	if n.Log != nil {
		n.Log.Printf("notify: %s%s", prefix, msg)
	}
}
