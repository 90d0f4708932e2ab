// Package transcript keeps the running log of every recognized utterance.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Log is an append-only transcript file named after the session start time.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// FileName returns the transcript file name for a session started at t,
// e.g. "20260401_09_05.txt".
func FileName(t time.Time) string {
	return t.Format("20060102_15_04") + ".txt"
}

// Open creates (or truncates) the transcript for a session started at
// started inside dir, writing the header line.
func Open(dir string, started time.Time) (*Log, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("transcript: creating dir: %w", err)
	}
	path := filepath.Join(dir, FileName(started))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("transcript: opening %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "started: %s\n", started.Format("2006-01-02 15:04:05")); err != nil {
		f.Close()
		return nil, fmt.Errorf("transcript: writing header: %w", err)
	}
	return &Log{f: f, path: path}, nil
}

// Path returns the transcript file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one "[HH:MM:SS] text" line.
func (l *Log) Append(text string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return fmt.Errorf("transcript: append to closed log")
	}
	if _, err := fmt.Fprintf(l.f, "[%s] %s\n", at.Format("15:04:05"), text); err != nil {
		return fmt.Errorf("transcript: append: %w", err)
	}
	return nil
}

// Close flushes and closes the file. It is safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
