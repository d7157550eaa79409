package contactclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SubmissionLog records when the form last submitted successfully. It only
// drives the local pre-flight check; the server limiter is authoritative.
type SubmissionLog struct {
	mu    sync.Mutex
	path  string
	times []time.Time
}

// NewMemoryLog returns a log that is lost when the process exits.
func NewMemoryLog() *SubmissionLog {
	return &SubmissionLog{}
}

// OpenFileLog loads the log stored at path, creating an empty one if the
// file does not exist. Appends are written back to path.
func OpenFileLog(path string) (*SubmissionLog, error) {
	l := &SubmissionLog{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read submission log: %w", err)
	}
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l.times); err != nil {
		return nil, fmt.Errorf("failed to parse submission log %s: %w", path, err)
	}
	return l, nil
}

// Recent prunes entries older than window and returns how many remain.
func (l *SubmissionLog) Recent(now time.Time, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-window)
	kept := l.times[:0]
	for _, t := range l.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.times = kept
	return len(kept)
}

// Append records a successful submission at t.
func (l *SubmissionLog) Append(t time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.times = append(l.times, t.UTC())
	if l.path == "" {
		return nil
	}
	return l.persist()
}

// persist replaces the file atomically. Callers hold l.mu.
func (l *SubmissionLog) persist() error {
	data, err := json.Marshal(l.times)
	if err != nil {
		return fmt.Errorf("failed to encode submission log: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create submission log dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".submissions-*")
	if err != nil {
		return fmt.Errorf("failed to write submission log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write submission log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write submission log: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace submission log: %w", err)
	}
	return nil
}
