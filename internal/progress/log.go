// Package progress keeps a local record of quiz rounds. Entries are
// appended as JSON lines to a file so a session's history survives restarts
// and can be inspected with standard tools.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/tutorvoz/internal/activity"
)

// Entry is one finished round.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	ChildID    int64     `json:"child_id,omitempty"`
	Activity   string    `json:"activity"`
	Target     string    `json:"target"`
	Result     string    `json:"result"`
	Transcript string    `json:"transcript,omitempty"`
	Points     int       `json:"points"`
	Repeats    int       `json:"repeats,omitempty"`
}

// FromOutcome builds the entry of a round played by childID.
func FromOutcome(childID int64, out activity.Outcome) Entry {
	return Entry{
		ChildID:    childID,
		Activity:   string(out.Kind),
		Target:     out.Target,
		Result:     out.Result.String(),
		Transcript: out.Transcript,
		Points:     out.Points,
		Repeats:    out.Repeats,
	}
}

// FileLog appends entries to a JSON lines file. Safe for concurrent use.
type FileLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileLog creates a FileLog writing to path. The file is created on the
// first Append.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path, now: time.Now}
}

// Append writes e as one line. A zero Timestamp is set to the current UTC
// time.
func (l *FileLog) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("progress: marshal: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("progress: open file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("progress: write: %w", err)
	}
	return nil
}

// ReadAll returns every entry in the file, oldest first. A missing file
// yields no entries.
func (l *FileLog) ReadAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progress: open file: %w", err)
	}
	defer f.Close()

	var out []Entry
	dec := json.NewDecoder(f)
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return out, fmt.Errorf("progress: decode entry %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, nil
}
