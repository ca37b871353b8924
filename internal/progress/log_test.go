package progress

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/tutorvoz/internal/activity"
)

func TestFileLog_AppendAndRead(t *testing.T) {
	t.Parallel()

	l := NewFileLog(filepath.Join(t.TempDir(), "progress.jsonl"))
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	entries := []Entry{
		FromOutcome(7, activity.Outcome{Kind: activity.KindColors, Target: "rojo", Result: activity.ResultCorrect, Transcript: "rojo", Points: 10}),
		FromOutcome(7, activity.Outcome{Kind: activity.KindNumbers, Target: "3", Result: activity.ResultNoAnswer, Repeats: 2}),
	}
	for _, e := range entries {
		if err := l.Append(e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadAll() = %d entries, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, fixed)
	}
	if got[0].Activity != "colores" || got[0].Result != "correct" || got[0].Points != 10 {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].Result != "no_answer" || got[1].Repeats != 2 || got[1].ChildID != 7 {
		t.Errorf("second entry = %+v", got[1])
	}
}

func TestFileLog_MissingFile(t *testing.T) {
	t.Parallel()

	l := NewFileLog(filepath.Join(t.TempDir(), "none.jsonl"))
	got, err := l.ReadAll()
	if err != nil || got != nil {
		t.Errorf("ReadAll() = %v, %v; want nil, nil", got, err)
	}
}

func TestFileLog_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress.jsonl")
	if err := os.WriteFile(path, []byte("{\"activity\":\"colores\"}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileLog(path).ReadAll()
	if err == nil {
		t.Fatal("ReadAll() error = nil for a corrupt line")
	}
	if len(got) != 1 {
		t.Errorf("ReadAll() kept %d entries before the corrupt line, want 1", len(got))
	}
}

func TestFileLog_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	l := NewFileLog(filepath.Join(t.TempDir(), "progress.jsonl"))
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			if err := l.Append(Entry{Activity: "lenguaje", Points: i}); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		})
	}
	wg.Wait()

	got, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != 20 {
		t.Errorf("ReadAll() = %d entries, want 20", len(got))
	}
}

func TestFileLog_UnwritablePath(t *testing.T) {
	t.Parallel()

	l := NewFileLog(filepath.Join(t.TempDir(), "missing-dir", "progress.jsonl"))
	if err := l.Append(Entry{}); err == nil {
		t.Error("Append() error = nil for a path in a missing directory")
	}
}
