package maintenance

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/instrumentgpt/instrumentgpt/internal/memory"
	"github.com/instrumentgpt/instrumentgpt/internal/schema"
	"github.com/instrumentgpt/instrumentgpt/internal/store"
)

// countingLocker records which conversations were locked during a sweep.
type countingLocker struct {
	mu     sync.Mutex
	locked []string
}

func (c *countingLocker) LockConversation(id string) func() {
	c.mu.Lock()
	c.locked = append(c.locked, id)
	c.mu.Unlock()
	return func() {}
}

// newTestStore opens a temp store holding one conversation with n exchanges
// saved without any summary, simulating a log whose folding lagged.
func newTestStore(t *testing.T, n int) (*store.SQLiteStore, string) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	id, err := s.CreateConversation("local", "sweep target")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for i := 0; i < n; i++ {
		q := "question " + string(rune('A'+i))
		if err := s.SaveTurn(id,
			schema.NewUserMessage(q),
			schema.NewAssistantMessage("answer to "+q),
			"", ""); err != nil {
			t.Fatalf("save turn %d: %v", i, err)
		}
	}
	return s, id
}

func TestSweepOnce_RebuildsLaggingSummary(t *testing.T) {
	s, id := newTestStore(t, 3) // 6 messages, window keeps 2
	locker := &countingLocker{}
	sw := NewSweeper(s, memory.NewSummaryBuilder(0, 0), 2, locker, "@every 10m", nil)

	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	_, summary, _, err := s.Load(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(summary, "question A") || !strings.Contains(summary, "question B") {
		t.Errorf("evicted turns missing from rebuilt summary: %q", summary)
	}
	if strings.Contains(summary, "question C") {
		t.Errorf("retained window folded into summary: %q", summary)
	}
	if len(locker.locked) != 1 || locker.locked[0] != id {
		t.Errorf("conversation not locked during sweep: %v", locker.locked)
	}
}

func TestSweepOnce_WithinWindowUntouched(t *testing.T) {
	s, id := newTestStore(t, 1) // 2 messages fit the window exactly
	sw := NewSweeper(s, memory.NewSummaryBuilder(0, 0), 2, nil, "@every 10m", nil)

	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	_, summary, _, _ := s.Load(id)
	if summary != "" {
		t.Errorf("sweep folded a conversation still inside the window: %q", summary)
	}
}

func TestSweepOnce_Idempotent(t *testing.T) {
	s, id := newTestStore(t, 4)
	sw := NewSweeper(s, memory.NewSummaryBuilder(0, 0), 2, nil, "@every 10m", nil)

	ctx := context.Background()
	if err := sw.SweepOnce(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	_, first, _, _ := s.Load(id)
	if err := sw.SweepOnce(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	_, second, _, _ := s.Load(id)
	if first != second {
		t.Errorf("second sweep changed the summary:\n%q\n%q", first, second)
	}
}

func TestSweepOnce_PreservesState(t *testing.T) {
	s, id := newTestStore(t, 3)
	stateJSON := memory.DiagnosticState{
		Status:   memory.StatusInvestigating,
		DeviceIP: "10.1.1.45",
	}.Serialize()
	if err := s.SaveMemory(id, "", stateJSON); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	sw := NewSweeper(s, memory.NewSummaryBuilder(0, 0), 2, nil, "@every 10m", nil)
	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	_, _, gotState, _ := s.Load(id)
	if memory.DeserializeState(gotState).DeviceIP != "10.1.1.45" {
		t.Errorf("sweep dropped diagnostic state: %q", gotState)
	}
}

func TestRun_RejectsBadSchedule(t *testing.T) {
	s, _ := newTestStore(t, 0)
	sw := NewSweeper(s, memory.NewSummaryBuilder(0, 0), 2, nil, "not a schedule", nil)
	if err := sw.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
