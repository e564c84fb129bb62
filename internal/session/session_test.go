package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/agriguardian/agriguardian/internal/prompt"
)

func TestGetOrCreate(t *testing.T) {
	m := NewManager(4)

	s := m.GetOrCreate("")
	if s.ID == "" {
		t.Fatal("no session ID minted")
	}

	again := m.GetOrCreate(s.ID)
	if again.ID != s.ID {
		t.Errorf("existing session not reused: %s vs %s", again.ID, s.ID)
	}

	other := m.GetOrCreate("unknown-id")
	if other.ID == "unknown-id" {
		t.Error("unknown ID adopted instead of replaced")
	}
}

func TestHistoryCap(t *testing.T) {
	m := NewManager(4)
	s := m.GetOrCreate("")

	for i := 0; i < 6; i++ {
		m.AppendTurn(s.ID, "user", fmt.Sprintf("q%d", i))
	}

	got := m.Get(s.ID)
	if len(got.History) != 4 {
		t.Fatalf("history length: got %d, want 4", len(got.History))
	}
	if got.History[0].Content != "q2" || got.History[3].Content != "q5" {
		t.Errorf("wrong turns kept: %v", got.History)
	}
}

func TestSetCropClearsHistory(t *testing.T) {
	m := NewManager(4)
	s := m.GetOrCreate("")
	m.AppendTurn(s.ID, "user", "old question")

	m.SetCrop(s.ID, prompt.Context{Crops: "maize", Stage: "tasseling"})

	got := m.Get(s.ID)
	if got.Crop.Crops != "maize" {
		t.Errorf("crop not stored: %+v", got.Crop)
	}
	if len(got.History) != 0 {
		t.Errorf("history survived crop change: %v", got.History)
	}
}

func TestUpdateCropKeepsHistory(t *testing.T) {
	m := NewManager(4)
	s := m.GetOrCreate("")
	m.AppendTurn(s.ID, "user", "old question")
	m.AppendTurn(s.ID, "assistant", "old answer")

	m.UpdateCrop(s.ID, prompt.Context{Crops: "sorghum", Stage: "booting"})

	got := m.Get(s.ID)
	if got.Crop.Crops != "sorghum" {
		t.Errorf("crop not stored: %+v", got.Crop)
	}
	if len(got.History) != 2 {
		t.Errorf("history lost on crop update: %v", got.History)
	}
}

func TestReset(t *testing.T) {
	m := NewManager(4)
	s := m.GetOrCreate("")
	m.SetCrop(s.ID, prompt.Context{Crops: "beans"})
	m.AppendTurn(s.ID, "user", "q")
	m.AppendTurn(s.ID, "assistant", "a")

	m.Reset(s.ID)

	got := m.Get(s.ID)
	if len(got.History) != 0 {
		t.Error("history not cleared")
	}
	if got.Crop.Crops != "" {
		t.Error("crop context survived reset")
	}
}

func TestExpiry(t *testing.T) {
	m := NewManager(4)
	current := time.Now()
	m.now = func() time.Time { return current }

	s := m.GetOrCreate("")
	current = current.Add(25 * time.Hour)

	if got := m.Get(s.ID); got != nil {
		t.Error("expired session returned")
	}
}

func TestSweep(t *testing.T) {
	m := NewManager(4)
	current := time.Now()
	m.now = func() time.Time { return current }

	m.GetOrCreate("")
	m.GetOrCreate("")
	current = current.Add(25 * time.Hour)
	fresh := m.GetOrCreate("")

	if removed := m.Sweep(); removed != 2 {
		t.Errorf("swept %d sessions, want 2", removed)
	}
	if m.Get(fresh.ID) == nil {
		t.Error("fresh session swept")
	}
}
