package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hafizlabs/hafiz-agent/internal/llm"
)

func TestAddMessageEnforcesCountCap(t *testing.T) {
	s := NewStore(20, 30*time.Minute)

	for i := 0; i < 50; i++ {
		s.AddMessage("chat1", "user", fmt.Sprintf("message %d", i), nil)
	}

	history := s.GetHistory("chat1")
	if len(history) != 20 {
		t.Fatalf("history length = %d, want 20", len(history))
	}
	// Oldest-first eviction keeps the most recent 20.
	if history[0].Content != "message 30" {
		t.Errorf("oldest entry = %q, want message 30", history[0].Content)
	}
	if history[19].Content != "message 49" {
		t.Errorf("newest entry = %q, want message 49", history[19].Content)
	}
}

func TestAddMessageExpiresByAge(t *testing.T) {
	s := NewStore(20, 30*time.Minute)

	now := time.Now()
	s.now = func() time.Time { return now }
	s.AddMessage("chat1", "user", "old", nil)

	// 31 minutes later a new append evicts the stale entry.
	s.now = func() time.Time { return now.Add(31 * time.Minute) }
	s.AddMessage("chat1", "user", "fresh", nil)

	history := s.GetHistory("chat1")
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Content != "fresh" {
		t.Errorf("remaining entry = %q, want fresh", history[0].Content)
	}
}

func TestGetHistoryUnknownConversation(t *testing.T) {
	s := NewStore(20, 30*time.Minute)

	history := s.GetHistory("nope")
	if history == nil || len(history) != 0 {
		t.Errorf("expected empty slice, got %v", history)
	}
}

func TestGetHistoryReturnsCopy(t *testing.T) {
	s := NewStore(20, 30*time.Minute)
	s.AddMessage("chat1", "user", "hello", nil)

	history := s.GetHistory("chat1")
	history[0].Content = "mutated"

	if got := s.GetHistory("chat1")[0].Content; got != "hello" {
		t.Errorf("store content = %q, want hello", got)
	}
}

func TestAddMessageOptions(t *testing.T) {
	s := NewStore(20, 30*time.Minute)

	s.AddMessage("chat1", "assistant", "", &Options{
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_current_time"}},
	})
	s.AddMessage("chat1", "tool", "10:15", &Options{ToolCallID: "call_1"})

	history := s.GetHistory("chat1")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].ToolCalls[0].ID != "call_1" {
		t.Errorf("tool call id = %q", history[0].ToolCalls[0].ID)
	}
	if history[1].ToolCallID != "call_1" {
		t.Errorf("tool result correlation = %q, want call_1", history[1].ToolCallID)
	}
}

func TestClearIdempotent(t *testing.T) {
	s := NewStore(20, 30*time.Minute)
	s.AddMessage("chat1", "user", "hello", nil)

	s.Clear("chat1")
	s.Clear("chat1")

	if got := len(s.GetHistory("chat1")); got != 0 {
		t.Errorf("history length after clear = %d, want 0", got)
	}
}

func TestClearReleasesTurnLock(t *testing.T) {
	s := NewStore(20, 30*time.Minute)
	s.AddMessage("chat1", "user", "hello", nil)

	unlock := s.LockConversation("chat1")
	unlock()
	s.Clear("chat1")

	s.mu.RLock()
	_, held := s.turnLocks["chat1"]
	s.mu.RUnlock()
	if held {
		t.Error("turn lock entry survived Clear")
	}
}

func TestConversationsDoNotInterfere(t *testing.T) {
	s := NewStore(3, 30*time.Minute)

	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			id := fmt.Sprintf("chat%d", c)
			for i := 0; i < 10; i++ {
				s.AddMessage(id, "user", fmt.Sprintf("m%d", i), nil)
			}
		}(c)
	}
	wg.Wait()

	for c := 0; c < 4; c++ {
		id := fmt.Sprintf("chat%d", c)
		if got := len(s.GetHistory(id)); got != 3 {
			t.Errorf("%s length = %d, want 3", id, got)
		}
	}
}

func TestLockConversationSerializesTurns(t *testing.T) {
	s := NewStore(20, 30*time.Minute)

	unlock := s.LockConversation("chat1")

	acquired := make(chan struct{})
	go func() {
		u := s.LockConversation("chat1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after unlock")
	}
}
