// Package conversation provides bounded per-conversation message history.
package conversation

import (
	"sync"
	"time"

	"github.com/hafizlabs/hafiz-agent/internal/llm"
)

// Message is one turn entry in a conversation history.
type Message struct {
	Role       string            `json:"role"` // user, assistant, tool
	Content    string            `json:"content"`
	Parts      []llm.ContentPart `json:"parts,omitempty"`
	ToolCalls  []llm.ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Options carries the optional fields of a message.
type Options struct {
	Parts      []llm.ContentPart
	ToolCalls  []llm.ToolCall
	ToolCallID string
}

// Store keeps the recent message history for each conversation,
// bounded by count and by age. Old entries are evicted from the front
// on every mutation, so a conversation never grows past maxMessages
// and never retains anything older than ttl.
type Store struct {
	mu        sync.RWMutex
	histories map[string][]Message
	turnLocks map[string]*sync.Mutex

	maxMessages int
	ttl         time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewStore creates a history store. maxMessages and ttl fall back to
// 20 entries and 30 minutes when non-positive.
func NewStore(maxMessages int, ttl time.Duration) *Store {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		histories:   make(map[string][]Message),
		turnLocks:   make(map[string]*sync.Mutex),
		maxMessages: maxMessages,
		ttl:         ttl,
		now:         time.Now,
	}
}

// AddMessage appends a message with the current timestamp and enforces
// both history bounds, evicting oldest-first.
func (s *Store) AddMessage(conversationID, role, content string, opts *Options) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	if opts != nil {
		msg.Parts = opts.Parts
		msg.ToolCalls = opts.ToolCalls
		msg.ToolCallID = opts.ToolCallID
	}

	history := append(s.histories[conversationID], msg)

	// Expire by age first, then enforce the count cap.
	cutoff := s.now().Add(-s.ttl)
	for len(history) > 0 && history[0].Timestamp.Before(cutoff) {
		history = history[1:]
	}
	for len(history) > s.maxMessages {
		history = history[1:]
	}

	s.histories[conversationID] = history
}

// GetHistory returns a copy of the conversation's messages, oldest
// first. Unknown conversations yield an empty slice.
func (s *Store) GetHistory(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.histories[conversationID]
	if !ok {
		return []Message{}
	}

	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// Clear removes all history for a conversation, along with its turn
// lock. Idempotent. Call it only after the conversation's turn lock
// has been released.
func (s *Store) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, conversationID)
	delete(s.turnLocks, conversationID)
}

// ActiveConversations returns the number of conversations currently
// holding history.
func (s *Store) ActiveConversations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories)
}

// LockConversation serializes whole turns for one conversation id.
// The transport layer acquires it before running the agent loop, so
// two concurrent turns for the same conversation cannot interleave
// their history appends. Returns the unlock function.
func (s *Store) LockConversation(conversationID string) func() {
	s.mu.Lock()
	l, ok := s.turnLocks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.turnLocks[conversationID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
