package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/havenapp/haven/pkg/providers"
	"github.com/havenapp/haven/pkg/safety"
	"github.com/havenapp/haven/pkg/session"
	"github.com/havenapp/haven/pkg/tools"
)

// memStore is an in-memory session.Store keeping insertion order.
type memStore struct {
	mu       sync.Mutex
	messages map[string][]session.Message
	order    []string
}

func newMemStore() *memStore {
	return &memStore{messages: make(map[string][]session.Message)}
}

func (s *memStore) GetHistory(ctx context.Context, sessionID string) ([]session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Message, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	return out, nil
}

func (s *memStore) AppendMessage(ctx context.Context, msg session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.messages[msg.SessionID]; !seen {
		s.order = append([]string{msg.SessionID}, s.order...)
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *memStore) GetRecentSessionIDs(ctx context.Context, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.order) {
		n = len(s.order)
	}
	out := make([]string, n)
	copy(out, s.order[:n])
	return out, nil
}

func newTestDispatcher(store *memStore, provider providers.LLMProvider) *Dispatcher {
	runner := fastRunner(provider, tools.NewToolRegistry(), 5)
	cb := NewContextBuilder(testContextConfig(), nil, nil, nil)
	return NewDispatcher(
		session.NewManager(store),
		safety.NewGate(safety.Options{}),
		cb,
		runner,
		nil,
		"Sam (sponsor) 555-0100",
	)
}

func TestProcess_NormalTurn(t *testing.T) {
	store := newMemStore()
	provider := &mockProvider{script: []mockRound{
		{response: &providers.LLMResponse{Content: "one day at a time"}},
	}}
	d := newTestDispatcher(store, provider)

	result, err := d.Process(context.Background(), "", "feeling steady today")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.State != StateComplete {
		t.Fatalf("state = %s, want complete", result.State)
	}
	if result.Content != "one day at a time" {
		t.Fatalf("content = %q", result.Content)
	}
	if result.Assessment.Level != safety.LevelNone {
		t.Fatalf("level = %s, want none", result.Assessment.Level)
	}

	// Persisted turn: the user message plus the assistant reply.
	history, _ := store.GetHistory(context.Background(), result.SessionID)
	if len(history) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(history))
	}
	if history[0].Role != session.RoleUser || history[0].Content != "feeling steady today" {
		t.Fatalf("history[0] = %+v", history[0])
	}
	if history[1].Role != session.RoleAssistant {
		t.Fatalf("history[1] = %+v", history[1])
	}
}

// Emergency input never reaches the provider; the canned resource reply is
// persisted as the assistant turn.
func TestProcess_EmergencyBlocksDispatch(t *testing.T) {
	store := newMemStore()
	provider := &mockProvider{} // empty script: any call is detectable
	d := newTestDispatcher(store, provider)

	result, err := d.Process(context.Background(), "", "I want to kill myself")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called %d times during emergency, want 0", provider.calls)
	}
	if result.Assessment.Level != safety.LevelEmergency {
		t.Fatalf("level = %s, want emergency", result.Assessment.Level)
	}
	if result.State != StateComplete {
		t.Fatalf("state = %s, want complete", result.State)
	}
	if !strings.Contains(result.Content, "988") {
		t.Fatalf("emergency reply missing crisis line: %q", result.Content)
	}
	if !strings.Contains(result.Content, "Sam (sponsor) 555-0100") {
		t.Fatalf("emergency reply missing configured contact: %q", result.Content)
	}

	history, _ := store.GetHistory(context.Background(), result.SessionID)
	if len(history) != 2 {
		t.Fatalf("persisted %d messages, want user + reply", len(history))
	}
	if history[1].Content != result.Content {
		t.Fatal("persisted reply must match the returned content")
	}
}

// A provider failure still ends the turn with the fallback reply, and that
// reply is persisted so the session transcript matches what the user saw.
func TestProcess_ProviderFailurePersistsFallback(t *testing.T) {
	store := newMemStore()
	provider := &mockProvider{script: []mockRound{
		{err: &providers.ProviderError{StatusCode: 401, Body: "bad key"}},
	}}
	d := newTestDispatcher(store, provider)

	result, err := d.Process(context.Background(), "", "rough afternoon")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.State != StateError {
		t.Fatalf("state = %s, want error", result.State)
	}
	if result.Content != FallbackMessage {
		t.Fatalf("content = %q, want fallback", result.Content)
	}

	history, _ := store.GetHistory(context.Background(), result.SessionID)
	if len(history) != 2 {
		t.Fatalf("persisted %d messages, want user + fallback", len(history))
	}
	if history[1].Role != session.RoleAssistant || history[1].Content != FallbackMessage {
		t.Fatalf("history[1] = %+v, want persisted fallback reply", history[1])
	}
}

func TestProcess_ResumesExplicitSession(t *testing.T) {
	store := newMemStore()
	id := session.NewSessionID(time.Now())
	store.AppendMessage(context.Background(), session.Message{
		ID:        "msg-seed",
		SessionID: id,
		Role:      session.RoleUser,
		Content:   "earlier today",
		Timestamp: time.Now().Add(-time.Hour),
	})

	provider := &mockProvider{script: []mockRound{
		{response: &providers.LLMResponse{Content: "welcome back"}},
	}}
	d := newTestDispatcher(store, provider)

	result, err := d.Process(context.Background(), id, "back again")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.SessionID != id {
		t.Fatalf("session = %s, want resumed %s", result.SessionID, id)
	}

	history, _ := store.GetHistory(context.Background(), id)
	if len(history) != 3 {
		t.Fatalf("history = %d messages, want seed + user + assistant", len(history))
	}
}

// An id with no persisted messages degrades to a fresh session instead of
// failing the turn.
func TestProcess_UnknownSessionCreatesFresh(t *testing.T) {
	store := newMemStore()
	provider := &mockProvider{script: []mockRound{
		{response: &providers.LLMResponse{Content: "hi there"}},
	}}
	d := newTestDispatcher(store, provider)

	ghost := session.NewSessionID(time.Now().Add(-48 * time.Hour))
	result, err := d.Process(context.Background(), ghost, "hello")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.SessionID == ghost {
		t.Fatal("unknown session id must not be reused")
	}
}

func TestProcess_EmptyIDReusesTodaySession(t *testing.T) {
	store := newMemStore()
	provider := &mockProvider{script: []mockRound{
		{response: &providers.LLMResponse{Content: "first"}},
		{response: &providers.LLMResponse{Content: "second"}},
	}}
	d := newTestDispatcher(store, provider)

	first, err := d.Process(context.Background(), "", "morning check-in")
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	second, err := d.Process(context.Background(), "", "afternoon follow-up")
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if first.SessionID != second.SessionID {
		t.Fatalf("same-day turns split sessions: %s vs %s", first.SessionID, second.SessionID)
	}
}

func TestRecentVelocity(t *testing.T) {
	now := time.Now()
	messages := []session.Message{
		{Role: session.RoleUser, Timestamp: now.Add(-30 * time.Minute)},
		{Role: session.RoleUser, Timestamp: now.Add(-8 * time.Minute)},
		{Role: session.RoleAssistant, Timestamp: now.Add(-7 * time.Minute)},
		{Role: session.RoleUser, Timestamp: now.Add(-5 * time.Minute)},
		{Role: session.RoleUser, Timestamp: now.Add(-time.Minute)},
	}
	if got := recentVelocity(messages, now); got != 3 {
		t.Fatalf("velocity = %v, want 3 user messages in window", got)
	}
	if got := recentVelocity(nil, now); got != 0 {
		t.Fatalf("velocity on empty history = %v", got)
	}
}

func TestSafetyNotes_ActionMapping(t *testing.T) {
	contact := "Sam 555-0100"

	if notes := safetyNotes(safety.CrisisAssessment{RecommendedAction: safety.ActionProceed}, contact); notes != nil {
		t.Fatalf("proceed must add no notes, got %v", notes)
	}
	notes := safetyNotes(safety.CrisisAssessment{RecommendedAction: safety.ActionInjectContext}, contact)
	if len(notes) != 1 || !strings.Contains(notes[0], "Safety note") {
		t.Fatalf("inject-context notes = %v", notes)
	}
	notes = safetyNotes(safety.CrisisAssessment{RecommendedAction: safety.ActionPauseAndConnect}, contact)
	if len(notes) != 1 || !strings.Contains(notes[0], contact) {
		t.Fatalf("pause-and-connect must carry resources, got %v", notes)
	}
}

func TestAppendTranscript_RoleConversion(t *testing.T) {
	s := &session.Session{ID: "s-test"}
	appendTranscript(s, []providers.Message{
		{Role: "assistant", Content: "checking", ToolCalls: []providers.ToolCall{
			{ID: "call-1", Name: "log_mood", Arguments: map[string]interface{}{"score": 7.0}},
		}},
		{Role: "tool", Content: "ok", ToolCallID: "call-1"},
		{Role: "assistant", Content: "logged it"},
	})

	if s.MessageCount() != 3 {
		t.Fatalf("appended %d messages, want 3", s.MessageCount())
	}
	if s.Messages[0].Role != session.RoleAssistant || len(s.Messages[0].ToolCalls) != 1 {
		t.Fatalf("messages[0] = %+v", s.Messages[0])
	}
	if s.Messages[1].Role != session.RoleToolResult || s.Messages[1].ToolCallID != "call-1" {
		t.Fatalf("messages[1] = %+v", s.Messages[1])
	}
}
