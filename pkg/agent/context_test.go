package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/havenapp/haven/pkg/config"
	"github.com/havenapp/haven/pkg/session"
	"github.com/havenapp/haven/pkg/storage"
)

type mockFacts struct {
	facts []string
	err   error
}

func (m *mockFacts) GetFacts(ctx context.Context) ([]string, error) { return m.facts, m.err }
func (m *mockFacts) AddFact(ctx context.Context, fact string) error { return nil }

type mockMemories struct {
	entries []storage.MemoryEntry
	err     error
}

func (m *mockMemories) ListMemories(ctx context.Context, limit int) ([]storage.MemoryEntry, error) {
	return m.entries, m.err
}
func (m *mockMemories) AddMemory(ctx context.Context, content string, at time.Time) error {
	return nil
}

type mockMetrics struct {
	points []storage.MetricPoint
	err    error
}

func (m *mockMetrics) GetMetrics(ctx context.Context, from, to time.Time) ([]storage.MetricPoint, error) {
	return m.points, m.err
}
func (m *mockMetrics) AppendMetric(ctx context.Context, point storage.MetricPoint) error {
	return nil
}

func testContextConfig() config.ContextConfig {
	return config.ContextConfig{
		TokenBudget:      4096,
		RecentMessageCap: 20,
		MemoryEntryCap:   5,
		MemoryEntryChars: 280,
		MetricsWindow:    14,
	}
}

func TestBuild_AssemblesAllSlices(t *testing.T) {
	now := time.Now()
	cb := NewContextBuilder(testContextConfig(),
		&mockFacts{facts: []string{"Sober since March 2026", "Has a dog named Pepper"}},
		&mockMemories{entries: []storage.MemoryEntry{
			{ID: "m1", Content: "Craving spiked after the work party", CreatedAt: now.Add(-24 * time.Hour)},
		}},
		&mockMetrics{points: []storage.MetricPoint{
			{Name: "checkin", Day: now.AddDate(0, 0, -5), Value: 1},
		}},
	)

	recent := []session.Message{
		{Role: session.RoleUser, Content: "hey", Timestamp: now.Add(-time.Minute)},
		{Role: session.RoleAssistant, Content: "hi, how are you?", Timestamp: now.Add(-time.Minute)},
	}
	cw := cb.Build(context.Background(), "fighting a craving tonight", recent)

	if len(cw.Facts) != 2 {
		t.Errorf("facts = %d, want 2", len(cw.Facts))
	}
	if len(cw.Recent) != 2 {
		t.Errorf("recent = %d, want 2", len(cw.Recent))
	}
	if len(cw.Memories) != 1 {
		t.Errorf("memories = %d, want 1", len(cw.Memories))
	}
	if len(cw.Indicators) == 0 {
		t.Error("expected a missed check-in indicator")
	}
	if cw.CurrentMessage != "fighting a craving tonight" {
		t.Errorf("current message = %q", cw.CurrentMessage)
	}
}

// Failing sub-sources degrade to empty slices; the build never aborts.
func TestBuild_DegradesOnSourceFailure(t *testing.T) {
	boom := errors.New("storage offline")
	cb := NewContextBuilder(testContextConfig(),
		&mockFacts{err: boom},
		&mockMemories{err: boom},
		&mockMetrics{err: boom},
	)

	cw := cb.Build(context.Background(), "fighting a craving tonight", nil)
	if len(cw.Facts) != 0 || len(cw.Memories) != 0 || len(cw.Indicators) != 0 {
		t.Fatalf("failed sources must yield empty slices: %+v", cw)
	}
	if cw.CurrentMessage == "" {
		t.Fatal("current message must survive source failures")
	}
}

func TestBuild_NoKeywordsMeansNoMemorySlice(t *testing.T) {
	cb := NewContextBuilder(testContextConfig(),
		nil,
		&mockMemories{entries: []storage.MemoryEntry{{ID: "m1", Content: "anything"}}},
		nil,
	)

	// Stopwords only: extraction yields nothing, which is expected.
	cw := cb.Build(context.Background(), "the and for", nil)
	if len(cw.Memories) != 0 {
		t.Fatalf("expected empty memory slice, got %v", cw.Memories)
	}
}

func TestBuild_RecentMessageCap(t *testing.T) {
	cfg := testContextConfig()
	cfg.RecentMessageCap = 3
	cb := NewContextBuilder(cfg, nil, nil, nil)

	var recent []session.Message
	for i := 0; i < 10; i++ {
		recent = append(recent, session.Message{
			Role:      session.RoleUser,
			Content:   "message",
			Timestamp: time.Now(),
		})
	}
	cw := cb.Build(context.Background(), "checking in", recent)
	if len(cw.Recent) != 3 {
		t.Fatalf("recent = %d, want 3", len(cw.Recent))
	}
}

func TestBuild_TokenBudgetTrimsOldest(t *testing.T) {
	cfg := testContextConfig()
	cfg.TokenBudget = 200
	cb := NewContextBuilder(cfg, nil, nil, nil)

	long := strings.Repeat("word ", 100)
	recent := []session.Message{
		{Role: session.RoleUser, Content: long, Timestamp: time.Now()},
		{Role: session.RoleAssistant, Content: long, Timestamp: time.Now()},
		{Role: session.RoleUser, Content: "latest short one", Timestamp: time.Now()},
	}
	cw := cb.Build(context.Background(), "checking in", recent)
	if len(cw.Recent) == 3 {
		t.Fatal("expected oldest messages trimmed under budget")
	}
	if len(cw.Recent) == 0 {
		t.Fatal("newest message should survive")
	}
	if cw.Recent[len(cw.Recent)-1].Content != "latest short one" {
		t.Fatal("trimming must keep the newest messages")
	}
}

func TestBuildMessages_Layout(t *testing.T) {
	cb := NewContextBuilder(testContextConfig(), nil, nil, nil)
	cw := ContextWindow{
		Facts:          []string{"Sober since March"},
		Memories:       []string{"Craving passed after a walk"},
		Indicators:     []string{"Mood trending down over the last 14 days"},
		CurrentMessage: "rough evening",
		Recent: []session.Message{
			{Role: session.RoleUser, Content: "earlier message"},
		},
	}

	msgs := cb.BuildMessages(cw, "## Safety note\nBe gentle.")
	if msgs[0].Role != "system" {
		t.Fatal("first message must be the system prompt")
	}
	sys := msgs[0].Content
	for _, want := range []string{"Sober since March", "Craving passed", "Mood trending down", "Safety note"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if msgs[1].Role != "user" || msgs[1].Content != "earlier message" {
		t.Fatal("history must follow the system prompt verbatim")
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != "rough evening" {
		t.Fatal("current message must be last")
	}
}

func TestToProviderMessage_ToolResultRole(t *testing.T) {
	msg := session.Message{
		Role:       session.RoleToolResult,
		Content:    "done",
		ToolCallID: "call-1",
	}
	got := toProviderMessage(msg)
	if got.Role != "tool" {
		t.Fatalf("role = %q, want tool", got.Role)
	}
	if got.ToolCallID != "call-1" {
		t.Fatalf("tool call id = %q", got.ToolCallID)
	}
}
