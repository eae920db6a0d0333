package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/havenapp/haven/pkg/config"
	"github.com/havenapp/haven/pkg/logger"
	"github.com/havenapp/haven/pkg/providers"
	"github.com/havenapp/haven/pkg/session"
	"github.com/havenapp/haven/pkg/storage"
	"github.com/havenapp/haven/pkg/tools"
)

// ContextWindow is the ephemeral payload assembled fresh for one turn. It
// is derived, never persisted.
type ContextWindow struct {
	Facts          []string
	Recent         []session.Message
	Memories       []string
	Indicators     []string
	CurrentMessage string
}

// ContextBuilder composes a token-bounded context window from the profile
// facts, recent conversation, scored memory recall, and habit indicators.
// Each sub-source degrades to empty on failure; the build never aborts.
type ContextBuilder struct {
	facts    storage.FactsSource
	memories storage.MemorySource
	metrics  storage.MetricsSource
	cfg      config.ContextConfig
	tools    *tools.ToolRegistry
	prompt   string
}

func NewContextBuilder(cfg config.ContextConfig, facts storage.FactsSource, memories storage.MemorySource, metrics storage.MetricsSource) *ContextBuilder {
	return &ContextBuilder{
		facts:    facts,
		memories: memories,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// SetToolsRegistry sets the registry used for the tool summary section of
// the system prompt.
func (cb *ContextBuilder) SetToolsRegistry(registry *tools.ToolRegistry) {
	cb.tools = registry
}

// SetSystemPrompt overrides the default identity prompt.
func (cb *ContextBuilder) SetSystemPrompt(prompt string) {
	cb.prompt = prompt
}

// Build assembles the context window for the current message. recent is the
// session's message history; the builder applies its own caps.
func (cb *ContextBuilder) Build(ctx context.Context, currentMessage string, recent []session.Message) ContextWindow {
	cw := ContextWindow{CurrentMessage: currentMessage}
	budget := DeriveContextBudget(cb.cfg.TokenBudget)

	if cb.facts != nil {
		facts, err := cb.facts.GetFacts(ctx)
		if err != nil {
			logger.WarnCF("context", "Facts source failed, continuing without",
				map[string]interface{}{"error": err.Error()})
		} else {
			cw.Facts = capByTokens(facts, budget.FactTokens)
		}
	}

	recentCap := cb.cfg.RecentMessageCap
	if recentCap <= 0 {
		recentCap = 20
	}
	if len(recent) > recentCap {
		recent = recent[len(recent)-recentCap:]
	}
	cw.Recent = capMessagesByTokens(recent, budget.RecentTokens)

	keywords := ExtractKeywords(currentMessage)
	activeThemes := DetectThemes(keywords)
	if cb.memories != nil && (len(keywords) > 0 || len(activeThemes) > 0) {
		entries, err := cb.memories.ListMemories(ctx, 200)
		if err != nil {
			logger.WarnCF("context", "Memory source failed, continuing without",
				map[string]interface{}{"error": err.Error()})
		} else {
			cw.Memories = selectMemories(entries, keywords, activeThemes, cb.cfg.MemoryEntryCap, cb.cfg.MemoryEntryChars)
			cw.Memories = capByTokens(cw.Memories, budget.MemoryTokens)
		}
	}

	if cb.metrics != nil {
		now := time.Now()
		window := cb.cfg.MetricsWindow
		if window <= 0 {
			window = 14
		}
		points, err := cb.metrics.GetMetrics(ctx, now.AddDate(0, 0, -window), now)
		if err != nil {
			logger.WarnCF("context", "Metrics source failed, continuing without",
				map[string]interface{}{"error": err.Error()})
		} else {
			cw.Indicators = capByTokens(ComputeIndicators(points, window, now), budget.IndicatorTokens)
		}
	}

	logger.DebugCF("context", "Context window assembled",
		map[string]interface{}{
			"facts":      len(cw.Facts),
			"recent":     len(cw.Recent),
			"memories":   len(cw.Memories),
			"indicators": len(cw.Indicators),
			"keywords":   len(keywords),
			"themes":     activeThemes,
		})
	return cw
}

// capByTokens keeps leading entries while they fit the token budget.
func capByTokens(entries []string, budget int) []string {
	if budget <= 0 {
		return entries
	}
	used := 0
	for i, entry := range entries {
		used += estimateTokens(entry)
		if used > budget {
			return entries[:i]
		}
	}
	return entries
}

// capMessagesByTokens keeps the newest messages that fit the budget.
func capMessagesByTokens(messages []session.Message, budget int) []session.Message {
	if budget <= 0 {
		return messages
	}
	used := 0
	for i := len(messages) - 1; i >= 0; i-- {
		used += estimateTokens(messages[i].Content)
		if used > budget {
			return messages[i+1:]
		}
	}
	return messages
}

// BuildMessages renders the context window into the provider message list:
// one system message, the recent history verbatim, then the current user
// message. systemNotes are appended to the system prompt in order.
func (cb *ContextBuilder) BuildMessages(cw ContextWindow, systemNotes ...string) []providers.Message {
	var sys strings.Builder
	sys.WriteString(cb.systemPrompt())

	if len(cw.Facts) > 0 {
		sys.WriteString("\n\n## About the user\n")
		for _, fact := range cw.Facts {
			fmt.Fprintf(&sys, "- %s\n", fact)
		}
	}
	if len(cw.Memories) > 0 {
		sys.WriteString("\n## Relevant memories\n")
		for _, mem := range cw.Memories {
			fmt.Fprintf(&sys, "- %s\n", mem)
		}
	}
	if len(cw.Indicators) > 0 {
		sys.WriteString("\n## Recent signals\n")
		for _, ind := range cw.Indicators {
			fmt.Fprintf(&sys, "- %s\n", ind)
		}
	}
	for _, note := range systemNotes {
		note = strings.TrimSpace(note)
		if note != "" {
			sys.WriteString("\n\n")
			sys.WriteString(note)
		}
	}

	messages := []providers.Message{{Role: "system", Content: sys.String()}}
	for _, msg := range cw.Recent {
		messages = append(messages, toProviderMessage(msg))
	}
	messages = append(messages, providers.Message{Role: "user", Content: cw.CurrentMessage})
	return messages
}

func (cb *ContextBuilder) systemPrompt() string {
	base := strings.TrimSpace(cb.prompt)
	if base == "" {
		base = defaultSystemPrompt
	}
	toolsSection := cb.buildToolsSection()
	if toolsSection == "" {
		return base
	}
	return base + "\n\n" + toolsSection
}

func (cb *ContextBuilder) buildToolsSection() string {
	if cb.tools == nil {
		return ""
	}
	summaries := cb.tools.GetSummaries()
	if len(summaries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available Tools\n\n")
	sb.WriteString("Use tools to perform actions such as logging mood or saving a journal entry. Do not pretend to have done so.\n\n")
	for _, s := range summaries {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

const defaultSystemPrompt = `# Haven

You are Haven, a warm, steady companion supporting someone working on recovery and habit change.

## Rules

1. Be brief and concrete. One idea per reply unless asked for more.
2. Never moralize about a slip. Meet the user where they are.
3. When an interactive exercise would help, emit a widget token inline, e.g. [WIDGET:BREATHING|{"seconds": 60}]. Known widgets: BREATHING, MOOD_CHECK, URGE_SURF, GROUNDING, JOURNAL_PROMPT.
4. If the user appears to be in danger, point them to crisis resources immediately.`

func toProviderMessage(msg session.Message) providers.Message {
	out := providers.Message{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	if msg.Role == session.RoleToolResult {
		out.Role = "tool"
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, providers.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Input,
		})
	}
	return out
}
