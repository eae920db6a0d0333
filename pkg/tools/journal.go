package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/havenapp/haven/pkg/storage"
)

// LogMoodTool records a 1-10 mood score into the habit time series.
type LogMoodTool struct {
	metrics storage.MetricsSource
	memory  storage.MemorySource
}

func NewLogMoodTool(metrics storage.MetricsSource, memory storage.MemorySource) *LogMoodTool {
	return &LogMoodTool{metrics: metrics, memory: memory}
}

func (t *LogMoodTool) Name() string { return "log_mood" }

func (t *LogMoodTool) Description() string {
	return "Record the user's current mood as a score from 1 (worst) to 10 (best), with an optional note."
}

func (t *LogMoodTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"score": map[string]interface{}{
				"type":        "number",
				"description": "Mood score from 1 to 10",
			},
			"note": map[string]interface{}{
				"type":        "string",
				"description": "Optional short note about why",
			},
		},
		"required": []string{"score"},
	}
}

func (t *LogMoodTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	score, ok := args["score"].(float64)
	if !ok {
		return ErrorResult("score must be a number from 1 to 10")
	}
	if score < 1 || score > 10 {
		return ErrorResult(fmt.Sprintf("score %.1f out of range 1-10", score))
	}

	now := time.Now()
	if err := t.metrics.AppendMetric(ctx, storage.MetricPoint{Name: "mood", Day: now, Value: score}); err != nil {
		return ErrorResult("failed to record mood").WithError(err)
	}

	note, _ := args["note"].(string)
	note = strings.TrimSpace(note)
	if note != "" && t.memory != nil {
		// Note save is best effort; the score is already recorded.
		_ = t.memory.AddMemory(ctx, fmt.Sprintf("Mood %d/10: %s", int(score), note), now)
	}

	return NewResult(fmt.Sprintf("Recorded mood %d/10.", int(score)))
}

// LogJournalTool saves a free-text journal entry.
type LogJournalTool struct {
	memory storage.MemorySource
}

func NewLogJournalTool(memory storage.MemorySource) *LogJournalTool {
	return &LogJournalTool{memory: memory}
}

func (t *LogJournalTool) Name() string { return "log_journal" }

func (t *LogJournalTool) Description() string {
	return "Save a journal entry the user has written or dictated."
}

func (t *LogJournalTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entry": map[string]interface{}{
				"type":        "string",
				"description": "The journal entry text",
			},
		},
		"required": []string{"entry"},
	}
}

func (t *LogJournalTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	entry, _ := args["entry"].(string)
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return ErrorResult("entry must be a non-empty string")
	}

	if err := t.memory.AddMemory(ctx, entry, time.Now()); err != nil {
		return ErrorResult("failed to save journal entry").WithError(err)
	}
	return NewResult("Journal entry saved.")
}
