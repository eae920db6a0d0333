package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/havenapp/haven/pkg/storage"
)

// SaveMemoryTool stores a durable note about the user.
type SaveMemoryTool struct {
	memory storage.MemorySource
}

func NewSaveMemoryTool(memory storage.MemorySource) *SaveMemoryTool {
	return &SaveMemoryTool{memory: memory}
}

func (t *SaveMemoryTool) Name() string { return "save_memory" }

func (t *SaveMemoryTool) Description() string {
	return "Save an important fact or moment about the user for future conversations."
}

func (t *SaveMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The fact or moment to remember",
			},
		},
		"required": []string{"content"},
	}
}

func (t *SaveMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	content, _ := args["content"].(string)
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrorResult("content must be a non-empty string")
	}
	if err := t.memory.AddMemory(ctx, content, time.Now()); err != nil {
		return ErrorResult("failed to save memory").WithError(err)
	}
	return NewResult("Memory saved.")
}

// SearchMemoriesTool does a keyword scan over stored memories.
type SearchMemoriesTool struct {
	memory storage.MemorySource
}

func NewSearchMemoriesTool(memory storage.MemorySource) *SearchMemoriesTool {
	return &SearchMemoriesTool{memory: memory}
}

func (t *SearchMemoriesTool) Name() string { return "search_memories" }

func (t *SearchMemoriesTool) Description() string {
	return "Search saved memories by keyword and return the most recent matches."
}

func (t *SearchMemoriesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Keywords to look for",
			},
			"limit": map[string]interface{}{
				"type":        "number",
				"description": "Max matches to return (default 5)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchMemoriesTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrorResult("query must be a non-empty string")
	}
	limit := 5
	if raw, ok := args["limit"].(float64); ok && raw >= 1 {
		limit = int(raw)
	}

	entries, err := t.memory.ListMemories(ctx, 200)
	if err != nil {
		return ErrorResult("failed to load memories").WithError(err)
	}

	terms := strings.Fields(strings.ToLower(query))
	var matches []storage.MemoryEntry
	for _, entry := range entries {
		lowered := strings.ToLower(entry.Content)
		for _, term := range terms {
			if strings.Contains(lowered, term) {
				matches = append(matches, entry)
				break
			}
		}
		if len(matches) >= limit {
			break
		}
	}
	if len(matches) == 0 {
		return NewResult("No memories matched.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d matching memories:\n", len(matches))
	for _, entry := range matches {
		fmt.Fprintf(&b, "- [%s] %s\n", entry.CreatedAt.Format("2006-01-02"), entry.Content)
	}
	return NewResult(strings.TrimRight(b.String(), "\n"))
}
