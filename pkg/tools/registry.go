package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/havenapp/haven/pkg/logger"
	"github.com/havenapp/haven/pkg/providers"
)

type ToolRegistry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Execute runs a named tool. A missing tool or a tool fault becomes an
// error ToolResult, never a panic or a nil.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]interface{}) *ToolResult {
	logger.InfoCF("tool", "Tool execution started",
		map[string]interface{}{
			"tool": name,
			"args": sanitizeToolArgs(args),
		})

	tool, ok := r.Get(name)
	if !ok {
		logger.ErrorCF("tool", "Tool not found",
			map[string]interface{}{"tool": name})
		return ErrorResult(fmt.Sprintf("tool %q not found", name)).WithError(fmt.Errorf("tool not found"))
	}

	start := time.Now()
	result := safeExecute(ctx, tool, args)
	duration := time.Since(start)
	if result == nil {
		err := fmt.Errorf("tool %q returned nil result", name)
		logger.ErrorCF("tool", "Tool returned nil result",
			map[string]interface{}{"tool": name})
		return ErrorResult(err.Error()).WithError(err)
	}

	if result.IsError {
		logger.ErrorCF("tool", "Tool execution failed",
			map[string]interface{}{
				"tool":        name,
				"duration_ms": duration.Milliseconds(),
				"error":       result.ForLLM,
			})
	} else {
		logger.InfoCF("tool", "Tool execution completed",
			map[string]interface{}{
				"tool":          name,
				"duration_ms":   duration.Milliseconds(),
				"result_length": len(result.ForLLM),
			})
	}

	return result
}

// safeExecute converts a tool panic into a structured failure result.
func safeExecute(ctx context.Context, tool Tool, args map[string]interface{}) (result *ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("tool %q panicked: %v", tool.Name(), r)
			logger.ErrorCF("tool", "Tool panicked",
				map[string]interface{}{"tool": tool.Name(), "panic": fmt.Sprintf("%v", r)})
			result = ErrorResult(err.Error()).WithError(err)
		}
	}()
	return tool.Execute(ctx, args)
}

// ToProviderDefs converts registered tools to the provider declaration
// format, sorted by name for stable request payloads.
func (r *ToolRegistry) ToProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	definitions := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		definitions = append(definitions, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return definitions
}

// List returns all registered tool names.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// GetSummaries returns "name - description" lines for prompt assembly.
func (r *ToolRegistry) GetSummaries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]string, 0, len(r.tools))
	for _, tool := range r.tools {
		summaries = append(summaries, fmt.Sprintf("- `%s` - %s", tool.Name(), tool.Description()))
	}
	sort.Strings(summaries)
	return summaries
}

var sensitiveArgKeyFragments = []string{
	"api_key",
	"apikey",
	"authorization",
	"auth",
	"bearer",
	"password",
	"private",
	"secret",
	"token",
}

func sanitizeToolArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}
	sanitized := make(map[string]interface{}, len(args))
	for key, value := range args {
		if isSensitiveArgKey(key) {
			sanitized[key] = "<redacted>"
			continue
		}
		if s, ok := value.(string); ok {
			sanitized[key] = truncateLogString(s)
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func isSensitiveArgKey(key string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "-", "_"))
	for _, fragment := range sensitiveArgKeyFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

func truncateLogString(value string) string {
	const maxLen = 256
	if len(value) <= maxLen {
		return value
	}
	return value[:maxLen] + "...(truncated)"
}
