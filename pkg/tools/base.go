package tools

import "context"

// Tool is the interface that all tools must implement. Execution is local
// and synchronous; tools never call back into the agent loop.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// ToolResult is the structured outcome of one tool execution. Failures are
// results, not faults: the provider decides how to react to an error.
type ToolResult struct {
	ForLLM  string
	IsError bool
	Err     error
}

func NewResult(content string) *ToolResult {
	return &ToolResult{ForLLM: content}
}

func ErrorResult(message string) *ToolResult {
	return &ToolResult{ForLLM: message, IsError: true}
}

func (r *ToolResult) WithError(err error) *ToolResult {
	r.Err = err
	return r
}
