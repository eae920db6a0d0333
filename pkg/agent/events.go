package agent

import (
	"github.com/havenapp/haven/pkg/providers"
	"github.com/havenapp/haven/pkg/widgets"
)

// LoopState is the loop runner's lifecycle state. Legal transitions:
// idle -> thinking -> streaming -> (tool_executing -> continuing -> thinking)* -> complete | error.
type LoopState string

const (
	StateIdle          LoopState = "idle"
	StateThinking      LoopState = "thinking"
	StateStreaming     LoopState = "streaming"
	StateToolExecuting LoopState = "tool_executing"
	StateContinuing    LoopState = "continuing"
	StateComplete      LoopState = "complete"
	StateError         LoopState = "error"
)

// Terminal reports whether the state ends the loop.
func (s LoopState) Terminal() bool {
	return s == StateComplete || s == StateError
}

// LoopEvent is one lifecycle event on the runner's stream. Exactly one
// terminal event is emitted per run; it carries the final content and the
// transcript of messages produced during the run.
type LoopEvent struct {
	State LoopState
	Round int

	// Delta carries a streamed text fragment on streaming events.
	Delta string

	// ToolName is set on tool_executing events.
	ToolName string

	// Terminal-event payload.
	Content    string
	Widgets    []widgets.Command
	Transcript []providers.Message
	Err        error
}
