package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/havenapp/haven/pkg/logger"
	"github.com/havenapp/haven/pkg/providers"
	"github.com/havenapp/haven/pkg/tools"
	"github.com/havenapp/haven/pkg/widgets"
)

// FallbackMessage is returned verbatim when a turn ends in the error state.
// The caller never sees a raw provider fault.
const FallbackMessage = "I'm having trouble connecting right now, but I'm still here. " +
	"If you need support this moment, the 988 Suicide & Crisis Lifeline is available by call or text, any time. " +
	"Please try me again in a little while."

// DefaultResponse covers the rare round where the provider finishes with no
// text at all.
const DefaultResponse = "I'm here with you. What's on your mind?"

// LoopRunnerOptions configures one runner instance.
type LoopRunnerOptions struct {
	Model       string
	MaxRounds   int
	MaxTokens   int
	Temperature float64
	RetryMax    int
	RetryBase   time.Duration
}

// LoopRunner drives bounded request/response rounds against the inference
// provider, executing requested tool calls locally between rounds. One
// runner instance serves one turn at a time; independent turns use
// independent runs.
type LoopRunner struct {
	provider providers.LLMProvider
	tools    *tools.ToolRegistry
	opts     LoopRunnerOptions
}

func NewLoopRunner(provider providers.LLMProvider, registry *tools.ToolRegistry, opts LoopRunnerOptions) *LoopRunner {
	if opts.Model == "" {
		opts.Model = provider.GetDefaultModel()
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 5
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	return &LoopRunner{provider: provider, tools: registry, opts: opts}
}

// Run executes the loop for one turn and returns its event stream. The
// stream always ends with exactly one terminal event (complete or error),
// unless the caller abandons the run by cancelling ctx; every send honors
// cancellation, so an abandoned run leaks nothing.
func (r *LoopRunner) Run(ctx context.Context, messages []providers.Message) <-chan LoopEvent {
	events := make(chan LoopEvent, 16)
	go func() {
		defer close(events)
		r.run(ctx, messages, events)
	}()
	return events
}

func (r *LoopRunner) run(ctx context.Context, messages []providers.Message, events chan<- LoopEvent) {
	emit := func(ev LoopEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var transcript []providers.Message
	var roundText strings.Builder
	var finalContent string

	round := 0
	for round < r.opts.MaxRounds {
		round++
		if !emit(LoopEvent{State: StateThinking, Round: round}) {
			return
		}

		// Per-round text reset: final output reflects only the last
		// round's narrative.
		roundText.Reset()
		streamed := false
		onDelta := func(delta string) {
			streamed = true
			roundText.WriteString(delta)
			emit(LoopEvent{State: StateStreaming, Round: round, Delta: delta})
		}

		// A retried attempt starts the round's text over so a partial
		// stream from a failed attempt never leaks into the output.
		onReset := func() {
			roundText.Reset()
			streamed = false
		}

		response, err := r.callWithRetry(ctx, messages, round, onDelta, onReset)
		if err != nil {
			logger.ErrorCF("loop", "Provider call failed, turn aborted",
				map[string]interface{}{"round": round, "error": err.Error()})
			emit(LoopEvent{
				State:      StateError,
				Round:      round,
				Content:    FallbackMessage,
				Transcript: transcript,
				Err:        err,
			})
			return
		}
		if !streamed && response.Content != "" {
			roundText.WriteString(response.Content)
			if !emit(LoopEvent{State: StateStreaming, Round: round, Delta: response.Content}) {
				return
			}
		}
		finalContent = strings.TrimSpace(roundText.String())

		if len(response.ToolCalls) == 0 {
			break
		}

		logger.InfoCF("loop", "Provider requested tool calls",
			map[string]interface{}{"round": round, "count": len(response.ToolCalls)})

		assistantMsg := providers.Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		}
		messages = append(messages, assistantMsg)
		transcript = append(transcript, assistantMsg)

		for _, tc := range response.ToolCalls {
			if !emit(LoopEvent{State: StateToolExecuting, Round: round, ToolName: tc.Name}) {
				return
			}
			result := r.tools.Execute(ctx, tc.Name, tc.Arguments)
			content := result.ForLLM
			if content == "" && result.Err != nil {
				content = result.Err.Error()
			}
			if result.IsError {
				content = fmt.Sprintf("Error: %s", content)
			}
			toolMsg := providers.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: tc.ID,
			}
			messages = append(messages, toolMsg)
			transcript = append(transcript, toolMsg)
		}

		if !emit(LoopEvent{State: StateContinuing, Round: round}) {
			return
		}
	}

	// Reaching the round cap terminates with whatever text accumulated.
	if finalContent == "" {
		finalContent = DefaultResponse
	}

	clean, commands := widgets.Sanitize(finalContent)
	finalMsg := providers.Message{Role: "assistant", Content: clean}
	transcript = append(transcript, finalMsg)

	emit(LoopEvent{
		State:      StateComplete,
		Round:      round,
		Content:    clean,
		Widgets:    commands,
		Transcript: transcript,
	})
}

// callWithRetry wraps one provider round in capped exponential backoff.
// Only transient signatures are retried; everything else is fatal to the
// turn immediately.
func (r *LoopRunner) callWithRetry(ctx context.Context, messages []providers.Message, round int, onDelta func(string), onReset func()) (*providers.LLMResponse, error) {
	defs := r.tools.ToProviderDefs()
	callOpts := map[string]interface{}{
		"max_tokens":  r.opts.MaxTokens,
		"temperature": r.opts.Temperature,
	}

	var lastErr error
	for attempt := 0; attempt <= r.opts.RetryMax; attempt++ {
		if attempt > 0 {
			delay := r.opts.RetryBase << (attempt - 1)
			logger.WarnCF("loop", "Transient provider error, backing off",
				map[string]interface{}{
					"round":    round,
					"attempt":  attempt,
					"delay_ms": delay.Milliseconds(),
					"error":    lastErr.Error(),
				})
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		if attempt > 0 && onReset != nil {
			onReset()
		}

		var response *providers.LLMResponse
		var err error
		if streaming, ok := r.provider.(providers.StreamingLLMProvider); ok {
			response, err = streaming.ChatStream(ctx, messages, defs, r.opts.Model, callOpts, onDelta)
		} else {
			response, err = r.provider.Chat(ctx, messages, defs, r.opts.Model, callOpts)
		}
		if err == nil {
			return response, nil
		}
		lastErr = err
		if !providers.IsTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("provider retries exhausted: %w", lastErr)
}
