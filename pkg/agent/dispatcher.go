package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/havenapp/haven/pkg/bus"
	"github.com/havenapp/haven/pkg/logger"
	"github.com/havenapp/haven/pkg/providers"
	"github.com/havenapp/haven/pkg/safety"
	"github.com/havenapp/haven/pkg/session"
	"github.com/havenapp/haven/pkg/widgets"
)

// velocityWindow is the lookback used to count recent user messages for the
// gate's velocity signal.
const velocityWindow = 10 * time.Minute

// TurnResult is what one dispatched turn hands back to the caller.
type TurnResult struct {
	SessionID  string
	Content    string
	Widgets    []widgets.Command
	Assessment safety.CrisisAssessment
	State      LoopState
}

// Dispatcher wires the pipeline for each inbound utterance: resolve the
// session, run the safety gate, assemble context, drive the loop runner,
// persist the transcript.
type Dispatcher struct {
	sessions         *session.Manager
	gate             *safety.Gate
	contextBuilder   *ContextBuilder
	runner           *LoopRunner
	bus              *bus.MessageBus
	emergencyContact string
	running          atomic.Bool
}

func NewDispatcher(sessions *session.Manager, gate *safety.Gate, cb *ContextBuilder, runner *LoopRunner, msgBus *bus.MessageBus, emergencyContact string) *Dispatcher {
	return &Dispatcher{
		sessions:         sessions,
		gate:             gate,
		contextBuilder:   cb,
		runner:           runner,
		bus:              msgBus,
		emergencyContact: emergencyContact,
	}
}

// Run consumes inbound bus messages until ctx is cancelled or Stop is
// called. Each message is one full dispatched turn.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.running.Store(true)

	for d.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
			msg, ok := d.bus.ConsumeInbound(ctx)
			if !ok {
				continue
			}

			result, err := d.Process(ctx, msg.SessionKey, msg.Content)
			content := ""
			if err != nil {
				logger.ErrorCF("dispatch", "Turn failed",
					map[string]interface{}{"error": err.Error()})
				content = FallbackMessage
			} else {
				content = result.Content
			}

			d.bus.PublishOutbound(bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: content,
			})
		}
	}
	return nil
}

func (d *Dispatcher) Stop() {
	d.running.Store(false)
}

// Process runs one turn. An empty sessionID resumes today's session or
// creates a fresh one.
func (d *Dispatcher) Process(ctx context.Context, sessionID, content string) (*TurnResult, error) {
	s, err := d.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	assessment := d.gate.Assess(content, &safety.SignalContext{
		RecentVelocity: recentVelocity(s.Messages, now),
		Now:            now,
	})

	logger.InfoCF("dispatch", "Message assessed",
		map[string]interface{}{
			"session": s.ID,
			"level":   assessment.Level.String(),
			"action":  string(assessment.RecommendedAction),
		})

	s.Append(session.Message{
		Role:      session.RoleUser,
		Content:   content,
		Timestamp: now,
	})

	if assessment.Level.BlocksDispatch() {
		reply := emergencyReply(d.emergencyContact)
		s.Append(session.Message{
			Role:      session.RoleAssistant,
			Content:   reply,
			Timestamp: time.Now(),
		})
		if err := d.sessions.Save(ctx, s); err != nil {
			logger.ErrorCF("dispatch", "Failed to persist emergency turn",
				map[string]interface{}{"session": s.ID, "error": err.Error()})
		}
		return &TurnResult{
			SessionID:  s.ID,
			Content:    reply,
			Assessment: assessment,
			State:      StateComplete,
		}, nil
	}

	// History excludes the just-appended user message; the builder places
	// the current message itself.
	history := s.Messages[:s.MessageCount()-1]
	cw := d.contextBuilder.Build(ctx, content, history)
	messages := d.contextBuilder.BuildMessages(cw, safetyNotes(assessment, d.emergencyContact)...)

	var final LoopEvent
	for ev := range d.runner.Run(ctx, messages) {
		if ev.State.Terminal() {
			final = ev
		}
	}
	if ctx.Err() != nil && final.State == "" {
		return nil, ctx.Err()
	}

	appendTranscript(s, final.Transcript)
	if final.State == StateError {
		// The fallback reply goes to the user, so it belongs in the
		// session history too.
		s.Append(session.Message{
			Role:      session.RoleAssistant,
			Content:   final.Content,
			Timestamp: time.Now(),
		})
	}
	if err := d.sessions.Save(ctx, s); err != nil {
		logger.ErrorCF("dispatch", "Failed to persist turn",
			map[string]interface{}{"session": s.ID, "error": err.Error()})
	}

	return &TurnResult{
		SessionID:  s.ID,
		Content:    final.Content,
		Widgets:    final.Widgets,
		Assessment: assessment,
		State:      final.State,
	}, nil
}

func (d *Dispatcher) resolveSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID != "" {
		s, err := d.sessions.Resume(ctx, sessionID)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("resume session %s: %w", sessionID, err)
		}
		logger.InfoCF("dispatch", "Session absent, creating fresh",
			map[string]interface{}{"session": sessionID})
		return d.sessions.Create(), nil
	}

	s, err := d.sessions.TodaySession(ctx)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("find today session: %w", err)
	}
	return d.sessions.Create(), nil
}

// recentVelocity counts user messages inside the lookback window.
func recentVelocity(messages []session.Message, now time.Time) float64 {
	cutoff := now.Add(-velocityWindow)
	count := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Timestamp.Before(cutoff) {
			break
		}
		if messages[i].Role == session.RoleUser {
			count++
		}
	}
	return float64(count)
}

// safetyNotes translates the gate's action into system prompt annotations.
// Emergency never reaches here; it blocks dispatch upstream.
func safetyNotes(assessment safety.CrisisAssessment, emergencyContact string) []string {
	switch assessment.RecommendedAction {
	case safety.ActionInjectContext:
		return []string{"## Safety note\nThe user may be struggling right now. Check in gently before anything else."}
	case safety.ActionShowResources:
		return []string{
			"## Safety note\nThe user shows signs of distress. Acknowledge it directly, respond with extra care, and mention that support lines exist if things get heavier.",
		}
	case safety.ActionPauseAndConnect:
		return []string{
			"## Safety note\nThe user may be in crisis. Slow down, stay with them, and share these resources in your own words:\n" + resourceLines(emergencyContact),
		}
	default:
		return nil
	}
}

func emergencyReply(emergencyContact string) string {
	var b strings.Builder
	b.WriteString("I'm really glad you told me. What you're feeling matters, and you don't have to face it alone.\n\n")
	b.WriteString("Please reach out to someone right now:\n")
	b.WriteString(resourceLines(emergencyContact))
	b.WriteString("\n\nIf you're in immediate danger, call 911. I'm here when you're ready to talk.")
	return b.String()
}

func resourceLines(emergencyContact string) string {
	bundle := safety.Resources(emergencyContact)
	var b strings.Builder
	for _, r := range bundle.Resources {
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Contact)
	}
	if bundle.EmergencyContact != "" {
		fmt.Fprintf(&b, "- Your emergency contact: %s\n", bundle.EmergencyContact)
	}
	return strings.TrimRight(b.String(), "\n")
}

// appendTranscript converts the runner's provider messages into session
// messages. Only assistant and tool entries appear in a transcript.
func appendTranscript(s *session.Session, transcript []providers.Message) {
	for _, msg := range transcript {
		role := session.Role(msg.Role)
		if msg.Role == "tool" {
			role = session.RoleToolResult
		}
		entry := session.Message{
			Role:       role,
			Content:    msg.Content,
			Timestamp:  time.Now(),
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			entry.ToolCalls = append(entry.ToolCalls, session.ToolCall{
				ID:    tc.ID,
				Name:  tc.Name,
				Input: tc.Arguments,
			})
		}
		s.Append(entry)
	}
}
