package safety

import (
	"strings"
	"time"

	"github.com/havenapp/haven/pkg/logger"
)

// CrisisLevel is the ordered severity classification of a user message.
// The zero value is LevelNone; ordering is total and comparisons on the
// underlying int are meaningful.
type CrisisLevel int

const (
	LevelNone CrisisLevel = iota
	LevelMonitor
	LevelConcern
	LevelUrgent
	LevelEmergency
)

func (l CrisisLevel) String() string {
	switch l {
	case LevelMonitor:
		return "monitor"
	case LevelConcern:
		return "concern"
	case LevelUrgent:
		return "urgent"
	case LevelEmergency:
		return "emergency"
	default:
		return "none"
	}
}

// Action is the dispatch decision mapped from a crisis level.
type Action string

const (
	ActionProceed           Action = "proceed"
	ActionInjectContext     Action = "inject-context"
	ActionShowResources     Action = "show-resources"
	ActionPauseAndConnect   Action = "pause-and-connect"
	ActionEmergencyProtocol Action = "emergency-protocol"
)

// ActionFor maps every level to its action. Total by construction.
func ActionFor(level CrisisLevel) Action {
	switch level {
	case LevelMonitor:
		return ActionInjectContext
	case LevelConcern:
		return ActionShowResources
	case LevelUrgent:
		return ActionPauseAndConnect
	case LevelEmergency:
		return ActionEmergencyProtocol
	default:
		return ActionProceed
	}
}

// BlocksDispatch reports whether the level stops the normal provider path.
// Only emergency does; every other level just annotates the turn.
func (l CrisisLevel) BlocksDispatch() bool {
	return l == LevelEmergency
}

// CrisisAssessment is the gate's verdict on one outbound message.
type CrisisAssessment struct {
	Level             CrisisLevel
	Triggers          []string
	RecommendedAction Action
	Timestamp         time.Time
}

// SignalContext carries the lightweight escalation signals. All fields are
// optional; the zero value disables both adjustments.
type SignalContext struct {
	// RecentVelocity is the caller-computed count of user messages in
	// the recent window (ten minutes by convention).
	RecentVelocity float64
	// Now is the evaluation instant. Device-local time decides the
	// late-night band; zero means time.Now().
	Now time.Time
}

// Gate classifies outbound messages against ordered severity tiers.
// Stateless and safe for concurrent use.
type Gate struct {
	tiers              []tier
	velocityThreshold  float64
	lateNightStartHour int
	lateNightEndHour   int
}

// Options tune the escalation adjustments. Zero values take defaults.
type Options struct {
	VelocityThreshold  float64
	LateNightStartHour int
	LateNightEndHour   int
}

func NewGate(opts Options) *Gate {
	if opts.VelocityThreshold <= 0 {
		opts.VelocityThreshold = 6
	}
	if opts.LateNightStartHour == 0 && opts.LateNightEndHour == 0 {
		opts.LateNightStartHour = 23
		opts.LateNightEndHour = 5
	}
	return &Gate{
		tiers:              defaultTiers,
		velocityThreshold:  opts.VelocityThreshold,
		lateNightStartHour: opts.LateNightStartHour,
		lateNightEndHour:   opts.LateNightEndHour,
	}
}

// Assess classifies one message. It never panics outward: any internal
// fault degrades to LevelNone with a logged warning, so the gate cannot
// become an outage vector. A false negative is worse than a false positive
// here, which is why the tier vocabularies are broad and overlapping.
func (g *Gate) Assess(message string, sctx *SignalContext) (assessment CrisisAssessment) {
	now := time.Now()
	if sctx != nil && !sctx.Now.IsZero() {
		now = sctx.Now
	}
	assessment = CrisisAssessment{
		Level:             LevelNone,
		RecommendedAction: ActionProceed,
		Timestamp:         now,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.WarnCF("safety", "Gate classification fault, degrading to none",
				map[string]interface{}{"panic": r})
			assessment = CrisisAssessment{
				Level:             LevelNone,
				RecommendedAction: ActionProceed,
				Timestamp:         now,
			}
		}
	}()

	normalized := normalize(message)
	if normalized == "" {
		return assessment
	}

	base, triggers := g.classify(normalized)
	level := g.escalate(base, sctx, now)

	assessment.Level = level
	assessment.Triggers = triggers
	assessment.RecommendedAction = ActionFor(level)
	return assessment
}

// classify walks tiers from highest severity down and stops at the first
// match. Lower-tier cues in the same text never downgrade the result.
func (g *Gate) classify(normalized string) (CrisisLevel, []string) {
	for _, t := range g.tiers {
		var triggers []string
		for _, phrase := range t.phrases {
			if strings.Contains(normalized, phrase) {
				triggers = append(triggers, phrase)
			}
		}
		for _, re := range t.patterns {
			if re.MatchString(normalized) {
				triggers = append(triggers, re.String())
			}
		}
		if len(triggers) > 0 {
			return t.level, triggers
		}
	}
	return LevelNone, nil
}

// escalate applies the post-classification adjustments. Both only ever
// raise severity, never lower it.
func (g *Gate) escalate(base CrisisLevel, sctx *SignalContext, now time.Time) CrisisLevel {
	level := base
	if sctx == nil {
		return level
	}

	if sctx.RecentVelocity > g.velocityThreshold {
		switch level {
		case LevelNone:
			level = LevelMonitor
		case LevelMonitor:
			level = LevelConcern
		}
	}

	if g.isLateNight(now.Hour()) && (level == LevelMonitor || level == LevelConcern) {
		level++
	}

	if level < base {
		level = base
	}
	return level
}

func (g *Gate) isLateNight(hour int) bool {
	start, end := g.lateNightStartHour, g.lateNightEndHour
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	// Band wraps midnight, e.g. 23..5.
	return hour >= start || hour < end
}

func normalize(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}
