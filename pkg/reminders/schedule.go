package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/havenapp/haven/pkg/bus"
	"github.com/havenapp/haven/pkg/config"
	"github.com/havenapp/haven/pkg/logger"
)

// Scheduler publishes a daily check-in prompt onto the bus when the
// configured cron expression fires and no session has happened yet that day.
type Scheduler struct {
	cfg   config.RemindersConfig
	bus   *bus.MessageBus
	gron  *gronx.Gronx
	clock func() time.Time
}

func NewScheduler(cfg config.RemindersConfig, msgBus *bus.MessageBus) (*Scheduler, error) {
	g := gronx.New()
	if cfg.CheckInCron == "" {
		cfg.CheckInCron = "0 9 * * *"
	}
	if !g.IsValid(cfg.CheckInCron) {
		return nil, fmt.Errorf("invalid check-in cron expression: %q", cfg.CheckInCron)
	}
	return &Scheduler{
		cfg:   cfg,
		bus:   msgBus,
		gron:  g,
		clock: time.Now,
	}, nil
}

// Due reports whether the check-in should fire at the given instant.
func (s *Scheduler) Due(at time.Time) (bool, error) {
	return s.gron.IsDue(s.cfg.CheckInCron, at)
}

// NextTick returns the next instant the check-in fires after from.
func (s *Scheduler) NextTick(from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.cfg.CheckInCron, from, false)
}

// ShouldPrompt decides whether a check-in prompt is warranted: the schedule
// is due and the user hasn't already had a session today.
func (s *Scheduler) ShouldPrompt(at time.Time, lastSessionDay time.Time) (bool, error) {
	due, err := s.Due(at)
	if err != nil || !due {
		return false, err
	}
	if sameDay(at, lastSessionDay) {
		return false, nil
	}
	return true, nil
}

// Run polls the schedule once a minute and publishes a check-in message
// when due. hadSessionToday is consulted at fire time.
func (s *Scheduler) Run(ctx context.Context, hadSessionToday func(context.Context) bool) {
	if !s.cfg.Enabled {
		return
	}
	logger.InfoCF("reminders", "Check-in scheduler started",
		map[string]interface{}{"cron": s.cfg.CheckInCron})

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.clock()
			due, err := s.Due(now)
			if err != nil {
				logger.WarnCF("reminders", "Schedule evaluation failed",
					map[string]interface{}{"error": err.Error()})
				continue
			}
			if !due || hadSessionToday(ctx) {
				continue
			}
			s.bus.PublishInbound(bus.InboundMessage{
				Channel:  "reminder",
				SenderID: "scheduler",
				ChatID:   "checkin",
				Content:  s.checkInContent(),
			})
		}
	}
}

func (s *Scheduler) checkInContent() string {
	label := s.cfg.CheckInLabel
	if label == "" {
		label = "daily check-in"
	}
	return fmt.Sprintf("It's time for the %s. Ask the user how they're doing today and whether they'd like to log their mood.", label)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
