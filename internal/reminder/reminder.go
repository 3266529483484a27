// Package reminder turns a profile into a daily drinking schedule and fires it with cron.
package reminder

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/limbo/hydrosync/internal/metrics"
	"github.com/limbo/hydrosync/pkg/entity"
)

const (
	minReminders = 1
	maxReminders = 16
)

type Kind string

const (
	KindReminder Kind = "reminder"
	KindGoal     Kind = "goal"
)

type Notification struct {
	Kind  Kind
	Title string
	Body  string
}

// Reminder is one slot of the daily plan.
type Reminder struct {
	Clock  string
	Volume int
}

func (r Reminder) cronSpec() (string, error) {
	t, err := time.Parse(entity.ClockFormat, r.Clock)
	if err != nil {
		return "", fmt.Errorf("bad reminder clock %q: %w", r.Clock, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// PlanReminders spreads ceil(goal/cup) reminders evenly from wake-up time towards bed time.
// A bed time at or before the wake-up time is taken to be on the next day. Profiles that
// haven't finished onboarding get no reminders.
func PlanReminders(p entity.Profile) []Reminder {
	if !p.IsCompleted {
		return nil
	}
	wake, err := time.Parse(entity.ClockFormat, p.WakeUpTime)
	if err != nil {
		return nil
	}
	bed, err := time.Parse(entity.ClockFormat, p.BedTime)
	if err != nil {
		return nil
	}
	if !bed.After(wake) {
		bed = bed.Add(24 * time.Hour)
	}
	cup := p.CupSize
	if cup <= 0 {
		cup = entity.DefaultCupSize
	}
	goal := p.DailyGoal
	if goal <= 0 {
		goal = entity.DefaultDailyGoal
	}
	count := int(math.Ceil(float64(goal) / float64(cup)))
	count = min(max(count, minReminders), maxReminders)

	step := bed.Sub(wake) / time.Duration(count)
	plan := make([]Reminder, 0, count)
	for i := range count {
		at := wake.Add(step * time.Duration(i)).Truncate(time.Minute)
		plan = append(plan, Reminder{
			Clock:  at.Format(entity.ClockFormat),
			Volume: cup,
		})
	}
	return plan
}

type Options struct {
	Location *time.Location
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	Now      func() time.Time
}

// Scheduler keeps cron entries in line with the latest profile. It satisfies the
// notifier the hydration service reports profile changes and goals to.
type Scheduler struct {
	cron    *cron.Cron
	deliver func(Notification)
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries []cron.EntryID
	planned []Reminder
	// day on which the goal was reached, reminders stay quiet until it changes
	goalDate string
}

func New(deliver func(Notification), opts Options) *Scheduler {
	if deliver == nil {
		deliver = func(Notification) {}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.With(slog.String("component", "reminder"))
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		deliver: deliver,
		metrics: opts.Metrics,
		logger:  logger,
		now:     opts.Now,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for running deliveries.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) Planned() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Reminder(nil), s.planned...)
}

func (s *Scheduler) ProfileChanged(p entity.Profile) {
	plan := PlanReminders(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = s.entries[:0]
	s.planned = s.planned[:0]
	for _, r := range plan {
		spec, err := r.cronSpec()
		if err != nil {
			s.logger.Error("skipping reminder", slog.String("error", err.Error()))
			continue
		}
		id, err := s.cron.AddFunc(spec, func() { s.fire(r) })
		if err != nil {
			s.logger.Error("failed to schedule reminder", slog.String("clock", r.Clock), slog.String("error", err.Error()))
			continue
		}
		s.entries = append(s.entries, id)
		s.planned = append(s.planned, r)
	}
	s.metrics.SetRemindersScheduled(len(s.planned))
	s.logger.Debug("reminders rescheduled", slog.Int("count", len(s.planned)))
}

func (s *Scheduler) GoalAchieved(p entity.Profile) {
	s.mu.Lock()
	s.goalDate = s.now().Format(entity.DateFormat)
	s.mu.Unlock()
	s.deliver(Notification{
		Kind:  KindGoal,
		Title: "Daily goal reached",
		Body:  fmt.Sprintf("You drank %d ml of your %d ml goal today", p.DailyIntake, p.DailyGoal),
	})
}

func (s *Scheduler) fire(r Reminder) {
	s.mu.Lock()
	quiet := s.goalDate == s.now().Format(entity.DateFormat)
	s.mu.Unlock()
	if quiet {
		return
	}
	s.deliver(Notification{
		Kind:  KindReminder,
		Title: "Time to drink water",
		Body:  fmt.Sprintf("Have a %d ml cup", r.Volume),
	})
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err.Error())...)
}
