// Package scheduler runs the background jobs of the booking system: rolling
// slot generation and same-day doctor reminders.
package scheduler

import (
	"MediSlot/metrics"
	"MediSlot/models"
	"MediSlot/repositories"
	"MediSlot/services"
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	generationLockKey = "scheduler:lock:generation"
	reminderLockKey   = "scheduler:lock:reminders"
)

// Locker hands out cluster wide job locks. ok is false when another replica holds key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

type Config struct {
	HorizonDays        int
	GenerationInterval time.Duration
	ReminderHour       int
	ReminderMinute     int
	LockTTL            time.Duration
}

// GenerationReport summarizes one generation run.
type GenerationReport struct {
	Skipped  bool
	Doctors  int
	Created  int
	Failures int
}

// ReminderReport summarizes one reminder run.
type ReminderReport struct {
	Skipped  bool
	Due      int
	Sent     int
	Failures int
}

type Daemon struct {
	cfg       Config
	generator *services.SlotGenerator
	store     repositories.SlotStore
	directory services.Directory
	notifier  services.Notifier
	clock     services.Clock
	locker    Locker
	metrics   *metrics.Metrics
}

type Deps struct {
	Generator *services.SlotGenerator
	Store     repositories.SlotStore
	Directory services.Directory
	Notifier  services.Notifier
	Clock     services.Clock
	// Locker is optional; without it every replica runs every job.
	Locker  Locker
	Metrics *metrics.Metrics
}

func NewDaemon(cfg Config, deps Deps) *Daemon {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 7
	}
	if cfg.GenerationInterval <= 0 {
		cfg.GenerationInterval = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Daemon{
		cfg:       cfg,
		generator: deps.Generator,
		store:     deps.Store,
		directory: deps.Directory,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		locker:    deps.Locker,
		metrics:   deps.Metrics,
	}
}

// Start runs generation immediately and then on every interval, and sends
// reminders at the configured wall clock time. When it starts after today's
// reminder time, today's reminders are sent right away. It blocks until ctx
// is done.
func (d *Daemon) Start(ctx context.Context) {
	log.Info().
		Int("horizon_days", d.cfg.HorizonDays).
		Dur("generation_interval", d.cfg.GenerationInterval).
		Str("reminder_time", fmt.Sprintf("%02d:%02d", d.cfg.ReminderHour, d.cfg.ReminderMinute)).
		Msg("Scheduler started")

	d.generate(ctx)
	if d.reminderMissedToday() {
		log.Info().Msg("Started after reminder time, sending today's reminders now")
		d.remind(ctx)
	}

	generationTicker := time.NewTicker(d.cfg.GenerationInterval)
	defer generationTicker.Stop()
	reminderTimer := time.NewTimer(d.untilNextReminder())
	defer reminderTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return
		case <-generationTicker.C:
			d.generate(ctx)
		case <-reminderTimer.C:
			d.remind(ctx)
			reminderTimer.Reset(d.untilNextReminder())
		}
	}
}

func (d *Daemon) generate(ctx context.Context) {
	if _, err := d.RunGeneration(ctx); err != nil {
		log.Error().Err(err).Msg("Slot generation run failed")
	}
}

func (d *Daemon) remind(ctx context.Context) {
	if _, err := d.RunReminders(ctx); err != nil {
		log.Error().Err(err).Msg("Reminder run failed")
	}
}

// RunGeneration generates slots for every doctor over the horizon starting today.
func (d *Daemon) RunGeneration(ctx context.Context) (GenerationReport, error) {
	return d.GenerateHorizon(ctx, d.cfg.HorizonDays)
}

// GenerateHorizon generates slots for every doctor for days days starting
// today. A failing doctor/date is logged and skipped.
func (d *Daemon) GenerateHorizon(ctx context.Context, days int) (GenerationReport, error) {
	var report GenerationReport
	unlock, ok, err := d.acquire(ctx, generationLockKey)
	if err != nil {
		return report, err
	}
	if !ok {
		log.Info().Msg("Slot generation already running elsewhere, skipping")
		report.Skipped = true
		return report, nil
	}
	defer unlock()

	start := time.Now()
	defer func() {
		d.metrics.SchedulerRunSeconds.WithLabelValues("generation").Observe(time.Since(start).Seconds())
	}()

	doctorIDs, err := d.directory.ListDoctorIDs(ctx)
	if err != nil {
		return report, errors.Wrap(err, "list doctors")
	}
	report.Doctors = len(doctorIDs)

	today := d.clock.Today()
	for _, doctorID := range doctorIDs {
		for offset := 0; offset < days; offset++ {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			date := today.AddDate(0, 0, offset)
			created, err := d.generator.Generate(ctx, doctorID, date)
			report.Created += created
			if err != nil {
				report.Failures++
				log.Error().Err(err).
					Uint("doctor_id", doctorID).
					Str("date", date.Format(models.DateLayout)).
					Msg("Slot generation failed")
			}
		}
	}

	log.Info().
		Int("doctors", report.Doctors).
		Int("created", report.Created).
		Int("failures", report.Failures).
		Msg("Slot generation finished")
	return report, nil
}

// RunReminders notifies doctors of today's booked appointments that were not
// announced yet. An appointment is flagged only after its notification went out.
func (d *Daemon) RunReminders(ctx context.Context) (ReminderReport, error) {
	var report ReminderReport
	unlock, ok, err := d.acquire(ctx, reminderLockKey)
	if err != nil {
		return report, err
	}
	if !ok {
		log.Info().Msg("Reminder run already running elsewhere, skipping")
		report.Skipped = true
		return report, nil
	}
	defer unlock()

	start := time.Now()
	defer func() {
		d.metrics.SchedulerRunSeconds.WithLabelValues("reminders").Observe(time.Since(start).Seconds())
	}()

	today := d.clock.Today().Format(models.DateLayout)
	due, err := d.store.ListDueReminders(ctx, today)
	if err != nil {
		return report, errors.Wrap(err, "list due reminders")
	}
	report.Due = len(due)

	for _, appointment := range due {
		body := fmt.Sprintf("Reminder: you have an appointment today (%s) at %s.", appointment.Date, appointment.Time)
		if appointment.Details != "" {
			body += "\nDetails: " + appointment.Details
		}
		if err := d.notifier.Notify(ctx, appointment.DoctorID, "Appointment reminder", body); err != nil {
			report.Failures++
			d.metrics.NotificationErrors.Inc()
			log.Warn().Err(err).Uint("appointment_id", appointment.ID).Msg("Failed to send reminder")
			continue
		}
		marked, err := d.store.MarkNotified(ctx, appointment.ID)
		if err != nil {
			report.Failures++
			log.Error().Err(err).Uint("appointment_id", appointment.ID).Msg("Failed to flag reminder as sent")
			continue
		}
		if marked {
			report.Sent++
			d.metrics.RemindersSent.Inc()
		}
	}

	log.Info().Int("due", report.Due).Int("sent", report.Sent).Int("failures", report.Failures).Msg("Reminder run finished")
	return report, nil
}

func (d *Daemon) acquire(ctx context.Context, key string) (func(), bool, error) {
	if d.locker == nil {
		return func() {}, true, nil
	}
	unlock, ok, err := d.locker.TryLock(ctx, key, d.cfg.LockTTL)
	if err != nil {
		return nil, false, errors.Wrapf(err, "acquire %s", key)
	}
	return unlock, ok, nil
}

// untilNextReminder is the wait until the next reminder wall clock time.
func (d *Daemon) untilNextReminder() time.Duration {
	now := d.clock.Now()
	next := d.reminderAt(now)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// reminderMissedToday reports whether today's reminder time has already passed.
func (d *Daemon) reminderMissedToday() bool {
	now := d.clock.Now()
	return !now.Before(d.reminderAt(now))
}

func (d *Daemon) reminderAt(now time.Time) time.Time {
	y, m, day := now.Date()
	return time.Date(y, m, day, d.cfg.ReminderHour, d.cfg.ReminderMinute, 0, 0, now.Location())
}
