package services

import (
	"MediSlot/metrics"
	"MediSlot/models"
	"MediSlot/repositories"
	"context"
	"time"

	"github.com/pkg/errors"
)

// SlotGenerator materializes a doctor's published workday as slot rows.
type SlotGenerator struct {
	store    repositories.SlotStore
	times    []string
	duration time.Duration
	metrics  *metrics.Metrics
}

// NewSlotGenerator validates the ordered list of "HH:MM:SS" start times.
func NewSlotGenerator(store repositories.SlotStore, times []string, duration time.Duration, m *metrics.Metrics) (*SlotGenerator, error) {
	if len(times) == 0 {
		return nil, errors.New("at least one slot time is required")
	}
	if duration <= 0 {
		return nil, errors.New("slot duration must be positive")
	}
	for _, t := range times {
		if _, err := time.Parse(models.TimeLayout, t); err != nil {
			return nil, errors.Wrapf(err, "invalid slot time %q", t)
		}
	}
	return &SlotGenerator{
		store:    store,
		times:    append([]string(nil), times...),
		duration: duration,
		metrics:  m,
	}, nil
}

// Times returns the canonical start times in order.
func (g *SlotGenerator) Times() []string {
	return append([]string(nil), g.times...)
}

// Generate ensures every canonical slot exists for doctorID on date and
// returns how many rows were newly created. Existing rows are left alone, so
// repeated calls are harmless. A storage failure stops the run; rows already
// inserted stay.
func (g *SlotGenerator) Generate(ctx context.Context, doctorID uint, date time.Time) (int, error) {
	day := date.Format(models.DateLayout)
	created := 0
	for _, start := range g.times {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		slot := &models.Slot{
			DoctorID:  doctorID,
			Date:      day,
			StartTime: start,
			EndTime:   g.endOf(start),
			Status:    models.SlotAvailable,
		}
		inserted, err := g.store.InsertSlot(ctx, slot)
		if err != nil {
			g.metrics.GenerationFailures.Inc()
			return created, errors.Wrapf(err, "generate slots for doctor %d on %s", doctorID, day)
		}
		if inserted {
			created++
		}
	}
	g.metrics.SlotsGenerated.Add(float64(created))
	return created, nil
}

func (g *SlotGenerator) endOf(start string) string {
	t, _ := time.Parse(models.TimeLayout, start)
	end := t.Add(g.duration)
	if end.Day() != t.Day() {
		return "23:59:59"
	}
	return end.Format(models.TimeLayout)
}
