package services

import (
	"MediSlot/apperrors"
	"MediSlot/metrics"
	"MediSlot/models"
	"MediSlot/repositories"
	"MediSlot/utils"
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog/log"
)

// RescheduleRequest is the target of a reschedule.
type RescheduleRequest struct {
	NewDate string `json:"newDate"`
	NewTime string `json:"newTime"`
}

func (r RescheduleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewDate, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&r.NewTime, validation.Required),
	)
}

// LifecycleService moves appointments between states while keeping the
// status of the slots they hold in step.
type LifecycleService struct {
	store    repositories.SlotStore
	notifier Notifier
	cache    SlotCache
	clock    Clock
	metrics  *metrics.Metrics
}

func NewLifecycleService(store repositories.SlotStore, notifier Notifier, cache SlotCache, clock Clock, m *metrics.Metrics) *LifecycleService {
	return &LifecycleService{store: store, notifier: notifier, cache: cache, clock: clock, metrics: m}
}

// Get returns one appointment.
func (s *LifecycleService) Get(ctx context.Context, id uint) (*models.Appointment, error) {
	appointment, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("appointment %d", id))
	}
	return appointment, nil
}

func (s *LifecycleService) ListForPatient(ctx context.Context, patientID uint) ([]models.Appointment, error) {
	return s.store.ListAppointments(ctx, repositories.AppointmentFilter{PatientID: patientID})
}

// ListForDoctor lists a doctor's appointments, optionally on a single date.
func (s *LifecycleService) ListForDoctor(ctx context.Context, doctorID uint, date string) ([]models.Appointment, error) {
	if date != "" {
		if _, err := utils.ParseDate(date, time.UTC); err != nil {
			return nil, err
		}
	}
	return s.store.ListAppointments(ctx, repositories.AppointmentFilter{DoctorID: doctorID, Date: date})
}

// Cancel releases the appointment's slot and marks the appointment canceled.
// The row is kept for history. Canceling an already canceled appointment
// returns it unchanged.
func (s *LifecycleService) Cancel(ctx context.Context, id uint) (*models.Appointment, error) {
	var canceled *models.Appointment
	var repeated bool
	err := s.store.InTx(ctx, func(tx repositories.SlotTx) error {
		current, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if current != nil && current.Status == models.AppointmentCanceled {
			canceled, repeated = current, true
			return nil
		}
		appointment, err := checkBooked(current, id)
		if err != nil {
			return err
		}
		slot, err := tx.LockSlotByID(ctx, appointment.SlotID)
		if err != nil {
			return err
		}
		if slot != nil {
			if err := tx.SetSlotStatus(ctx, slot.ID, models.SlotAvailable); err != nil {
				return err
			}
		}
		appointment.Status = models.AppointmentCanceled
		if err := tx.SaveAppointment(ctx, appointment); err != nil {
			return err
		}
		canceled = appointment
		return nil
	})
	if err != nil {
		return nil, err
	}
	if repeated {
		return canceled, nil
	}

	s.metrics.CancellationsTotal.Inc()
	invalidateSlots(ctx, s.cache, canceled.DoctorID, canceled.Date)
	notifyAsync(s.notifier, s.metrics, canceled.DoctorID,
		"Appointment canceled",
		fmt.Sprintf("The appointment on %s at %s was canceled.", canceled.Date, canceled.Time),
	)
	log.Info().Uint("appointment_id", id).Msg("Appointment canceled")
	return canceled, nil
}

// Reschedule moves a booked appointment to another slot of the same doctor.
// Either both slot changes and the appointment update commit, or nothing does.
func (s *LifecycleService) Reschedule(ctx context.Context, id uint, req RescheduleRequest) (*models.Appointment, error) {
	moved, previous, err := s.reschedule(ctx, id, req)
	s.metrics.ReschedulesTotal.WithLabelValues(outcomeOf(err)).Inc()
	if err != nil {
		return nil, err
	}

	invalidateSlots(ctx, s.cache, moved.DoctorID, previous.Date)
	if previous.Date != moved.Date {
		invalidateSlots(ctx, s.cache, moved.DoctorID, moved.Date)
	}
	notifyAsync(s.notifier, s.metrics, moved.DoctorID,
		"Appointment rescheduled",
		fmt.Sprintf("The appointment on %s at %s moved to %s at %s.", previous.Date, previous.Time, moved.Date, moved.Time),
	)
	log.Info().
		Uint("appointment_id", id).
		Str("from", previous.Date+" "+previous.Time).
		Str("to", moved.Date+" "+moved.Time).
		Msg("Appointment rescheduled")
	return moved, nil
}

func (s *LifecycleService) reschedule(ctx context.Context, id uint, req RescheduleRequest) (*models.Appointment, slotKey, error) {
	if err := req.Validate(); err != nil {
		return nil, slotKey{}, apperrors.Validation(err.Error())
	}
	today := s.clock.Today()
	date, err := utils.ParseDate(req.NewDate, today.Location())
	if err != nil {
		return nil, slotKey{}, err
	}
	if date.Before(today) {
		return nil, slotKey{}, apperrors.Validation(fmt.Sprintf("date %s is in the past", req.NewDate))
	}
	newTime, err := utils.NormalizeTime(req.NewTime)
	if err != nil {
		return nil, slotKey{}, err
	}
	target := slotKey{Date: date.Format(models.DateLayout), Time: newTime}

	var moved *models.Appointment
	var previous slotKey
	err = s.store.InTx(ctx, func(tx repositories.SlotTx) error {
		appointment, err := lockBooked(ctx, tx, id)
		if err != nil {
			return err
		}
		previous = slotKey{Date: appointment.Date, Time: appointment.Time}
		if previous == target {
			return apperrors.Validation("appointment already holds this slot")
		}

		var oldSlot, newSlot *models.Slot
		lockOld := func() error {
			oldSlot, err = tx.LockSlotByID(ctx, appointment.SlotID)
			return err
		}
		lockNew := func() error {
			newSlot, err = tx.LockSlot(ctx, appointment.DoctorID, target.Date, target.Time)
			return err
		}
		// Always lock the earlier slot first so two opposite reschedules cannot deadlock.
		first, second := lockOld, lockNew
		if target.before(previous) {
			first, second = lockNew, lockOld
		}
		if err := first(); err != nil {
			return err
		}
		if err := second(); err != nil {
			return err
		}

		if newSlot == nil || !newSlot.IsAvailable() {
			return apperrors.SlotUnavailable(fmt.Sprintf("slot %s %s is not available", target.Date, target.Time))
		}
		if oldSlot != nil {
			if err := tx.SetSlotStatus(ctx, oldSlot.ID, models.SlotAvailable); err != nil {
				return err
			}
		}
		if err := tx.SetSlotStatus(ctx, newSlot.ID, models.SlotBooked); err != nil {
			return err
		}

		appointment.SlotID = newSlot.ID
		appointment.Date = target.Date
		appointment.Time = target.Time
		appointment.Notified = false
		if err := tx.SaveAppointment(ctx, appointment); err != nil {
			return err
		}
		moved = appointment
		return nil
	})
	if err != nil {
		return nil, slotKey{}, err
	}
	return moved, previous, nil
}

// Complete marks a booked appointment as attended. The slot stays booked.
func (s *LifecycleService) Complete(ctx context.Context, id uint) (*models.Appointment, error) {
	var completed *models.Appointment
	err := s.store.InTx(ctx, func(tx repositories.SlotTx) error {
		appointment, err := lockBooked(ctx, tx, id)
		if err != nil {
			return err
		}
		appointment.Status = models.AppointmentCompleted
		if err := tx.SaveAppointment(ctx, appointment); err != nil {
			return err
		}
		completed = appointment
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Uint("appointment_id", id).Msg("Appointment completed")
	return completed, nil
}

func lockBooked(ctx context.Context, tx repositories.SlotTx, id uint) (*models.Appointment, error) {
	appointment, err := tx.LockAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	return checkBooked(appointment, id)
}

func checkBooked(appointment *models.Appointment, id uint) (*models.Appointment, error) {
	if appointment == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("appointment %d", id))
	}
	if appointment.Status != models.AppointmentBooked {
		return nil, apperrors.Conflict(fmt.Sprintf("appointment %d is %s", id, appointment.Status))
	}
	return appointment, nil
}

type slotKey struct {
	Date string
	Time string
}

func (k slotKey) before(other slotKey) bool {
	if k.Date != other.Date {
		return k.Date < other.Date
	}
	return k.Time < other.Time
}
