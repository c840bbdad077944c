package services

import (
	"MediSlot/apperrors"
	"MediSlot/metrics"
	"MediSlot/models"
	"MediSlot/repositories"
	"MediSlot/utils"
	"context"
	stderrors "errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog/log"
)

// errSlotMissing means no slot row exists yet for the requested doctor/date/time.
var errSlotMissing = stderrors.New("slot row missing")

// BookingRequest is the input of a booking.
type BookingRequest struct {
	DoctorIdentifier  string `json:"doctorIdentifier"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	PatientIdentifier string `json:"patientIdentifier"`
	Details           string `json:"details"`
}

func (r BookingRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DoctorIdentifier, validation.Required),
		validation.Field(&r.Date, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&r.Time, validation.Required),
		validation.Field(&r.PatientIdentifier, validation.Required),
		validation.Field(&r.Details, validation.Length(0, 2000)),
	)
}

// BookingService reserves slots for patients.
type BookingService struct {
	store     repositories.SlotStore
	generator *SlotGenerator
	directory Directory
	notifier  Notifier
	cache     SlotCache
	cacheTTL  time.Duration
	window    int
	clock     Clock
	metrics   *metrics.Metrics
}

type BookingDeps struct {
	Store     repositories.SlotStore
	Generator *SlotGenerator
	Directory Directory
	Notifier  Notifier
	// Cache is optional.
	Cache    SlotCache
	CacheTTL time.Duration

	// MaxAdvanceDays is how many days past today can be booked. Zero disables the limit.
	MaxAdvanceDays int
	Clock          Clock
	Metrics        *metrics.Metrics
}

func NewBookingService(deps BookingDeps) *BookingService {
	return &BookingService{
		store:     deps.Store,
		generator: deps.Generator,
		directory: deps.Directory,
		notifier:  deps.Notifier,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		window:    deps.MaxAdvanceDays,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
	}
}

// Book reserves the requested slot for the patient. At most one concurrent
// caller can win a given slot; the others get ErrSlotUnavailable.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*models.Appointment, error) {
	start := time.Now()
	appointment, err := s.book(ctx, req)
	s.metrics.BookingDuration.Observe(time.Since(start).Seconds())
	s.metrics.BookingsTotal.WithLabelValues(outcomeOf(err)).Inc()
	if err != nil {
		return nil, err
	}

	invalidateSlots(ctx, s.cache, appointment.DoctorID, appointment.Date)
	notifyAsync(s.notifier, s.metrics, appointment.DoctorID,
		"New appointment booked",
		fmt.Sprintf("A patient booked an appointment on %s at %s.\nDetails: %s", appointment.Date, appointment.Time, appointment.Details),
	)
	log.Info().
		Uint("appointment_id", appointment.ID).
		Uint("doctor_id", appointment.DoctorID).
		Str("date", appointment.Date).
		Str("appointment_time", appointment.Time).
		Msg("Appointment booked")
	return appointment, nil
}

func (s *BookingService) book(ctx context.Context, req BookingRequest) (*models.Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	date, err := s.bookableDate(req.Date)
	if err != nil {
		return nil, err
	}
	doctorID, err := s.directory.ResolveDoctor(ctx, req.DoctorIdentifier)
	if err != nil {
		return nil, err
	}
	patientID, err := s.directory.ResolvePatient(ctx, req.PatientIdentifier)
	if err != nil {
		return nil, err
	}
	slotTime, err := utils.NormalizeTime(req.Time)
	if err != nil {
		return nil, err
	}

	draft := models.Appointment{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      date.Format(models.DateLayout),
		Time:      slotTime,
		Details:   req.Details,
		Status:    models.AppointmentBooked,
	}

	appointment, err := s.reserve(ctx, draft)
	if stderrors.Is(err, errSlotMissing) {
		// Slots for this day were never generated; create them and try once more.
		if _, genErr := s.generator.Generate(ctx, doctorID, date); genErr != nil {
			return nil, genErr
		}
		appointment, err = s.reserve(ctx, draft)
	}
	if stderrors.Is(err, errSlotMissing) {
		return nil, apperrors.SlotUnavailable(fmt.Sprintf("no slot at %s %s", draft.Date, draft.Time))
	}
	return appointment, err
}

// reserve locks the slot row, checks it is free and records the appointment
// in one transaction.
func (s *BookingService) reserve(ctx context.Context, draft models.Appointment) (*models.Appointment, error) {
	var booked *models.Appointment
	err := s.store.InTx(ctx, func(tx repositories.SlotTx) error {
		slot, err := tx.LockSlot(ctx, draft.DoctorID, draft.Date, draft.Time)
		if err != nil {
			return err
		}
		if slot == nil {
			return errSlotMissing
		}
		if !slot.IsAvailable() {
			return apperrors.SlotUnavailable(fmt.Sprintf("slot %s %s is already booked", draft.Date, draft.Time))
		}

		appointment := draft
		appointment.SlotID = slot.ID
		if err := tx.CreateAppointment(ctx, &appointment); err != nil {
			return err
		}
		if err := tx.SetSlotStatus(ctx, slot.ID, models.SlotBooked); err != nil {
			return err
		}
		booked = &appointment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booked, nil
}

// bookableDate parses value and rejects days before today or past the booking window.
func (s *BookingService) bookableDate(value string) (time.Time, error) {
	today := s.clock.Today()
	date, err := utils.ParseDate(value, today.Location())
	if err != nil {
		return time.Time{}, err
	}
	if date.Before(today) {
		return time.Time{}, apperrors.Validation(fmt.Sprintf("date %s is in the past", value))
	}
	if err := s.withinWindow(date, today); err != nil {
		return time.Time{}, err
	}
	return date, nil
}

func (s *BookingService) withinWindow(date, today time.Time) error {
	if s.window <= 0 {
		return nil
	}
	last := today.AddDate(0, 0, s.window)
	if date.After(last) {
		return apperrors.Validation(fmt.Sprintf("date %s is more than %d days ahead", date.Format(models.DateLayout), s.window))
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case stderrors.Is(err, apperrors.ErrSlotUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
