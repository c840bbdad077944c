package repositories

import (
	"MediSlot/apperrors"
	"MediSlot/models"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SlotStore is the single source of truth for slot availability and the
// appointments that hold slots. All state changes of the booking core go
// through InTx so the row locks taken by a SlotTx live until commit.
type SlotStore interface {
	// InsertSlot inserts slot unless a row for its (doctor, date, start) exists.
	// It reports whether a row was written.
	InsertSlot(ctx context.Context, slot *models.Slot) (bool, error)
	ListSlots(ctx context.Context, doctorID uint, date string) ([]models.Slot, error)
	GetAppointment(ctx context.Context, id uint) (*models.Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error)
	// ListDueReminders returns booked, not yet notified appointments on date.
	ListDueReminders(ctx context.Context, date string) ([]models.Appointment, error)
	// MarkNotified flips the notified flag; false means it was already set.
	MarkNotified(ctx context.Context, id uint) (bool, error)
	InTx(ctx context.Context, fn func(tx SlotTx) error) error
}

// SlotTx is the transaction-scoped view of the store. Lock* methods read with
// intent to write and return (nil, nil) when the row does not exist.
type SlotTx interface {
	LockSlot(ctx context.Context, doctorID uint, date, startTime string) (*models.Slot, error)
	LockSlotByID(ctx context.Context, id uint) (*models.Slot, error)
	LockAppointment(ctx context.Context, id uint) (*models.Appointment, error)
	SetSlotStatus(ctx context.Context, slotID uint, status models.SlotStatus) error
	CreateAppointment(ctx context.Context, appointment *models.Appointment) error
	SaveAppointment(ctx context.Context, appointment *models.Appointment) error
}

// AppointmentFilter narrows ListAppointments. Zero values are ignored.
type AppointmentFilter struct {
	DoctorID  uint
	PatientID uint
	Date      string
	Status    models.AppointmentStatus
	Limit     int
}

type SlotRepository struct {
	db               *gorm.DB
	lockTimeout      time.Duration
	statementTimeout time.Duration
}

func NewSlotRepository(db *gorm.DB, lockTimeout, statementTimeout time.Duration) *SlotRepository {
	return &SlotRepository{db: db, lockTimeout: lockTimeout, statementTimeout: statementTimeout}
}

func (r *SlotRepository) InsertSlot(ctx context.Context, slot *models.Slot) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "doctor_id"}, {Name: "slot_date"}, {Name: "start_time"}},
			DoNothing: true,
		}).
		Create(slot)
	if res.Error != nil {
		return false, apperrors.Classify(res.Error, "insert slot")
	}
	return res.RowsAffected == 1, nil
}

func (r *SlotRepository) ListSlots(ctx context.Context, doctorID uint, date string) ([]models.Slot, error) {
	var slots []models.Slot
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND slot_date = ?", doctorID, date).
		Order("start_time ASC").
		Find(&slots).Error
	if err != nil {
		return nil, apperrors.Classify(err, "list slots")
	}
	return slots, nil
}

func (r *SlotRepository) GetAppointment(ctx context.Context, id uint) (*models.Appointment, error) {
	var appointment models.Appointment
	err := r.db.WithContext(ctx).Take(&appointment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Classify(err, "get appointment")
	}
	return &appointment, nil
}

func (r *SlotRepository) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error) {
	query := r.db.WithContext(ctx).Model(&models.Appointment{})
	if filter.DoctorID != 0 {
		query = query.Where("doctor_id = ?", filter.DoctorID)
	}
	if filter.PatientID != 0 {
		query = query.Where("patient_id = ?", filter.PatientID)
	}
	if filter.Date != "" {
		query = query.Where("appointment_date = ?", filter.Date)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var appointments []models.Appointment
	if err := query.Order("appointment_date ASC, appointment_time ASC").Find(&appointments).Error; err != nil {
		return nil, apperrors.Classify(err, "list appointments")
	}
	return appointments, nil
}

func (r *SlotRepository) ListDueReminders(ctx context.Context, date string) ([]models.Appointment, error) {
	var appointments []models.Appointment
	err := r.db.WithContext(ctx).
		Where("status = ? AND appointment_date = ? AND notified = ?", models.AppointmentBooked, date, false).
		Order("appointment_time ASC").
		Find(&appointments).Error
	if err != nil {
		return nil, apperrors.Classify(err, "list due reminders")
	}
	return appointments, nil
}

func (r *SlotRepository) MarkNotified(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND notified = ?", id, false).
		Update("notified", true)
	if res.Error != nil {
		return false, apperrors.Classify(res.Error, "mark notified")
	}
	return res.RowsAffected == 1, nil
}

// InTx runs fn inside one database transaction. Lock and statement timeouts
// are set transaction-locally so a stuck holder cannot block other bookers
// indefinitely. Any error from fn rolls the transaction back and is returned
// unchanged.
func (r *SlotRepository) InTx(ctx context.Context, fn func(tx SlotTx) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// set_config(..., true) is the preparable equivalent of SET LOCAL.
		if err := tx.Exec(
			"SELECT set_config('lock_timeout', ?, true), set_config('statement_timeout', ?, true)",
			pgDuration(r.lockTimeout), pgDuration(r.statementTimeout),
		).Error; err != nil {
			return err
		}
		fnErr = fn(&slotTx{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return apperrors.Classify(err, "slot transaction")
}

func pgDuration(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

type slotTx struct {
	db *gorm.DB
}

func (t *slotTx) LockSlot(ctx context.Context, doctorID uint, date, startTime string) (*models.Slot, error) {
	var slot models.Slot
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("doctor_id = ? AND slot_date = ? AND start_time = ?", doctorID, date, startTime).
		Take(&slot).Error
	return lockedRow(&slot, err, "lock slot")
}

func (t *slotTx) LockSlotByID(ctx context.Context, id uint) (*models.Slot, error) {
	var slot models.Slot
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&slot).Error
	return lockedRow(&slot, err, "lock slot by id")
}

func (t *slotTx) LockAppointment(ctx context.Context, id uint) (*models.Appointment, error) {
	var appointment models.Appointment
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&appointment).Error
	return lockedRow(&appointment, err, "lock appointment")
}

func (t *slotTx) SetSlotStatus(ctx context.Context, slotID uint, status models.SlotStatus) error {
	res := t.db.WithContext(ctx).
		Model(&models.Slot{}).
		Where("id = ?", slotID).
		Update("status", status)
	if res.Error != nil {
		return apperrors.Classify(res.Error, "set slot status")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound(fmt.Sprintf("slot %d", slotID))
	}
	return nil
}

func (t *slotTx) CreateAppointment(ctx context.Context, appointment *models.Appointment) error {
	if err := t.db.WithContext(ctx).Create(appointment).Error; err != nil {
		return apperrors.Classify(err, "create appointment")
	}
	return nil
}

func (t *slotTx) SaveAppointment(ctx context.Context, appointment *models.Appointment) error {
	if err := t.db.WithContext(ctx).Save(appointment).Error; err != nil {
		return apperrors.Classify(err, "save appointment")
	}
	return nil
}

func lockedRow[T any](row *T, err error, op string) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Classify(err, op)
	}
	return row, nil
}
