package models

import (
	"time"
)

// SlotStatus is the availability of a slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentBooked    AppointmentStatus = "booked"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCanceled  AppointmentStatus = "canceled"
)

// Date and time layouts used for every stored value.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Slot model. One row per (doctor, date, start time); rows are never deleted.
type Slot struct {
	ID        uint       `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	DoctorID  uint       `gorm:"column:doctor_id;not null;uniqueIndex:idx_slot_doctor_date_time,priority:1" json:"doctor_id"`
	Date      string     `gorm:"column:slot_date;type:varchar(10);not null;uniqueIndex:idx_slot_doctor_date_time,priority:2;index" json:"date"`
	StartTime string     `gorm:"column:start_time;type:varchar(8);not null;uniqueIndex:idx_slot_doctor_date_time,priority:3" json:"start_time"`
	EndTime   string     `gorm:"column:end_time;type:varchar(8);not null" json:"end_time"`
	Status    SlotStatus `gorm:"column:status;type:varchar(16);check:status IN ('available', 'booked');not null;default:'available';index" json:"status"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Slot) TableName() string {
	return "slot"
}

// IsAvailable reports whether the slot can be booked.
func (s *Slot) IsAvailable() bool {
	return s.Status == SlotAvailable
}

// Appointment model. SlotID is the owned reference to the reserved slot; the
// partial unique index keeps at most one live appointment per slot.
type Appointment struct {
	ID        uint              `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	SlotID    uint              `gorm:"column:slot_id;not null;uniqueIndex:idx_appointment_active_slot,where:status <> 'canceled'" json:"slot_id"`
	DoctorID  uint              `gorm:"column:doctor_id;not null;index" json:"doctor_id"`
	PatientID uint              `gorm:"column:patient_id;not null;index" json:"patient_id"`
	Date      string            `gorm:"column:appointment_date;type:varchar(10);not null;index" json:"date"`
	Time      string            `gorm:"column:appointment_time;type:varchar(8);not null" json:"time"`
	Details   string            `gorm:"column:details;type:text" json:"details"`
	Status    AppointmentStatus `gorm:"column:status;type:varchar(16);check:status IN ('booked', 'completed', 'canceled');not null;index" json:"status"`
	Notified  bool              `gorm:"column:notified;not null;default:false" json:"notified"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	Slot      *Slot             `gorm:"foreignKey:SlotID;references:ID" json:"-"`
}

func (Appointment) TableName() string {
	return "appointment"
}

// IsActive reports whether the appointment still holds its slot.
func (a *Appointment) IsActive() bool {
	return a.Status != AppointmentCanceled
}
