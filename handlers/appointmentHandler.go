package handlers

import (
	"MediSlot/apperrors"
	"MediSlot/middlewares"
	"MediSlot/models"
	"MediSlot/services"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Booker interface {
	Book(ctx context.Context, req services.BookingRequest) (*models.Appointment, error)
	AvailableSlots(ctx context.Context, doctorIdentifier, date string) (*services.AvailableSlots, error)
}

type AppointmentLifecycle interface {
	Get(ctx context.Context, id uint) (*models.Appointment, error)
	Cancel(ctx context.Context, id uint) (*models.Appointment, error)
	Reschedule(ctx context.Context, id uint, req services.RescheduleRequest) (*models.Appointment, error)
	Complete(ctx context.Context, id uint) (*models.Appointment, error)
	ListForPatient(ctx context.Context, patientID uint) ([]models.Appointment, error)
	ListForDoctor(ctx context.Context, doctorID uint, date string) ([]models.Appointment, error)
}

// Identity maps the authenticated user to the patient or doctor they act as.
type Identity interface {
	ResolvePatient(ctx context.Context, identity string) (uint, error)
	DoctorIDForUser(ctx context.Context, userID string) (uint, error)
}

type AppointmentHandler struct {
	booking   Booker
	lifecycle AppointmentLifecycle
	identity  Identity
}

func NewAppointmentHandler(booking Booker, lifecycle AppointmentLifecycle, identity Identity) *AppointmentHandler {
	return &AppointmentHandler{booking: booking, lifecycle: lifecycle, identity: identity}
}

// BookAppointment books a slot. Patients always book for themselves; staff
// name the patient in the body.
func (h *AppointmentHandler) BookAppointment(c *gin.Context) {
	var req services.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middlewares.BadRequest(c, "Invalid request body")
		return
	}
	userID, role := caller(c)
	if role == models.RolePatient {
		req.PatientIdentifier = userID
	}

	appointment, err := h.booking.Book(c.Request.Context(), req)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"appointment": appointment}, http.StatusCreated)
}

func (h *AppointmentHandler) AvailableSlots(c *gin.Context) {
	doctor := c.Query("doctorIdentifier")
	if doctor == "" {
		doctor = c.Query("doctorId")
	}
	slots, err := h.booking.AvailableSlots(c.Request.Context(), doctor, c.Query("date"))
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, slots, http.StatusOK)
}

func (h *AppointmentHandler) GetAppointment(c *gin.Context) {
	appointment, ok := h.loadOwned(c)
	if !ok {
		return
	}
	middlewares.RespondJSON(c, gin.H{"appointment": appointment}, http.StatusOK)
}

func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	appointment, ok := h.loadOwned(c)
	if !ok {
		return
	}
	canceled, err := h.lifecycle.Cancel(c.Request.Context(), appointment.ID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"message": "Appointment canceled", "appointment": canceled}, http.StatusOK)
}

func (h *AppointmentHandler) RescheduleAppointment(c *gin.Context) {
	var req services.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middlewares.BadRequest(c, "Invalid request body")
		return
	}
	appointment, ok := h.loadOwned(c)
	if !ok {
		return
	}
	moved, err := h.lifecycle.Reschedule(c.Request.Context(), appointment.ID, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrSlotUnavailable) {
			middlewares.BadRequest(c, "slot unavailable")
			return
		}
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"message": "Appointment rescheduled", "appointment": moved}, http.StatusOK)
}

func (h *AppointmentHandler) CompleteAppointment(c *gin.Context) {
	appointment, ok := h.loadOwned(c)
	if !ok {
		return
	}
	completed, err := h.lifecycle.Complete(c.Request.Context(), appointment.ID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"appointment": completed}, http.StatusOK)
}

// ListMine lists the calling patient's appointments.
func (h *AppointmentHandler) ListMine(c *gin.Context) {
	userID, _ := caller(c)
	patientID, err := h.identity.ResolvePatient(c.Request.Context(), userID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	appointments, err := h.lifecycle.ListForPatient(c.Request.Context(), patientID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"appointments": nonNil(appointments)}, http.StatusOK)
}

// ListForDoctor lists the calling doctor's appointments, optionally for ?date=.
func (h *AppointmentHandler) ListForDoctor(c *gin.Context) {
	userID, _ := caller(c)
	doctorID, err := h.identity.DoctorIDForUser(c.Request.Context(), userID)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	appointments, err := h.lifecycle.ListForDoctor(c.Request.Context(), doctorID, c.Query("date"))
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"appointments": nonNil(appointments)}, http.StatusOK)
}

// loadOwned loads the appointment named by :id and checks that the caller may
// act on it. It writes the error response itself.
func (h *AppointmentHandler) loadOwned(c *gin.Context) (*models.Appointment, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		middlewares.BadRequest(c, "Invalid appointment ID")
		return nil, false
	}
	ctx := c.Request.Context()
	appointment, err := h.lifecycle.Get(ctx, uint(id))
	if err != nil {
		middlewares.HttpError(c, err)
		return nil, false
	}

	userID, role := caller(c)
	switch role {
	case models.RoleAdmin:
		return appointment, true
	case models.RolePatient:
		patientID, err := h.identity.ResolvePatient(ctx, userID)
		if err == nil && patientID == appointment.PatientID {
			return appointment, true
		}
	case models.RoleDoctor:
		doctorID, err := h.identity.DoctorIDForUser(ctx, userID)
		if err == nil && doctorID == appointment.DoctorID {
			return appointment, true
		}
	}
	// Do not reveal that the appointment exists.
	middlewares.HttpError(c, apperrors.NotFound("appointment "+c.Param("id")))
	return nil, false
}

func caller(c *gin.Context) (string, string) {
	userID, _ := middlewares.ExtractUserIDFromContext(c.Request.Context())
	role, _ := middlewares.ExtractUserRoleFromContext(c.Request.Context())
	return userID, role
}

func nonNil(appointments []models.Appointment) []models.Appointment {
	if appointments == nil {
		return []models.Appointment{}
	}
	return appointments
}
