package controllers

import (
	"MediSlot/handlers"
	"MediSlot/middlewares"
	"MediSlot/models"

	"github.com/gin-gonic/gin"
)

// SetupAppointmentRoutes registers doctor search, availability and the
// appointment lifecycle. Every route requires a valid token.
func SetupAppointmentRoutes(router gin.IRouter, verifier middlewares.TokenVerifier, appointmentHandler *handlers.AppointmentHandler, doctorHandler *handlers.DoctorHandler) {
	authed := router.Group("", middlewares.TokenAuthMiddleware(verifier))

	authed.GET("/doctors", doctorHandler.SearchDoctors)

	appointments := authed.Group("/appointments")
	{
		appointments.GET("/available-slots", appointmentHandler.AvailableSlots)
		appointments.POST("/book", appointmentHandler.BookAppointment)
		appointments.GET("/mine", middlewares.RoleAuthMiddleware(models.RolePatient), appointmentHandler.ListMine)
		appointments.GET("/doctor", middlewares.RoleAuthMiddleware(models.RoleDoctor), appointmentHandler.ListForDoctor)
		appointments.GET("/:id", appointmentHandler.GetAppointment)
		appointments.DELETE("/:id", appointmentHandler.CancelAppointment)
		appointments.PUT("/:id", appointmentHandler.RescheduleAppointment)
		appointments.PATCH("/:id/complete",
			middlewares.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin),
			appointmentHandler.CompleteAppointment)
	}
}
