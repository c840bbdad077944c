package handlers

import (
	"MediSlot/middlewares"
	"MediSlot/repositories"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type DoctorSearcher interface {
	Search(ctx context.Context, specialization string) ([]repositories.DoctorSummary, error)
}

type DoctorHandler struct {
	directory DoctorSearcher
}

func NewDoctorHandler(directory DoctorSearcher) *DoctorHandler {
	return &DoctorHandler{directory: directory}
}

// SearchDoctors lists doctors, filtered by ?specialization= when given.
func (h *DoctorHandler) SearchDoctors(c *gin.Context) {
	doctors, err := h.directory.Search(c.Request.Context(), c.Query("specialization"))
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	if doctors == nil {
		doctors = []repositories.DoctorSummary{}
	}
	middlewares.RespondJSON(c, gin.H{"doctors": doctors}, http.StatusOK)
}
