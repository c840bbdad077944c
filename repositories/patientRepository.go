package repositories

import (
	"MediSlot/apperrors"
	"MediSlot/models"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PatientIDPrefix marks an identity that already is a patient id, e.g. "P:12".
const PatientIDPrefix = "P:"

type PatientRepository struct {
	db *gorm.DB
}

func NewPatientRepository(db *gorm.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// EnsurePatient returns the patient row of userID, creating it when missing.
func (r *PatientRepository) EnsurePatient(ctx context.Context, userID int64) (*models.Patient, error) {
	patient := models.Patient{UserID: userID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&patient).Error
	if err != nil {
		return nil, apperrors.Classify(err, "create patient")
	}
	if patient.ID != 0 {
		return &patient, nil
	}
	if err := r.db.WithContext(ctx).Take(&patient, "user_id = ?", userID).Error; err != nil {
		return nil, apperrors.Classify(err, "get patient")
	}
	return &patient, nil
}

// ResolvePatient maps an identity to a patient id. The identity is either a
// numeric user id taken from an access token, a patient id prefixed with
// PatientIDPrefix, or an email address.
func (r *PatientRepository) ResolvePatient(ctx context.Context, identity string) (uint, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return 0, apperrors.Validation("patient identity is required")
	}

	var patient models.Patient
	query := r.db.WithContext(ctx).Model(&models.Patient{})
	switch {
	case strings.HasPrefix(identity, PatientIDPrefix):
		id, err := strconv.ParseUint(strings.TrimPrefix(identity, PatientIDPrefix), 10, 64)
		if err != nil {
			return 0, apperrors.Validation("malformed patient id")
		}
		query = query.Where("patient.id = ?", id)
	default:
		if userID, err := strconv.ParseInt(identity, 10, 64); err == nil {
			query = query.Where("patient.user_id = ?", userID)
		} else {
			query = query.
				Joins("JOIN users ON users.id = patient.user_id").
				Where("LOWER(users.email) = ?", strings.ToLower(identity))
		}
	}

	if err := query.Take(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.NotFound(fmt.Sprintf("patient %s", identity))
		}
		return 0, apperrors.Classify(err, "resolve patient")
	}
	return patient.ID, nil
}
