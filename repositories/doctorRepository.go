package repositories

import (
	"MediSlot/apperrors"
	"MediSlot/cache"
	"MediSlot/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	DoctorCacheExpiry = 24 * time.Hour
)

// DoctorSummary is the public view of a doctor returned by search.
type DoctorSummary struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Specialization string `json:"specialization"`
	ContactNumber  string `json:"contact_number"`
	ClinicAddress  string `json:"clinic_address"`
}

type DoctorRepository struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewDoctorRepository wires the doctor directory. cache may be nil.
func NewDoctorRepository(db *gorm.DB, cache *cache.Cache) *DoctorRepository {
	return &DoctorRepository{db: db, cache: cache}
}

// CreateProfile attaches a doctor profile to an existing user.
func (r *DoctorRepository) CreateProfile(ctx context.Context, doctor *models.Doctor) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Doctor{}).Where("user_id = ?", doctor.UserID).Count(&count).Error; err != nil {
		return apperrors.Classify(err, "check doctor profile")
	}
	if count > 0 {
		return apperrors.Conflict("doctor profile already exists")
	}
	if err := r.db.WithContext(ctx).Create(doctor).Error; err != nil {
		return apperrors.Classify(err, "create doctor profile")
	}
	r.forget(ctx, r.getDoctorListCacheKey())
	return nil
}

// ResolveDoctor accepts a numeric doctor id or the doctor's email.
func (r *DoctorRepository) ResolveDoctor(ctx context.Context, identifier string) (uint, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return 0, apperrors.Validation("doctor identifier is required")
	}

	if id, err := strconv.ParseUint(identifier, 10, 64); err == nil {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Doctor{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return 0, apperrors.Classify(err, "resolve doctor")
		}
		if count == 0 {
			return 0, apperrors.NotFound(fmt.Sprintf("doctor %d", id))
		}
		return uint(id), nil
	}

	email := strings.ToLower(identifier)
	cacheKey := r.getDoctorCacheKey("email:" + email)
	if cached := r.lookup(ctx, cacheKey); cached != "" {
		if id, err := strconv.ParseUint(cached, 10, 64); err == nil {
			return uint(id), nil
		}
	}

	var doctor models.Doctor
	err := r.db.WithContext(ctx).
		Joins("JOIN users ON users.id = doctor.user_id").
		Where("LOWER(users.email) = ?", email).
		Take(&doctor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.NotFound("doctor " + identifier)
		}
		return 0, apperrors.Classify(err, "resolve doctor")
	}
	r.remember(ctx, cacheKey, strconv.FormatUint(uint64(doctor.ID), 10))
	return doctor.ID, nil
}

// ListDoctorIDs returns every doctor id, used by the slot generation job.
func (r *DoctorRepository) ListDoctorIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Doctor{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, apperrors.Classify(err, "list doctor ids")
	}
	return ids, nil
}

// DoctorEmail returns the contact email of the doctor's user account.
func (r *DoctorRepository) DoctorEmail(ctx context.Context, doctorID uint) (string, error) {
	cacheKey := r.getDoctorCacheKey(fmt.Sprintf("contact:%d", doctorID))
	if cached := r.lookup(ctx, cacheKey); cached != "" {
		return cached, nil
	}

	var email string
	err := r.db.WithContext(ctx).
		Table("doctor").
		Select("users.email").
		Joins("JOIN users ON users.id = doctor.user_id").
		Where("doctor.id = ?", doctorID).
		Limit(1).
		Scan(&email).Error
	if err != nil {
		return "", apperrors.Classify(err, "doctor email")
	}
	if email == "" {
		return "", apperrors.NotFound(fmt.Sprintf("doctor %d", doctorID))
	}
	r.remember(ctx, cacheKey, email)
	return email, nil
}

// Search lists doctors, optionally filtered by a case-insensitive specialization match.
func (r *DoctorRepository) Search(ctx context.Context, specialization string) ([]DoctorSummary, error) {
	specialization = strings.TrimSpace(specialization)
	cacheKey := r.getDoctorListCacheKey()
	if specialization == "" {
		if cached := r.lookup(ctx, cacheKey); cached != "" {
			var doctors []DoctorSummary
			if err := json.Unmarshal([]byte(cached), &doctors); err == nil {
				return doctors, nil
			}
		}
	}

	query := r.db.WithContext(ctx).
		Table("doctor").
		Select("doctor.id, users.name, users.email, doctor.specialization, doctor.contact_number, doctor.clinic_address").
		Joins("JOIN users ON users.id = doctor.user_id")
	if specialization != "" {
		query = query.Where("doctor.specialization ILIKE ?", "%"+specialization+"%")
	}

	var doctors []DoctorSummary
	if err := query.Order("doctor.id ASC").Scan(&doctors).Error; err != nil {
		return nil, apperrors.Classify(err, "search doctors")
	}

	if specialization == "" {
		if doctorsJSON, err := json.Marshal(doctors); err == nil {
			r.remember(ctx, cacheKey, string(doctorsJSON))
		}
	}
	return doctors, nil
}

func (r *DoctorRepository) lookup(ctx context.Context, key string) string {
	if r.cache == nil {
		return ""
	}
	value, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to read doctor cache")
		return ""
	}
	return value
}

func (r *DoctorRepository) remember(ctx context.Context, key, value string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, value, DoctorCacheExpiry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to write doctor cache")
	}
}

func (r *DoctorRepository) forget(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to evict doctor cache")
	}
}

func (r *DoctorRepository) getDoctorCacheKey(suffix string) string {
	return fmt.Sprintf("doctor_cache:%s", suffix)
}

func (r *DoctorRepository) getDoctorListCacheKey() string {
	return "doctors_cache"
}

// DoctorIDForUser returns the doctor profile id owned by the user account userID.
func (r *DoctorRepository) DoctorIDForUser(ctx context.Context, userID string) (uint, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, apperrors.Validation("malformed user id")
	}
	var doctor models.Doctor
	if err := r.db.WithContext(ctx).Select("id").Take(&doctor, "user_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.NotFound("doctor profile")
		}
		return 0, apperrors.Classify(err, "doctor for user")
	}
	return doctor.ID, nil
}
