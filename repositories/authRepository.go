package repositories

import (
	"MediSlot/apperrors"
	"MediSlot/cache"
	"MediSlot/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	UserCacheExpiry = 7 * 24 * time.Hour
)

type UserRepository interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, user *models.User) error
	RoleByName(ctx context.Context, name string) (*models.Role, error)
	// AuthenticateUser loads the user with its password hash. It returns nil when no user has email.
	AuthenticateUser(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	UpdateUserPassword(ctx context.Context, email, hashedPassword string) error
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewUserRepository returns the gorm backed UserRepository. cache may be nil.
func NewUserRepository(db *gorm.DB, cache *cache.Cache) UserRepository {
	return &userRepository{db: db, cache: cache}
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("LOWER(email) = ?", strings.ToLower(email)).Count(&count).Error
	if err != nil {
		return false, apperrors.Classify(err, "check email existence")
	}
	return count > 0, nil
}

func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return apperrors.Classify(err, "create user")
	}
	return nil
}

func (r *userRepository) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := r.db.WithContext(ctx).Take(&role, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Validation("unknown role " + name)
		}
		return nil, apperrors.Classify(err, "get role")
	}
	return &role, nil
}

func (r *userRepository) AuthenticateUser(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("Role", func(db *gorm.DB) *gorm.DB {
			return db.Select("id, name, description")
		}).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Classify(err, "authenticate user")
	}
	return &user, nil
}

func (r *userRepository) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	cacheKey := r.getUserCacheKey(fmt.Sprintf("%d", userID))
	if r.cache != nil {
		cachedUser, err := r.cache.Get(ctx, cacheKey)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to get user from cache")
		} else if cachedUser != "" {
			var user models.User
			if err := json.Unmarshal([]byte(cachedUser), &user); err == nil {
				return &user, nil
			}
		}
	}

	var user models.User
	err := r.db.WithContext(ctx).
		Select("id, name, email, phone_number, role_id, created_at").
		Preload("Role", func(db *gorm.DB) *gorm.DB {
			return db.Select("id, name, description")
		}).
		First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Classify(err, "get user")
	}

	if r.cache != nil {
		if userJSON, err := json.Marshal(user); err == nil {
			if err := r.cache.Set(ctx, cacheKey, userJSON, UserCacheExpiry); err != nil {
				log.Warn().Err(err).Msg("Failed to set user in cache")
			}
		}
	}
	return &user, nil
}

func (r *userRepository) UpdateUserPassword(ctx context.Context, email, hashedPassword string) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Update("password_hash", hashedPassword)
	if res.Error != nil {
		return apperrors.Classify(res.Error, "update password")
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("user " + email)
	}
	return nil
}

func (r *userRepository) getUserCacheKey(identifier string) string {
	return fmt.Sprintf("user_cache:%s", identifier)
}
