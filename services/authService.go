package services

import (
	"MediSlot/apperrors"
	"MediSlot/models"
	"MediSlot/repositories"
	"MediSlot/utils"
	"context"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProfileStore creates the role specific rows that hang off a user.
type ProfileStore interface {
	EnsurePatient(ctx context.Context, userID int64) (*models.Patient, error)
	CreateProfile(ctx context.Context, doctor *models.Doctor) error
}

// CodeStore keeps one-time reset codes.
type CodeStore interface {
	Set(ctx context.Context, email, code string) error
	Get(ctx context.Context, email string) (string, error)
	Delete(ctx context.Context, email string) error
}

// ResetMailer delivers reset codes.
type ResetMailer interface {
	SendResetCode(email, code string) error
}

// DoctorProfileRequest is the input of doctor profile registration.
type DoctorProfileRequest struct {
	Specialization string `json:"specialization"`
	ContactNumber  string `json:"contact_number"`
	ClinicAddress  string `json:"clinic_address"`
}

func (r DoctorProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Specialization, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.ContactNumber, validation.Length(0, 32)),
		validation.Field(&r.ClinicAddress, validation.Length(0, 255)),
	)
}

type AuthService struct {
	users    repositories.UserRepository
	profiles ProfileStore
	tokens   *utils.TokenMaker
	codes    CodeStore
	mailer   ResetMailer
}

func NewAuthService(users repositories.UserRepository, profiles ProfileStore, tokens *utils.TokenMaker, codes CodeStore, mailer ResetMailer) *AuthService {
	return &AuthService{users: users, profiles: profiles, tokens: tokens, codes: codes, mailer: mailer}
}

// Register creates a user account. Patients get their patient row right away;
// doctors complete their profile through RegisterDoctor.
func (s *AuthService) Register(ctx context.Context, reg utils.Registration) (*models.User, error) {
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	if reg.Role == "" {
		reg.Role = models.RolePatient
	}
	if err := utils.ValidateRegistration(reg); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	exists, err := s.users.EmailExists(ctx, reg.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.Conflict("email already registered")
	}

	role, err := s.users.RoleByName(ctx, reg.Role)
	if err != nil {
		return nil, err
	}
	hashed, err := utils.HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:        reg.Name,
		Email:       reg.Email,
		PhoneNumber: reg.PhoneNumber,
		Password:    hashed,
		RoleID:      role.ID,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	user.Role = *role
	if role.Name == models.RolePatient {
		if _, err := s.profiles.EnsurePatient(ctx, user.ID); err != nil {
			return nil, errors.Wrap(err, "create patient profile")
		}
	}
	log.Info().Int64("user_id", user.ID).Str("role", role.Name).Msg("User registered")
	return user, nil
}

// RegisterDoctor attaches a doctor profile to the account userID, which must have the Doctor role.
func (s *AuthService) RegisterDoctor(ctx context.Context, userID int64, req DoctorProfileRequest) (*models.Doctor, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user " + strconv.FormatInt(userID, 10))
	}
	if user.Role.Name != models.RoleDoctor {
		return nil, apperrors.Conflict("only doctor accounts can hold a doctor profile")
	}

	doctor := &models.Doctor{
		UserID:         userID,
		Specialization: req.Specialization,
		ContactNumber:  req.ContactNumber,
		ClinicAddress:  req.ClinicAddress,
	}
	if err := s.profiles.CreateProfile(ctx, doctor); err != nil {
		return nil, err
	}
	return doctor, nil
}

// Login checks the credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	if email == "" || password == "" {
		return "", nil, apperrors.Validation("email and password are required")
	}
	user, err := s.users.AuthenticateUser(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if user == nil || !utils.CheckPassword(user.Password, password) {
		return "", nil, apperrors.Unauthorized("invalid email or password")
	}

	token, err := s.tokens.GenerateAccessToken(strconv.FormatInt(user.ID, 10), user.Role.Name)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// SendOTP emails a reset code. Unknown addresses are accepted silently so the
// endpoint cannot be used to enumerate accounts.
func (s *AuthService) SendOTP(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.Validate(email, validation.Required); err != nil {
		return apperrors.Validation("email is required")
	}
	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if !exists {
		log.Info().Msg("Reset code requested for unknown email")
		return nil
	}

	code, err := utils.GenerateResetCode()
	if err != nil {
		return err
	}
	if err := s.codes.Set(ctx, email, code); err != nil {
		return errors.Wrap(err, "store reset code")
	}
	if err := s.mailer.SendResetCode(email, code); err != nil {
		return errors.Wrap(err, "send reset code")
	}
	return nil
}

// ResetPassword replaces the password when code matches the stored reset code.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := utils.ValidatePasswordReset(email, code, newPassword); err != nil {
		return apperrors.Validation(err.Error())
	}
	stored, err := s.codes.Get(ctx, email)
	if err != nil {
		return errors.Wrap(err, "load reset code")
	}
	if stored == "" || stored != code {
		return apperrors.Validation(utils.ErrInvalidResetCode.Error())
	}

	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdateUserPassword(ctx, email, hashed); err != nil {
		return err
	}
	if err := s.codes.Delete(ctx, email); err != nil {
		log.Warn().Err(err).Msg("Failed to delete used reset code")
	}
	return nil
}
