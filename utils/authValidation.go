package utils

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/zerolog/log"
)

// Validation errors
var (
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters long")
	ErrPasswordNotComplex = errors.New("password must include at least one uppercase letter, one lowercase letter, one digit, and one special character")
	ErrInvalidResetCode   = errors.New("invalid reset code")
)

var (
	lowercaseRegex = regexp.MustCompile(`[a-z]`)
	uppercaseRegex = regexp.MustCompile(`[A-Z]`)
	digitRegex     = regexp.MustCompile(`\d`)
	specialRegex   = regexp.MustCompile(`[@$!%*?&#^_\-]`)
	resetCodeRegex = regexp.MustCompile(`^\d{6}$`)
)

// Registration is the input of account sign-up.
type Registration struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// ValidateRegistration validates sign-up data using ozzo-validation.
func ValidateRegistration(r Registration) error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.PhoneNumber, validation.Length(0, 32)),
		validation.Field(&r.Password, validation.Required.Error("password cannot be blank"), validation.By(validatePassword)),
		validation.Field(&r.Role, validation.In("Doctor", "Patient")),
	)
	if err != nil {
		log.Debug().Err(err).Msg("Registration validation failed")
	}
	return err
}

// ValidatePasswordReset validates the reset code and new password.
func ValidatePasswordReset(email, resetCode, newPassword string) error {
	err := validation.Errors{
		"email":     validation.Validate(email, validation.Required, is.EmailFormat),
		"resetCode": validation.Validate(resetCode, validation.Required.Error("invalid reset code"), validation.Match(resetCodeRegex).Error("invalid reset code")),
		"password":  validation.Validate(newPassword, validation.Required, validation.By(validatePassword)),
	}.Filter()
	if err != nil {
		log.Debug().Err(err).Msg("Password reset validation failed")
	}
	return err
}

// validatePassword checks the password for length and complexity.
func validatePassword(value interface{}) error {
	password, _ := value.(string)

	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	if !lowercaseRegex.MatchString(password) ||
		!uppercaseRegex.MatchString(password) ||
		!digitRegex.MatchString(password) ||
		!specialRegex.MatchString(password) {
		return ErrPasswordNotComplex
	}
	return nil
}
