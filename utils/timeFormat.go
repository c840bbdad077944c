package utils

import (
	"MediSlot/apperrors"
	"MediSlot/models"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeTime converts a clock time given as "H:MM AM", "HH:MM PM" or an
// already canonical "HH:MM:SS" into the stored 24-hour "HH:MM:SS" form.
// 12 AM maps to hour 0 and 12 PM stays 12.
func NormalizeTime(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", apperrors.Validation("time is required")
	}

	fields := strings.Fields(input)
	switch len(fields) {
	case 1:
		if t, err := time.Parse(models.TimeLayout, fields[0]); err == nil {
			return t.Format(models.TimeLayout), nil
		}
		return "", apperrors.Validation(fmt.Sprintf("time %q must be HH:MM:SS or carry an AM/PM marker", input))
	case 2:
	default:
		return "", apperrors.Validation(fmt.Sprintf("malformed time %q", input))
	}

	hour, minute, err := parseClock(fields[0])
	if err != nil {
		return "", err
	}
	if hour < 1 || hour > 12 {
		return "", apperrors.Validation(fmt.Sprintf("hour out of range in %q", input))
	}

	switch strings.ToUpper(fields[1]) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	default:
		return "", apperrors.Validation(fmt.Sprintf("invalid AM/PM marker in %q", input))
	}

	return fmt.Sprintf("%02d:%02d:00", hour, minute), nil
}

func parseClock(clock string) (int, int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return 0, 0, apperrors.Validation(fmt.Sprintf("malformed clock %q", clock))
	}
	if n := len(parts[0]); n < 1 || n > 2 || !isDigits(parts[0]) {
		return 0, 0, apperrors.Validation(fmt.Sprintf("malformed hour in %q", clock))
	}
	if !isDigits(parts[1]) {
		return 0, 0, apperrors.Validation(fmt.Sprintf("malformed minute in %q", clock))
	}
	hour, _ := strconv.Atoi(parts[0])
	minute, _ := strconv.Atoi(parts[1])
	if minute > 59 {
		return 0, 0, apperrors.Validation(fmt.Sprintf("malformed minute in %q", clock))
	}
	return hour, minute, nil
}

// isDigits reports whether s holds only ASCII digits.
func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, apperrors.Validation("date is required")
	}
	d, err := time.ParseInLocation(models.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, apperrors.Validation(fmt.Sprintf("date %q must be YYYY-MM-DD", value))
	}
	return d, nil
}
