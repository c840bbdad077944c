package services

import (
	"MediSlot/metrics"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Directory resolves the people the scheduling core refers to.
type Directory interface {
	// ResolveDoctor accepts a numeric doctor id or the doctor's email.
	ResolveDoctor(ctx context.Context, identifier string) (uint, error)
	// ResolvePatient accepts a numeric user id, "P:<patient id>" or an email.
	ResolvePatient(ctx context.Context, identity string) (uint, error)
	ListDoctorIDs(ctx context.Context) ([]uint, error)
	DoctorEmail(ctx context.Context, doctorID uint) (string, error)
}

// Notifier delivers a message to a doctor.
type Notifier interface {
	Notify(ctx context.Context, doctorID uint, subject, body string) error
}

// SlotCache is the read-through cache of available slot lists. Entries are
// keyed by a per doctor/date version that every slot change bumps, so a list
// read before a change can never be stored under the key readers use after it.
type SlotCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Incr(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

const (
	notifyTimeout = 30 * time.Second
	// slotsVersionTTL must outlive any cached list.
	slotsVersionTTL = 7 * 24 * time.Hour
)

func slotsVersionKey(doctorID uint, date string) string {
	return fmt.Sprintf("available_slots_version:%d:%s", doctorID, date)
}

func availableSlotsKey(doctorID uint, date, version string) string {
	return fmt.Sprintf("available_slots:%d:%s:v%s", doctorID, date, version)
}

// slotsVersion reads the current list version. ok is false when the cache
// cannot be used for this request.
func slotsVersion(ctx context.Context, cache SlotCache, doctorID uint, date string) (string, bool) {
	if cache == nil {
		return "", false
	}
	version, err := cache.Get(ctx, slotsVersionKey(doctorID, date))
	if err != nil {
		log.Warn().Err(err).Uint("doctor_id", doctorID).Str("date", date).Msg("Failed to read available slots version")
		return "", false
	}
	if version == "" {
		version = "0"
	}
	return version, true
}

// invalidateSlots bumps the list version of the doctor's day. Lists cached
// under older versions are never read again and expire on their own.
func invalidateSlots(ctx context.Context, cache SlotCache, doctorID uint, date string) {
	if cache == nil {
		return
	}
	if _, err := cache.Incr(ctx, slotsVersionKey(doctorID, date), slotsVersionTTL); err != nil {
		log.Warn().Err(err).Uint("doctor_id", doctorID).Str("date", date).Msg("Failed to invalidate available slots cache")
	}
}

// notifyAsync sends a doctor notification after the caller's transaction has
// committed. Delivery errors are logged and counted only.
func notifyAsync(notifier Notifier, m *metrics.Metrics, doctorID uint, subject, body string) {
	if notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := notifier.Notify(ctx, doctorID, subject, body); err != nil {
			m.NotificationErrors.Inc()
			log.Warn().Err(err).Uint("doctor_id", doctorID).Str("subject", subject).Msg("Failed to notify doctor")
		}
	}()
}
