package services

import (
	"MediSlot/models"
	"MediSlot/utils"
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// AvailableSlots lists the free start times of one doctor on one day.
type AvailableSlots struct {
	Date     string   `json:"date"`
	DoctorID uint     `json:"doctorId"`
	Slots    []string `json:"slots"`
}

// AvailableSlots returns the free slots of the doctor on date. Days that were
// never generated are generated first unless they lie in the past.
func (s *BookingService) AvailableSlots(ctx context.Context, doctorIdentifier, date string) (*AvailableSlots, error) {
	today := s.clock.Today()
	day, err := utils.ParseDate(date, today.Location())
	if err != nil {
		return nil, err
	}
	if err := s.withinWindow(day, today); err != nil {
		return nil, err
	}
	doctorID, err := s.directory.ResolveDoctor(ctx, doctorIdentifier)
	if err != nil {
		return nil, err
	}
	dayKey := day.Format(models.DateLayout)

	// The version is read before the store so a concurrent change makes this
	// request's list unreachable instead of stale.
	version, cacheable := slotsVersion(ctx, s.cache, doctorID, dayKey)
	if cacheable {
		if cached := s.cachedSlots(ctx, availableSlotsKey(doctorID, dayKey, version)); cached != nil {
			return cached, nil
		}
	}

	slots, err := s.store.ListSlots(ctx, doctorID, dayKey)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 && !day.Before(today) {
		if _, err := s.generator.Generate(ctx, doctorID, day); err != nil {
			return nil, err
		}
		if slots, err = s.store.ListSlots(ctx, doctorID, dayKey); err != nil {
			return nil, err
		}
	}

	result := &AvailableSlots{Date: dayKey, DoctorID: doctorID, Slots: []string{}}
	for _, slot := range slots {
		if slot.IsAvailable() {
			result.Slots = append(result.Slots, slot.StartTime)
		}
	}
	if cacheable {
		s.cacheSlots(ctx, availableSlotsKey(doctorID, dayKey, version), result)
	}
	return result, nil
}

func (s *BookingService) cachedSlots(ctx context.Context, key string) *AvailableSlots {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read available slots cache")
		return nil
	}
	if raw == "" {
		return nil
	}
	var cached AvailableSlots
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil
	}
	return &cached
}

func (s *BookingService) cacheSlots(ctx context.Context, key string, result *AvailableSlots) {
	if s.cacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to write available slots cache")
	}
}
