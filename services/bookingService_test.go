package services

import (
	"MediSlot/apperrors"
	"MediSlot/metrics"
	"MediSlot/models"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBook_ReservesSlotOnce(t *testing.T) {
	env := newTestEnv(t)
	env.generateDay(t, bookingDay)

	appointment := env.book(t, "P:10", bookingDay, "09:00 AM")
	assert.NotZero(t, appointment.ID)
	assert.Equal(t, "09:00:00", appointment.Time)
	assert.Equal(t, patientP1, appointment.PatientID)
	assert.Equal(t, models.AppointmentBooked, appointment.Status)

	slot := env.store.slot(t, doctorD1, bookingDay, "09:00:00")
	assert.Equal(t, models.SlotBooked, slot.Status)
	assert.Equal(t, slot.ID, appointment.SlotID)

	_, err := env.booking.Book(context.Background(), BookingRequest{
		DoctorIdentifier:  "1",
		Date:              bookingDay,
		Time:              "09:00 AM",
		PatientIdentifier: "P:10",
		Details:           "checkup",
	})
	assert.ErrorIs(t, err, apperrors.ErrSlotUnavailable)
	assertConsistent(t, env.store)

	assert.Eventually(t, func() bool { return env.notifier.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.BookingsTotal.WithLabelValues(metrics.OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.BookingsTotal.WithLabelValues(metrics.OutcomeUnavailable)))
}

func TestBook_ConcurrentCallersOneWinner(t *testing.T) {
	env := newTestEnv(t)
	env.generateDay(t, bookingDay)

	const callers = 25
	for i := 0; i < callers; i++ {
		env.directory.addPatient(uint(100+i), fmt.Sprintf("P:%d", 100+i))
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		unavailable int
		others      []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := env.booking.Book(context.Background(), BookingRequest{
				DoctorIdentifier:  "d1@clinic.test",
				Date:              bookingDay,
				Time:              "10:00:00",
				PatientIdentifier: fmt.Sprintf("P:%d", 100+i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrSlotUnavailable):
				unavailable++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, unavailable)
	assertConsistent(t, env.store)
}

func TestBook_ConcurrentCallersOnUngeneratedDay(t *testing.T) {
	env := newTestEnv(t)

	const callers = 10
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		env.directory.addPatient(uint(200+i), fmt.Sprintf("P:%d", 200+i))
	}
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.booking.Book(context.Background(), BookingRequest{
				DoctorIdentifier:  "1",
				Date:              bookingDay,
				Time:              "02:00 PM",
				PatientIdentifier: fmt.Sprintf("P:%d", 200+i),
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrSlotUnavailable)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 8, env.store.slotCount())
	assertConsistent(t, env.store)
}

func TestBook_GeneratesMissingDay(t *testing.T) {
	env := newTestEnv(t)
	require.Zero(t, env.store.slotCount())

	appointment := env.book(t, "P:10", bookingDay, "03:00 PM")
	assert.Equal(t, "15:00:00", appointment.Time)
	assert.Equal(t, 8, env.store.slotCount())
	assert.Equal(t, models.SlotBooked, env.store.slot(t, doctorD1, bookingDay, "15:00:00").Status)
	assertConsistent(t, env.store)
}

func TestBook_TimeOutsideWorkday(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.booking.Book(context.Background(), BookingRequest{
		DoctorIdentifier:  "1",
		Date:              bookingDay,
		Time:              "01:00 PM",
		PatientIdentifier: "P:10",
	})
	assert.ErrorIs(t, err, apperrors.ErrSlotUnavailable)
	assert.Equal(t, 8, env.store.slotCount(), "the day is generated even though the lunch hour has no slot")
}

func TestBook_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.generateDay(t, bookingDay)

	valid := BookingRequest{DoctorIdentifier: "1", Date: bookingDay, Time: "09:00 AM", PatientIdentifier: "P:10"}
	cases := map[string]func(r *BookingRequest){
		"missing doctor":   func(r *BookingRequest) { r.DoctorIdentifier = "" },
		"missing patient":  func(r *BookingRequest) { r.PatientIdentifier = "" },
		"malformed date":   func(r *BookingRequest) { r.Date = "01/06/2024" },
		"past date":        func(r *BookingRequest) { r.Date = "2024-05-30" },
		"missing time":     func(r *BookingRequest) { r.Time = "" },
		"no am/pm marker":  func(r *BookingRequest) { r.Time = "09:00" },
		"bad am/pm marker": func(r *BookingRequest) { r.Time = "09:00 ZZ" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			_, err := env.booking.Book(context.Background(), req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
	assert.Equal(t, models.SlotAvailable, env.store.slot(t, doctorD1, bookingDay, "09:00:00").Status)
}

func TestBook_TodayIsBookable(t *testing.T) {
	env := newTestEnv(t)
	appointment := env.book(t, "P:10", "2024-05-31", "05:00 PM")
	assert.Equal(t, "2024-05-31", appointment.Date)
}

func TestBook_UnknownParties(t *testing.T) {
	env := newTestEnv(t)
	env.generateDay(t, bookingDay)

	_, err := env.booking.Book(context.Background(), BookingRequest{
		DoctorIdentifier: "99", Date: bookingDay, Time: "09:00 AM", PatientIdentifier: "P:10",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = env.booking.Book(context.Background(), BookingRequest{
		DoctorIdentifier: "1", Date: bookingDay, Time: "09:00 AM", PatientIdentifier: "P:404",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assertConsistent(t, env.store)
}

func TestBook_NotificationFailureKeepsBooking(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("smtp down")

	appointment := env.book(t, "P:10", bookingDay, "11:00 AM")
	assert.NotZero(t, appointment.ID)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(env.metrics.NotificationErrors) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, models.SlotBooked, env.store.slot(t, doctorD1, bookingDay, "11:00:00").Status)
}

func TestBook_LogsAppointmentTimeSeparately(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf).With().Timestamp().Logger()
	t.Cleanup(func() { log.Logger = previous })

	env := newTestEnv(t)
	env.book(t, "P:10", bookingDay, "09:00 AM")

	var booked string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "Appointment booked") {
			booked = line
		}
	}
	require.NotEmpty(t, booked)
	assert.Equal(t, 1, strings.Count(booked, `"time":`), "one time key per event")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(booked), &entry))
	assert.Equal(t, "09:00:00", entry["appointment_time"])
	assert.NotEqual(t, "09:00:00", entry["time"])
}

func TestAvailableSlots(t *testing.T) {
	env := newTestEnv(t)

	available, err := env.booking.AvailableSlots(context.Background(), "1", bookingDay)
	require.NoError(t, err)
	assert.Equal(t, defaultTimes, available.Slots)
	assert.Equal(t, doctorD1, available.DoctorID)
	assert.True(t, env.slotsCached(bookingDay))

	env.book(t, "P:10", bookingDay, "09:00 AM")
	assert.False(t, env.slotsCached(bookingDay), "booking evicts the cached list")

	available, err = env.booking.AvailableSlots(context.Background(), "d1@clinic.test", bookingDay)
	require.NoError(t, err)
	assert.Len(t, available.Slots, 7)
	assert.NotContains(t, available.Slots, "09:00:00")
}

func TestAvailableSlots_ServedFromCache(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.cache.Set(context.Background(), availableSlotsKey(doctorD1, bookingDay, "0"),
		`{"date":"2024-06-01","doctorId":1,"slots":["16:00:00"]}`, time.Minute))

	available, err := env.booking.AvailableSlots(context.Background(), "1", bookingDay)
	require.NoError(t, err)
	assert.Equal(t, []string{"16:00:00"}, available.Slots)
	assert.Zero(t, env.store.slotCount())
}

func TestAvailableSlots_BookingDuringReadIsNotCached(t *testing.T) {
	env := newTestEnv(t)
	env.generateDay(t, bookingDay)

	var once sync.Once
	env.store.afterListSlots = func() {
		once.Do(func() { env.book(t, "P:10", bookingDay, "09:00 AM") })
	}

	stale, err := env.booking.AvailableSlots(context.Background(), "1", bookingDay)
	require.NoError(t, err)
	assert.Contains(t, stale.Slots, "09:00:00")
	assert.False(t, env.slotsCached(bookingDay), "a list read before the booking is not served afterwards")

	fresh, err := env.booking.AvailableSlots(context.Background(), "1", bookingDay)
	require.NoError(t, err)
	assert.NotContains(t, fresh.Slots, "09:00:00")
	assert.Len(t, fresh.Slots, 7)
}

func TestBookingWindow(t *testing.T) {
	env := newTestEnv(t)
	// fixedClock is 2024-05-31, so the window ends on 2024-08-29.
	lastDay := "2024-08-29"

	_, err := env.booking.AvailableSlots(context.Background(), "1", "2024-08-30")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = env.booking.Book(context.Background(), BookingRequest{
		DoctorIdentifier: "1", Date: "2099-12-31", Time: "09:00 AM", PatientIdentifier: "P:10",
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Zero(t, env.store.slotCount(), "no slots are generated outside the window")

	available, err := env.booking.AvailableSlots(context.Background(), "1", lastDay)
	require.NoError(t, err)
	assert.Equal(t, defaultTimes, available.Slots)
	appointment := env.book(t, "P:10", lastDay, "10:00 AM")
	assert.Equal(t, lastDay, appointment.Date)
}

func TestAvailableSlots_PastDayIsNotGenerated(t *testing.T) {
	env := newTestEnv(t)

	available, err := env.booking.AvailableSlots(context.Background(), "1", "2024-05-01")
	require.NoError(t, err)
	assert.Empty(t, available.Slots)
	assert.Zero(t, env.store.slotCount())

	_, err = env.booking.AvailableSlots(context.Background(), "1", "May 1st")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
