package scheduler

import (
	"MediSlot/apperrors"
	"MediSlot/metrics"
	"MediSlot/models"
	"MediSlot/repositories"
	"MediSlot/services"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore implements the parts of repositories.SlotStore the daemon uses.
type stubStore struct {
	mu           sync.Mutex
	slots        map[string]models.Slot
	appointments map[uint]models.Appointment
	failDate     string
}

func newStubStore() *stubStore {
	return &stubStore{slots: map[string]models.Slot{}, appointments: map[uint]models.Appointment{}}
}

func (s *stubStore) InsertSlot(_ context.Context, slot *models.Slot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.Date == s.failDate {
		return false, apperrors.Classify(errors.New("disk full"), "insert slot")
	}
	key := fmt.Sprintf("%d|%s|%s", slot.DoctorID, slot.Date, slot.StartTime)
	if _, ok := s.slots[key]; ok {
		return false, nil
	}
	s.slots[key] = *slot
	return true, nil
}

func (s *stubStore) ListSlots(context.Context, uint, string) ([]models.Slot, error) { return nil, nil }
func (s *stubStore) GetAppointment(context.Context, uint) (*models.Appointment, error) {
	return nil, nil
}
func (s *stubStore) ListAppointments(context.Context, repositories.AppointmentFilter) ([]models.Appointment, error) {
	return nil, nil
}
func (s *stubStore) InTx(context.Context, func(tx repositories.SlotTx) error) error {
	return errors.New("not supported")
}

func (s *stubStore) ListDueReminders(_ context.Context, date string) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Appointment
	for id := uint(1); id <= uint(len(s.appointments)); id++ {
		a, ok := s.appointments[id]
		if ok && a.Date == date && a.Status == models.AppointmentBooked && !a.Notified {
			due = append(due, a)
		}
	}
	return due, nil
}

func (s *stubStore) MarkNotified(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.appointments[id]
	if a.Notified {
		return false, nil
	}
	a.Notified = true
	s.appointments[id] = a
	return true, nil
}

func (s *stubStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

type stubDirectory struct {
	ids []uint
}

func (d stubDirectory) ResolveDoctor(context.Context, string) (uint, error)  { return 0, nil }
func (d stubDirectory) ResolvePatient(context.Context, string) (uint, error) { return 0, nil }
func (d stubDirectory) ListDoctorIDs(context.Context) ([]uint, error)        { return d.ids, nil }
func (d stubDirectory) DoctorEmail(context.Context, uint) (string, error)    { return "", nil }

type stubNotifier struct {
	mu     sync.Mutex
	sent   []uint
	failOn uint
}

func (n *stubNotifier) Notify(_ context.Context, doctorID uint, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if doctorID == n.failOn {
		return errors.New("mailbox unavailable")
	}
	n.sent = append(n.sent, doctorID)
	return nil
}

func (n *stubNotifier) recipients() []uint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uint(nil), n.sent...)
}

type stubClock struct {
	now time.Time
}

func (c stubClock) Now() time.Time   { return c.now }
func (c stubClock) Today() time.Time { return services.StartOfDay(c.now) }

type stubLocker struct {
	held map[string]bool
}

func (l *stubLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() { delete(l.held, key) }, true, nil
}

var workday = []string{
	"09:00:00", "10:00:00", "11:00:00", "12:00:00",
	"14:00:00", "15:00:00", "16:00:00", "17:00:00",
}

type daemonFixture struct {
	store    *stubStore
	notifier *stubNotifier
	locker   *stubLocker
	metrics  *metrics.Metrics
	daemon   *Daemon
}

func newDaemonFixture(t *testing.T, doctors ...uint) *daemonFixture {
	t.Helper()
	f := &daemonFixture{
		store:    newStubStore(),
		notifier: &stubNotifier{},
		locker:   &stubLocker{held: map[string]bool{}},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	generator, err := services.NewSlotGenerator(f.store, workday, time.Hour, f.metrics)
	require.NoError(t, err)
	f.daemon = NewDaemon(Config{HorizonDays: 7, ReminderHour: 8}, Deps{
		Generator: generator,
		Store:     f.store,
		Directory: stubDirectory{ids: doctors},
		Notifier:  f.notifier,
		Clock:     stubClock{now: time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC)},
		Locker:    f.locker,
		Metrics:   f.metrics,
	})
	return f
}

func TestRunGeneration_FillsHorizonOnce(t *testing.T) {
	f := newDaemonFixture(t, 1)

	report, err := f.daemon.RunGeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 56, report.Created)
	assert.Equal(t, 56, f.store.count())
	assert.Zero(t, report.Failures)

	report, err = f.daemon.RunGeneration(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	assert.Equal(t, 56, f.store.count())
}

func TestRunGeneration_ContinuesAfterFailure(t *testing.T) {
	f := newDaemonFixture(t, 1, 2)
	f.store.failDate = "2024-06-03"

	report, err := f.daemon.RunGeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failures)
	assert.Equal(t, 2*6*8, report.Created)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.GenerationFailures))
}

func TestRunGeneration_SkipsWhenLocked(t *testing.T) {
	f := newDaemonFixture(t, 1)
	f.locker.held[generationLockKey] = true

	report, err := f.daemon.RunGeneration(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, f.store.count())
}

func TestGenerateHorizon_CustomDays(t *testing.T) {
	f := newDaemonFixture(t, 4)

	report, err := f.daemon.GenerateHorizon(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 16, report.Created)
	assert.False(t, f.locker.held[generationLockKey], "lock is released")
}

func TestRunReminders(t *testing.T) {
	f := newDaemonFixture(t, 1, 2)
	f.store.appointments[1] = models.Appointment{ID: 1, DoctorID: 1, Date: "2024-06-01", Time: "09:00:00", Status: models.AppointmentBooked}
	f.store.appointments[2] = models.Appointment{ID: 2, DoctorID: 2, Date: "2024-06-01", Time: "10:00:00", Status: models.AppointmentBooked}
	f.store.appointments[3] = models.Appointment{ID: 3, DoctorID: 1, Date: "2024-06-02", Time: "09:00:00", Status: models.AppointmentBooked}
	f.store.appointments[4] = models.Appointment{ID: 4, DoctorID: 1, Date: "2024-06-01", Time: "11:00:00", Status: models.AppointmentCanceled}
	f.store.appointments[5] = models.Appointment{ID: 5, DoctorID: 1, Date: "2024-06-01", Time: "12:00:00", Status: models.AppointmentBooked, Notified: true}
	f.notifier.failOn = 2

	report, err := f.daemon.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Due)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failures)
	assert.True(t, f.store.appointments[1].Notified)
	assert.False(t, f.store.appointments[2].Notified, "failed sends stay unflagged")

	f.notifier.failOn = 0
	report, err = f.daemon.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []uint{1, 2}, f.notifier.sent, "no appointment is reminded twice")
}

func TestUntilNextReminder(t *testing.T) {
	f := newDaemonFixture(t)
	assert.Equal(t, 30*time.Minute, f.daemon.untilNextReminder())

	f.daemon.clock = stubClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	assert.Equal(t, 24*time.Hour, f.daemon.untilNextReminder())
}

func TestReminderMissedToday(t *testing.T) {
	f := newDaemonFixture(t)
	assert.False(t, f.daemon.reminderMissedToday())

	f.daemon.clock = stubClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	assert.True(t, f.daemon.reminderMissedToday())

	f.daemon.clock = stubClock{now: time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)}
	assert.True(t, f.daemon.reminderMissedToday())
}

func TestStart_SendsTodaysRemindersWhenStartedLate(t *testing.T) {
	f := newDaemonFixture(t, 1)
	f.daemon.clock = stubClock{now: time.Date(2024, 6, 1, 9, 15, 0, 0, time.UTC)}
	f.store.appointments[1] = models.Appointment{ID: 1, DoctorID: 1, Date: "2024-06-01", Time: "14:00:00", Status: models.AppointmentBooked}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.daemon.Start(ctx)

	assert.Eventually(t, func() bool {
		return len(f.notifier.recipients()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint{1}, f.notifier.recipients())
}

func TestStart_StopsOnCancel(t *testing.T) {
	f := newDaemonFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.daemon.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return f.store.count() == 56 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("daemon did not stop")
	}
}
