package services

import (
	"MediSlot/apperrors"
	"MediSlot/metrics"
	"MediSlot/models"
	"MediSlot/repositories"
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slotIndexKey struct {
	doctorID uint
	date     string
	start    string
}

// memoryStore is an in-memory SlotStore. Row locks are emulated with one mutex
// per row that a transaction holds until it finishes; writes become visible
// only on commit.
type memoryStore struct {
	mu           sync.Mutex
	slots        map[uint]models.Slot
	slotIndex    map[slotIndexKey]uint
	appointments map[uint]models.Appointment
	rowLocks     map[string]*sync.Mutex
	nextSlotID   uint
	nextApptID   uint

	// failInsert, when set, is consulted before every slot insert.
	failInsert func(slot *models.Slot) error
	// afterListSlots, when set, runs after ListSlots has read its rows.
	afterListSlots func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		slots:        map[uint]models.Slot{},
		slotIndex:    map[slotIndexKey]uint{},
		appointments: map[uint]models.Appointment{},
		rowLocks:     map[string]*sync.Mutex{},
	}
}

func (s *memoryStore) InsertSlot(_ context.Context, slot *models.Slot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		if err := s.failInsert(slot); err != nil {
			return false, apperrors.Classify(err, "insert slot")
		}
	}
	key := slotIndexKey{slot.DoctorID, slot.Date, slot.StartTime}
	if _, ok := s.slotIndex[key]; ok {
		return false, nil
	}
	s.nextSlotID++
	slot.ID = s.nextSlotID
	s.slots[slot.ID] = *slot
	s.slotIndex[key] = slot.ID
	return true, nil
}

func (s *memoryStore) ListSlots(_ context.Context, doctorID uint, date string) ([]models.Slot, error) {
	s.mu.Lock()
	var out []models.Slot
	for _, slot := range s.slots {
		if slot.DoctorID == doctorID && slot.Date == date {
			out = append(out, slot)
		}
	}
	hook := s.afterListSlots
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *memoryStore) GetAppointment(_ context.Context, id uint) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memoryStore) ListAppointments(_ context.Context, f repositories.AppointmentFilter) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Appointment
	for _, a := range s.appointments {
		if (f.DoctorID != 0 && a.DoctorID != f.DoctorID) ||
			(f.PatientID != 0 && a.PatientID != f.PatientID) ||
			(f.Date != "" && a.Date != f.Date) ||
			(f.Status != "" && a.Status != f.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memoryStore) ListDueReminders(ctx context.Context, date string) ([]models.Appointment, error) {
	all, err := s.ListAppointments(ctx, repositories.AppointmentFilter{Date: date, Status: models.AppointmentBooked})
	if err != nil {
		return nil, err
	}
	var due []models.Appointment
	for _, a := range all {
		if !a.Notified {
			due = append(due, a)
		}
	}
	return due, nil
}

func (s *memoryStore) MarkNotified(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.Notified {
		return false, nil
	}
	a.Notified = true
	s.appointments[id] = a
	return true, nil
}

func (s *memoryStore) InTx(ctx context.Context, fn func(tx repositories.SlotTx) error) error {
	tx := &memoryTx{
		store:        s,
		held:         map[string]*sync.Mutex{},
		slotStatus:   map[uint]models.SlotStatus{},
		appointments: map[uint]models.Appointment{},
	}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *memoryStore) rowLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[key] = l
	}
	return l
}

func (s *memoryStore) slotAt(doctorID uint, date, start string) (models.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.slotIndex[slotIndexKey{doctorID, date, start}]
	if !ok {
		return models.Slot{}, false
	}
	return s.slots[id], true
}

func (s *memoryStore) slotByID(id uint) (models.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	return slot, ok
}

type memoryTx struct {
	store        *memoryStore
	held         map[string]*sync.Mutex
	slotStatus   map[uint]models.SlotStatus
	appointments map[uint]models.Appointment
}

func (t *memoryTx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	l := t.store.rowLock(key)
	l.Lock()
	t.held[key] = l
}

func (t *memoryTx) release() {
	for _, l := range t.held {
		l.Unlock()
	}
	t.held = map[string]*sync.Mutex{}
}

func (t *memoryTx) overlaySlot(slot models.Slot) *models.Slot {
	if status, ok := t.slotStatus[slot.ID]; ok {
		slot.Status = status
	}
	return &slot
}

func (t *memoryTx) LockSlot(_ context.Context, doctorID uint, date, start string) (*models.Slot, error) {
	slot, ok := t.store.slotAt(doctorID, date, start)
	if !ok {
		return nil, nil
	}
	t.lock(fmt.Sprintf("slot:%d", slot.ID))
	slot, _ = t.store.slotByID(slot.ID)
	return t.overlaySlot(slot), nil
}

func (t *memoryTx) LockSlotByID(_ context.Context, id uint) (*models.Slot, error) {
	if _, ok := t.store.slotByID(id); !ok {
		return nil, nil
	}
	t.lock(fmt.Sprintf("slot:%d", id))
	slot, _ := t.store.slotByID(id)
	return t.overlaySlot(slot), nil
}

func (t *memoryTx) LockAppointment(_ context.Context, id uint) (*models.Appointment, error) {
	if a, ok := t.appointments[id]; ok {
		return &a, nil
	}
	key := fmt.Sprintf("appointment:%d", id)
	t.store.mu.Lock()
	_, ok := t.store.appointments[id]
	t.store.mu.Unlock()
	if !ok {
		return nil, nil
	}
	t.lock(key)
	t.store.mu.Lock()
	a := t.store.appointments[id]
	t.store.mu.Unlock()
	return &a, nil
}

func (t *memoryTx) SetSlotStatus(_ context.Context, slotID uint, status models.SlotStatus) error {
	if _, ok := t.store.slotByID(slotID); !ok {
		return apperrors.NotFound(fmt.Sprintf("slot %d", slotID))
	}
	t.slotStatus[slotID] = status
	return nil
}

func (t *memoryTx) CreateAppointment(_ context.Context, a *models.Appointment) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, existing := range t.store.appointments {
		if existing.SlotID == a.SlotID && existing.IsActive() {
			return apperrors.SlotUnavailable("duplicate active appointment")
		}
	}
	t.store.nextApptID++
	a.ID = t.store.nextApptID
	t.appointments[a.ID] = *a
	return nil
}

func (t *memoryTx) SaveAppointment(_ context.Context, a *models.Appointment) error {
	t.appointments[a.ID] = *a
	return nil
}

func (t *memoryTx) commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, status := range t.slotStatus {
		slot := t.store.slots[id]
		slot.Status = status
		t.store.slots[id] = slot
	}
	for id, a := range t.appointments {
		t.store.appointments[id] = a
	}
	return nil
}

// seedSlot stores a slot directly, bypassing the generator.
func (s *memoryStore) seedSlot(t *testing.T, doctorID uint, date, start string, status models.SlotStatus) models.Slot {
	t.Helper()
	slot := &models.Slot{DoctorID: doctorID, Date: date, StartTime: start, EndTime: start, Status: status}
	_, err := s.InsertSlot(context.Background(), slot)
	require.NoError(t, err)
	return *slot
}

func (s *memoryStore) slot(t *testing.T, doctorID uint, date, start string) models.Slot {
	t.Helper()
	slot, ok := s.slotAt(doctorID, date, start)
	require.True(t, ok, "slot %d %s %s missing", doctorID, date, start)
	return slot
}

func (s *memoryStore) slotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// assertConsistent checks that a slot is booked exactly when one live
// appointment references it.
func assertConsistent(t *testing.T, s *memoryStore) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	active := map[uint]int{}
	for _, a := range s.appointments {
		if a.IsActive() {
			active[a.SlotID]++
		}
	}
	for id, slot := range s.slots {
		assert.LessOrEqual(t, active[id], 1, "slot %d has several live appointments", id)
		assert.Equal(t, active[id] == 1, slot.Status == models.SlotBooked,
			"slot %d (%s %s) status %s with %d live appointments", id, slot.Date, slot.StartTime, slot.Status, active[id])
	}
}

type fakeDirectory struct {
	doctors  map[string]uint
	patients map[string]uint
	emails   map[uint]string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{doctors: map[string]uint{}, patients: map[string]uint{}, emails: map[uint]string{}}
}

func (d *fakeDirectory) addDoctor(id uint, email string) {
	d.doctors[strconv.Itoa(int(id))] = id
	d.doctors[email] = id
	d.emails[id] = email
}

func (d *fakeDirectory) addPatient(id uint, identity string) {
	d.patients[identity] = id
}

func (d *fakeDirectory) ResolveDoctor(_ context.Context, identifier string) (uint, error) {
	if id, ok := d.doctors[identifier]; ok {
		return id, nil
	}
	return 0, apperrors.NotFound("doctor " + identifier)
}

func (d *fakeDirectory) ResolvePatient(_ context.Context, identity string) (uint, error) {
	if id, ok := d.patients[identity]; ok {
		return id, nil
	}
	return 0, apperrors.NotFound("patient " + identity)
}

func (d *fakeDirectory) ListDoctorIDs(_ context.Context) ([]uint, error) {
	var ids []uint
	for id := range d.emails {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (d *fakeDirectory) DoctorEmail(_ context.Context, doctorID uint) (string, error) {
	if email, ok := d.emails[doctorID]; ok {
		return email, nil
	}
	return "", apperrors.NotFound("doctor")
}

type notification struct {
	doctorID uint
	subject  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, doctorID uint, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{doctorID: doctorID, subject: subject})
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time   { return c.now }
func (c fixedClock) Today() time.Time { return StartOfDay(c.now) }

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key], nil
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		c.values[key] = string(v)
	default:
		c.values[key] = fmt.Sprint(v)
	}
	return nil
}

func (c *memoryCache) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := strconv.ParseInt(c.values[key], 10, 64)
	n++
	c.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

var defaultTimes = []string{
	"09:00:00", "10:00:00", "11:00:00", "12:00:00",
	"14:00:00", "15:00:00", "16:00:00", "17:00:00",
}

// testEnv wires the services against in-memory collaborators. Today is
// 2024-05-31 in UTC, so 2024-06-01 is bookable.
type testEnv struct {
	store     *memoryStore
	directory *fakeDirectory
	notifier  *recordingNotifier
	cache     *memoryCache
	clock     fixedClock
	metrics   *metrics.Metrics
	generator *SlotGenerator
	booking   *BookingService
	lifecycle *LifecycleService
}

const (
	doctorD1      uint = 1
	patientP1     uint = 10
	patientP2     uint = 11
	bookingDay         = "2024-06-01"
	bookingWindow      = 90
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     newMemoryStore(),
		directory: newFakeDirectory(),
		notifier:  &recordingNotifier{},
		cache:     newMemoryCache(),
		clock:     fixedClock{now: time.Date(2024, 5, 31, 8, 0, 0, 0, time.UTC)},
		metrics:   newTestMetrics(),
	}
	env.directory.addDoctor(doctorD1, "d1@clinic.test")
	env.directory.addPatient(patientP1, "P:10")
	env.directory.addPatient(patientP2, "P:11")

	generator, err := NewSlotGenerator(env.store, defaultTimes, time.Hour, env.metrics)
	require.NoError(t, err)
	env.generator = generator
	env.booking = NewBookingService(BookingDeps{
		Store:          env.store,
		Generator:      generator,
		Directory:      env.directory,
		Notifier:       env.notifier,
		Cache:          env.cache,
		CacheTTL:       time.Minute,
		MaxAdvanceDays: bookingWindow,
		Clock:          env.clock,
		Metrics:        env.metrics,
	})
	env.lifecycle = NewLifecycleService(env.store, env.notifier, env.cache, env.clock, env.metrics)
	return env
}

// slotsCached reports whether a list for date is cached under the current version.
func (e *testEnv) slotsCached(date string) bool {
	version, ok := slotsVersion(context.Background(), e.cache, doctorD1, date)
	return ok && e.cache.has(availableSlotsKey(doctorD1, date, version))
}

func (e *testEnv) generateDay(t *testing.T, date string) {
	t.Helper()
	d, err := time.Parse(models.DateLayout, date)
	require.NoError(t, err)
	_, err = e.generator.Generate(context.Background(), doctorD1, d)
	require.NoError(t, err)
}

func (e *testEnv) book(t *testing.T, patient, date, clock string) *models.Appointment {
	t.Helper()
	appointment, err := e.booking.Book(context.Background(), BookingRequest{
		DoctorIdentifier:  "1",
		Date:              date,
		Time:              clock,
		PatientIdentifier: patient,
		Details:           "checkup",
	})
	require.NoError(t, err)
	return appointment
}
