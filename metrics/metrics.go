package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus collectors of the scheduling core.
type Metrics struct {
	BookingsTotal       *prometheus.CounterVec
	BookingDuration     prometheus.Histogram
	CancellationsTotal  prometheus.Counter
	ReschedulesTotal    *prometheus.CounterVec
	SlotsGenerated      prometheus.Counter
	GenerationFailures  prometheus.Counter
	RemindersSent       prometheus.Counter
	NotificationErrors  prometheus.Counter
	SchedulerRunSeconds *prometheus.HistogramVec
}

// New registers the collectors on reg. Tests pass a fresh registry so repeated
// construction does not panic on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medislot_bookings_total",
			Help: "Booking attempts by outcome",
		}, []string{"outcome"}),

		BookingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medislot_booking_duration_seconds",
			Help:    "Time spent in the booking transaction",
			Buckets: prometheus.DefBuckets,
		}),

		CancellationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medislot_cancellations_total",
			Help: "Appointments canceled",
		}),

		ReschedulesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medislot_reschedules_total",
			Help: "Reschedule attempts by outcome",
		}, []string{"outcome"}),

		SlotsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "medislot_slots_generated_total",
			Help: "Slot rows inserted by the generator",
		}),

		GenerationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "medislot_slot_generation_failures_total",
			Help: "Doctor/date generation runs that failed",
		}),

		RemindersSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "medislot_reminders_sent_total",
			Help: "Same-day appointment reminders sent",
		}),

		NotificationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "medislot_notification_errors_total",
			Help: "Notifications that could not be delivered",
		}),

		SchedulerRunSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medislot_scheduler_run_seconds",
			Help:    "Duration of scheduler jobs",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

// Outcome labels used on the *_total vectors.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)
