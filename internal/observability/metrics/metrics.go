package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the booking and
// slot-management flows.
type SchedulingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	bookingDuration  *prometheus.HistogramVec
	slotsCreated     prometheus.Counter
	slotsSkipped     prometheus.Counter
	transitionsTotal *prometheus.CounterVec
	cleanupMarked    prometheus.Counter
	quickbookSteps   *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		bookingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "booking_duration_seconds",
			Help:      "Latency of booking attempts",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		slotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "slots_created_total",
			Help:      "Slots created by the generator and staff",
		}),
		slotsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "slots_skipped_total",
			Help:      "Duplicate slots skipped during generation",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Appointment lifecycle transitions",
		}, []string{"from", "to"}),
		cleanupMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "cleanup_marked_total",
			Help:      "Appointments marked missed by cleanup sweeps",
		}),
		quickbookSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "quickbook",
			Name:      "steps_total",
			Help:      "Quick-book pipeline steps by result",
		}, []string{"step", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal, m.bookingDuration, m.slotsCreated, m.slotsSkipped,
		m.transitionsTotal, m.cleanupMarked, m.quickbookSteps,
	)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookingDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveSlotGeneration(created, skipped int) {
	if m == nil {
		return
	}
	m.slotsCreated.Add(float64(created))
	m.slotsSkipped.Add(float64(skipped))
}

func (m *SchedulingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *SchedulingMetrics) ObserveCleanup(marked int) {
	if m == nil {
		return
	}
	if marked > 0 {
		m.cleanupMarked.Add(float64(marked))
	}
}

func (m *SchedulingMetrics) ObserveQuickBookStep(step, status string) {
	if m == nil {
		return
	}
	m.quickbookSteps.WithLabelValues(step, status).Inc()
}
