package services

import "github.com/prometheus/client_golang/prometheus"

var (
	slotHolds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slot_holds_total",
			Help: "Hold attempts by outcome (held, unavailable, error).",
		},
		[]string{"outcome"},
	)
	bookingsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_finalized_total",
			Help: "Finalize calls by outcome (booked, duplicate, error).",
		},
		[]string{"outcome"},
	)
	bookingSlotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_slot_conflicts_total",
			Help: "Paid bookings recorded over slots that were no longer free or blocked.",
		},
	)
	slotsRecomputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slots_recomputed_total",
			Help: "Slots deleted or created by maintenance passes.",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(slotHolds, bookingsFinalized, bookingSlotConflicts, slotsRecomputed)
}
