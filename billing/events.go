package billing

import "time"

// =============================================================================
// EVENTS - Typed results for the notification sink
// =============================================================================

// EventKind classifies an engine outcome. The engine performs no
// presentation; a UI layer maps kinds to user-visible messages.
type EventKind string

const (
	EventOk                EventKind = "ok"
	EventValidationError   EventKind = "validation_error"
	EventDuplicatePeriod   EventKind = "duplicate_period"
	EventOrderingViolation EventKind = "ordering_violation"

	// EventBlanketMatch is a diagnostic: a payment carried no period
	// information at all and was matched against the flat's bills as a last
	// resort. Worth reviewing - blanket matches are a known mismatch source.
	EventBlanketMatch EventKind = "blanket_match"

	// EventUnmatchedPayment flags a payment no rule could attach to a bill.
	// The payment is kept as a reviewable item, never discarded.
	EventUnmatchedPayment EventKind = "unmatched_payment"
)

// Event is a typed engine outcome, identifying the flat, period and head
// involved so the failure is actionable.
type Event struct {
	Kind       EventKind
	FlatNumber string
	Period     Period
	Head       Head
	PaymentID  PaymentID
	BillID     BillID
	Message    string
	At         time.Time
}

// Notifier receives engine events. Implementations must not block; the
// engine calls Notify synchronously inside its operations.
type Notifier interface {
	Notify(e Event)
}

// NopNotifier discards events. Used when no sink is wired.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// EventRecorder collects events in memory. Handy for tests and for the
// review-queue endpoint.
type EventRecorder struct {
	Events []Event
}

func (r *EventRecorder) Notify(e Event) { r.Events = append(r.Events, e) }

// ByKind returns events of one kind, in arrival order.
func (r *EventRecorder) ByKind(kind EventKind) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
