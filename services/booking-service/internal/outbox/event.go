package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const AggregateBooking = "booking"

const (
	EventSessionBooked    = "booking.session.booked.v1"
	EventSessionConfirmed = "booking.session.confirmed.v1"
	EventSessionCancelled = "booking.session.cancelled.v1"
	EventSessionCompleted = "booking.session.completed.v1"
)
