package eventbus

// Event is any value published on the untyped bus. Subscribers switch on the
// concrete type.
type Event any

// EventBus is the untyped bus used between the pipeline and its observers.
type EventBus interface {
	Publish(Event) int
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus.
type Bus = TypedBus[Event]

// New creates an untyped Bus.
func New() *Bus { return NewTyped[Event]() }

// NewWithBuffer creates an untyped Bus whose subscribers buffer n events.
func NewWithBuffer(n int) *Bus { return NewTypedWithBuffer[Event](n) }

var _ EventBus = (*Bus)(nil)
