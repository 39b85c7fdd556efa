package order

// Status is an order's position in the fulfilment lifecycle.
type Status string

const (
	// StatusPending is the initial state: placed but not yet confirmed.
	// COD orders start here and wait for explicit confirmation; online
	// orders pass through on their way to confirmed.
	StatusPending Status = "pending"
	// StatusConfirmed means payment is verified (online) or the shop
	// accepted the order (COD).
	StatusConfirmed Status = "confirmed"
	// StatusProcessing means the order is being prepared.
	StatusProcessing Status = "processing"
	// StatusShipped means the order is out for delivery.
	StatusShipped Status = "shipped"
	// StatusDelivered is terminal: the customer received the order.
	StatusDelivered Status = "delivered"
	// StatusCancelled is terminal, reachable from any non-terminal state.
	StatusCancelled Status = "cancelled"
)

// Actor identifies who requests a status transition.
type Actor string

const (
	// ActorAdmin is the admin console.
	ActorAdmin Actor = "admin"
	// ActorDelivery is the delivery-partner dashboard.
	ActorDelivery Actor = "delivery"
	// ActorSystem is the service itself; it may only confirm verified
	// online payments.
	ActorSystem Actor = "system"
)

// LifecycleError reports a rejected status transition. The order's current
// status is left unchanged.
type LifecycleError struct {
	From  Status
	To    Status
	Actor Actor
}

func (e *LifecycleError) Error() string {
	return "illegal order transition " + string(e.From) + " -> " + string(e.To) +
		" by " + string(e.Actor)
}

// next defines the lifecycle graph. Transitions are monotonic: no step may be
// skipped, and cancellation is the only exit from a non-terminal state.
var next = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := next[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether the lifecycle graph allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition validates a transition request including the actor rules:
// admins drive the whole lifecycle, delivery staff only advance fulfilment,
// and the system itself only confirms pending orders (after payment
// verification).
func CheckTransition(from, to Status, actor Actor) error {
	if !CanTransition(from, to) {
		return &LifecycleError{From: from, To: to, Actor: actor}
	}
	switch actor {
	case ActorAdmin:
		return nil
	case ActorDelivery:
		if from == StatusProcessing && to == StatusShipped {
			return nil
		}
		if from == StatusShipped && to == StatusDelivered {
			return nil
		}
	case ActorSystem:
		if from == StatusPending && to == StatusConfirmed {
			return nil
		}
	}
	return &LifecycleError{From: from, To: to, Actor: actor}
}

// CountsTowardRevenue is the single revenue-classification rule: an order
// contributes to realized revenue only once confirmed and unless cancelled.
// Every aggregation (dashboards, stats, exports) must go through this
// function so the figures cannot drift apart.
func CountsTowardRevenue(s Status) bool {
	switch s {
	case StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered:
		return true
	default:
		return false
	}
}
