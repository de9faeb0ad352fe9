package core

type IEvent interface {
	GetId() string // Returns the unique identifier of the event.
}

// IControlEvent marks events that must not wait behind queued data events.
// The runner delivers them to every handler directly (broadcast) instead of
// relaying them through the per-handler input queues.
type IControlEvent interface {
	IEvent
	ControlEvent()
}
