package vpaid

// EventName identifies an event the adapter reports to its host.
type EventName string

// Events emitted by the adapter.
const (
	AdLoaded              EventName = "AdLoaded"
	AdStarted             EventName = "AdStarted"
	AdImpression          EventName = "AdImpression"
	AdVideoStart          EventName = "AdVideoStart"
	AdVideoFirstQuartile  EventName = "AdVideoFirstQuartile"
	AdVideoMidpoint       EventName = "AdVideoMidpoint"
	AdVideoThirdQuartile  EventName = "AdVideoThirdQuartile"
	AdVideoComplete       EventName = "AdVideoComplete"
	AdPaused              EventName = "AdPaused"
	AdPlaying             EventName = "AdPlaying"
	AdStopped             EventName = "AdStopped"
	AdSkipped             EventName = "AdSkipped"
	AdSizeChange          EventName = "AdSizeChange"
	AdExpanded            EventName = "AdExpanded"
	AdVolumeChange        EventName = "AdVolumeChange"
	AdDurationChange      EventName = "AdDurationChange"
	AdRemainingTimeChange EventName = "AdRemainingTimeChange"
	AdLinearChange        EventName = "AdLinearChange"
	AdClickThru           EventName = "AdClickThru"
	AdError               EventName = "AdError"
)

// Events lists every event name the adapter can emit.
var Events = []EventName{
	AdLoaded, AdStarted, AdImpression,
	AdVideoStart, AdVideoFirstQuartile, AdVideoMidpoint, AdVideoThirdQuartile, AdVideoComplete,
	AdPaused, AdPlaying, AdStopped, AdSkipped,
	AdSizeChange, AdExpanded, AdVolumeChange, AdDurationChange, AdRemainingTimeChange, AdLinearChange,
	AdClickThru, AdError,
}

// Handler is a host callback. ctx is the value supplied at subscription.
type Handler func(ctx any, args ...any)

// Observer sees every dispatch, subscribed or not. Used for metrics and journaling.
type Observer func(name EventName, args []any)

type binding struct {
	fn  Handler
	ctx any
}

// EventBus holds at most one host callback per event name.
//
// Dispatch is synchronous and holds no lock while a callback runs, so a
// callback may call straight back into the adapter.
type EventBus struct {
	bindings  map[EventName]binding
	observers []Observer
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{bindings: make(map[EventName]binding)}
}

// Subscribe binds fn and ctx to name, replacing any previous binding.
// A nil fn is the same as Unsubscribe.
func (b *EventBus) Subscribe(name EventName, fn Handler, ctx any) {
	b.bindings[name] = binding{fn: fn, ctx: ctx}
}

// Unsubscribe clears the binding for name to an inert no-op.
func (b *EventBus) Unsubscribe(name EventName) {
	b.bindings[name] = binding{}
}

// Subscribed reports whether a live callback is bound to name.
func (b *EventBus) Subscribed(name EventName) bool {
	bound, ok := b.bindings[name]
	return ok && bound.fn != nil
}

// Observe registers an observer for every dispatch.
func (b *EventBus) Observe(o Observer) {
	if o != nil {
		b.observers = append(b.observers, o)
	}
}

// Dispatch notifies observers, then invokes the callback bound to name if
// there is one. It reports whether a callback ran. A missing subscriber is
// not an error.
func (b *EventBus) Dispatch(name EventName, args ...any) bool {
	for _, o := range b.observers {
		o(name, args)
	}

	bound, ok := b.bindings[name]
	if !ok || bound.fn == nil {
		return false
	}
	bound.fn(bound.ctx, args...)
	return true
}
