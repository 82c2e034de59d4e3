package vpaid

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thenexusengine/tne_vpaid/internal/clock"
)

// Defaults for a new adapter
const (
	// ProtocolVersion is the host protocol version the adapter speaks
	ProtocolVersion = "2.0"

	// DefaultStopDelay lets in-flight events drain before AdStopped
	DefaultStopDelay = 75 * time.Millisecond

	// DefaultTickInterval is the remaining-time refresh period on wall-clock timing
	DefaultTickInterval = 250 * time.Millisecond

	// DefaultNonLinearDuration is the overlay lifetime in seconds when none is configured
	DefaultNonLinearDuration = 30.0

	// DefaultBitrate is used when the host passes a non-positive desired bitrate
	DefaultBitrate = 256
)

// MisuseHook is told about every absorbed out-of-turn operation
type MisuseHook func(op string, state State)

// Option configures an Adapter
type Option func(*Adapter)

// WithScheduler sets the scheduler for ticks and the deferred stop event
func WithScheduler(s clock.Scheduler) Option {
	return func(a *Adapter) {
		if s != nil {
			a.sched = s
		}
	}
}

// WithLogger sets the adapter's logger
func WithLogger(l zerolog.Logger) Option {
	return func(a *Adapter) {
		a.log = l
	}
}

// WithTickInterval sets the wall-clock refresh period
func WithTickInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.tickInterval = d
		}
	}
}

// WithStopDelay sets the delay between Stop and AdStopped
func WithStopDelay(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.stopDelay = d
		}
	}
}

// WithSkippable sets the skippable state reported to the host
func WithSkippable(skippable bool) Option {
	return func(a *Adapter) {
		a.skippable = skippable
	}
}

// WithDefaultDuration sets the starting duration in seconds.
// Linear creatives otherwise start unknown until the media reports one.
func WithDefaultDuration(seconds float64) Option {
	return func(a *Adapter) {
		if seconds > 0 {
			a.defaultDuration = seconds
		}
	}
}

// WithQuartiles replaces the progress schedule
func WithQuartiles(schedule []Quartile) Option {
	return func(a *Adapter) {
		a.schedule = schedule
	}
}

// WithObserver registers an observer on the adapter's event bus
func WithObserver(o Observer) Option {
	return func(a *Adapter) {
		a.bus.Observe(o)
	}
}

// WithMisuseHook registers a hook for absorbed out-of-turn operations
func WithMisuseHook(h MisuseHook) Option {
	return func(a *Adapter) {
		a.onMisuse = h
	}
}

// WithCompanions sets the opaque companion data returned to the host
func WithCompanions(companions string) Option {
	return func(a *Adapter) {
		a.companions = companions
	}
}

// WithIcons sets the icons flag returned to the host
func WithIcons(icons bool) Option {
	return func(a *Adapter) {
		a.icons = icons
	}
}

// WithClickThroughURL sets the URL reported with AdClickThru.
// Empty lets the host use the URL from its own ad response.
func WithClickThroughURL(url string) Option {
	return func(a *Adapter) {
		a.clickThroughURL = url
	}
}
