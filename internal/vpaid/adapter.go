// Package vpaid implements the ad-unit side of the VPAID host contract:
// the lifecycle state machine, event dispatch, timing and progress model.
//
// An Adapter is not safe for concurrent use. The host serializes calls; when
// running on a real-time scheduler, pass the same lock to clock.NewReal so
// timer callbacks are serialized with host calls too.
package vpaid

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/thenexusengine/tne_vpaid/internal/clock"
)

// Adapter is one ad impression's lifecycle controller
type Adapter struct {
	variant  Variant
	renderer Renderer
	sched    clock.Scheduler
	log      zerolog.Logger
	onMisuse MisuseHook

	bus       *EventBus
	attrs     *AttributeStore
	timing    *TimingEngine
	quartiles *QuartileReporter
	schedule  []Quartile

	state    State
	creative *CreativeParams
	env      Environment

	tickInterval    time.Duration
	stopDelay       time.Duration
	defaultDuration float64
	skippable       bool
	companions      string
	icons           bool
	clickThroughURL string

	mounted      bool
	mediaStarted bool
	ticker       clock.Task
}

// New creates an adapter for one impression
func New(variant Variant, renderer Renderer, opts ...Option) (*Adapter, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}

	a := &Adapter{
		variant:      variant,
		renderer:     renderer,
		log:          zerolog.Nop(),
		bus:          NewEventBus(),
		schedule:     DefaultQuartiles,
		tickInterval: DefaultTickInterval,
		stopDelay:    DefaultStopDelay,
	}
	if variant == NonLinear {
		a.defaultDuration = DefaultNonLinearDuration
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sched == nil {
		a.sched = clock.NewReal(nil)
	}

	quartiles, err := NewQuartileReporter(a.schedule, func(e EventName) { a.bus.Dispatch(e) })
	if err != nil {
		return nil, fmt.Errorf("invalid quartile schedule: %w", err)
	}
	a.quartiles = quartiles
	a.attrs = NewAttributeStore(a.bus, variant.VolumeScale())
	a.timing = NewTimingEngine(a.sched.Now)

	return a, nil
}

// HandshakeVersion negotiates the protocol version. The answer does not
// depend on the host's version.
func (a *Adapter) HandshakeVersion(hostVersion string) string {
	a.log.Debug().Str("host_version", hostVersion).Str("version", ProtocolVersion).Msg("Handshake")
	return ProtocolVersion
}

// Subscribe binds fn to name, replacing any previous callback
func (a *Adapter) Subscribe(name EventName, fn Handler, ctx any) {
	a.bus.Subscribe(name, fn, ctx)
}

// Unsubscribe clears the callback bound to name
func (a *Adapter) Unsubscribe(name EventName) {
	a.bus.Unsubscribe(name)
}

// Init parses creative parameters, captures the host surfaces and loads the
// attributes. It is valid only once, before anything else. A parse failure
// is returned and leaves the adapter unstarted.
func (a *Adapter) Init(width, height int, viewMode ViewMode, desiredBitrate int, creative CreativeData, env Environment) error {
	if a.state != StateUnstarted {
		a.misuse("init")
		return nil
	}

	params, err := ParseCreativeParams(creative)
	if err != nil {
		a.log.Warn().Err(err).Msg("Rejecting creative parameters")
		return err
	}

	if desiredBitrate <= 0 {
		desiredBitrate = DefaultBitrate
	}
	duration := DurationUnknown
	if a.defaultDuration > 0 {
		duration = a.defaultDuration
	}

	a.creative = params
	a.env = env
	a.attrs.load(Attributes{
		Width:          width,
		Height:         height,
		ViewMode:       viewMode,
		DesiredBitrate: desiredBitrate,
		Duration:       duration,
		Linear:         a.variant == Linear,
		SkippableState: a.skippable,
		Companions:     a.companions,
		Icons:          a.icons,
	})

	a.log.Debug().
		Int("width", width).
		Int("height", height).
		Str("view_mode", string(viewMode)).
		Int("videos", len(params.Videos)).
		Int("ads", len(params.Ads)).
		Msg("Creative loaded")

	a.transition(StateLoaded)
	a.bus.Dispatch(AdLoaded)
	return nil
}

// Start mounts the creative and begins playback. AdStarted is followed by
// exactly one AdImpression. When no video is playable a linear ad reports
// AdError and stays loaded.
func (a *Adapter) Start() {
	if a.state != StateLoaded {
		a.misuse("start")
		return
	}

	var source VideoSource
	if a.variant == Linear {
		var ok bool
		source, ok = a.creative.PlayableSource(a.renderer.CanPlay)
		if !ok {
			a.fail(ErrMediaSourceUnavailable)
			return
		}
	}

	if err := a.renderer.Mount(a.content()); err != nil {
		a.fail(fmt.Errorf("mount creative: %w", err))
		return
	}
	a.mounted = true

	if a.variant == Linear {
		a.renderer.SetMediaSource(source.URL)
		a.renderer.Play()
		a.mediaStarted = true
		a.timing.StartMedia(a.renderer)
	} else {
		a.timing.Start(a.attrs.Duration())
		a.startTicker()
	}

	a.transition(StatePlaying)
	a.bus.Dispatch(AdStarted)
	a.bus.Dispatch(AdImpression)
	if a.state == StatePlaying {
		a.reportProgress()
	}
}

// Pause freezes playback. A non-linear ad that has not become linear
// ignores it.
func (a *Adapter) Pause() {
	if a.state != StatePlaying {
		a.misuse("pause")
		return
	}
	if !a.attrs.Linear() {
		a.misuse("pause")
		return
	}

	a.cancelTicker()
	a.timing.Pause()
	a.attrs.setRemaining(a.timing.Remaining())
	if a.mediaStarted {
		a.renderer.Pause()
	}

	a.transition(StatePaused)
	a.bus.Dispatch(AdPaused)
}

// Resume continues a paused ad
func (a *Adapter) Resume() {
	if a.state != StatePaused {
		a.misuse("resume")
		return
	}

	a.timing.Resume()
	if a.mediaStarted {
		a.renderer.Play()
	}
	if a.timing.Strategy() == WallClock {
		a.startTicker()
	}

	a.transition(StatePlaying)
	a.bus.Dispatch(AdPlaying)
}

// Stop tears the ad down. AdStopped is dispatched after the stop delay,
// never synchronously; the deferred dispatch cannot be cancelled.
func (a *Adapter) Stop() {
	if a.state == StateStopped {
		a.misuse("stop")
		return
	}

	a.cancelTicker()
	if a.state.Started() {
		a.attrs.setRemaining(a.timing.Remaining())
	}
	if a.mediaStarted {
		a.renderer.Stop()
		a.mediaStarted = false
	}
	if a.mounted {
		a.renderer.Unmount()
		a.mounted = false
	}

	a.transition(StateStopped)
	a.sched.AfterFunc(a.stopDelay, func() {
		a.bus.Dispatch(AdStopped)
	})
}

// Resize updates dimensions and view mode
func (a *Adapter) Resize(width, height int, viewMode ViewMode) {
	if a.state == StateUnstarted || a.state == StateStopped {
		a.misuse("resize")
		return
	}

	a.renderer.Layout(max(width, 0), max(height, 0), viewMode)
	a.attrs.Resize(width, height, viewMode)
}

// Skip reports AdSkipped when the ad is skippable. Stopping is left to the
// host, typically from its AdSkipped callback.
func (a *Adapter) Skip() {
	if a.state == StateUnstarted || a.state == StateStopped {
		a.misuse("skip")
		return
	}
	if !a.attrs.SkippableState() {
		a.log.Debug().Msg("Skip ignored, ad is not skippable")
		return
	}
	a.bus.Dispatch(AdSkipped)
}

// Expand requests full-screen presentation and reports AdExpanded
func (a *Adapter) Expand() {
	if a.state == StateUnstarted || a.state == StateStopped {
		a.misuse("expand")
		return
	}
	a.renderer.RequestFullscreen()
	a.attrs.Expand()
}

// Collapse clears the expanded flag without reporting an event
func (a *Adapter) Collapse() {
	if a.state == StateUnstarted || a.state == StateStopped {
		a.misuse("collapse")
		return
	}
	a.attrs.Collapse()
}

// SetVolume sets the volume on the variant's scale and reports AdVolumeChange
func (a *Adapter) SetVolume(v float64) {
	if a.state == StateStopped {
		a.misuse("set_volume")
		return
	}
	scale := a.attrs.VolumeScale()
	a.renderer.SetVolume(scale.Normalize(v))
	a.attrs.SetVolume(v)
}

// Click handles a user click on the primary creative surface. AdClickThru
// is always reported first. A non-linear ad then converts to linear
// playback.
func (a *Adapter) Click() {
	if !a.state.Started() {
		a.misuse("click")
		return
	}

	a.bus.Dispatch(AdClickThru, a.clickThroughURL, "", true)

	if a.variant == NonLinear && !a.attrs.Linear() {
		a.becomeLinear()
	}
}

// OnTimeUpdate samples the media clock after the host reports progress.
// A newly known media duration that differs from the stored one is
// committed, firing AdDurationChange once.
func (a *Adapter) OnTimeUpdate() {
	if !a.state.Started() || !a.mediaStarted {
		a.misuse("time_update")
		return
	}

	_, total := a.renderer.MediaTime()
	if knownDuration(total) {
		a.attrs.SetDuration(total)
		if !a.state.Started() {
			return
		}
		if a.timing.Strategy() == WallClock {
			a.cancelTicker()
			a.timing.StartMedia(a.renderer)
			a.log.Debug().Float64("duration", total).Msg("Timing switched to media clock")
		}
	}
	if a.timing.Strategy() != MediaDriven || a.state == StatePaused {
		return
	}

	a.attrs.setRemaining(a.timing.Remaining())
	a.reportProgress()
}

// OnMediaEnded completes the progress schedule and stops the ad
func (a *Adapter) OnMediaEnded() {
	if !a.state.Started() || !a.mediaStarted {
		a.misuse("media_ended")
		return
	}
	a.quartiles.OnProgress(100)
	a.Stop()
}

// State returns the lifecycle state
func (a *Adapter) State() State { return a.state }

// Variant returns the creative variant
func (a *Adapter) Variant() Variant { return a.variant }

// Creative returns the parsed creative parameters, nil before Init
func (a *Adapter) Creative() *CreativeParams { return a.creative }

func (a *Adapter) Width() int { return a.attrs.Width() }
func (a *Adapter) Height() int { return a.attrs.Height() }
func (a *Adapter) ViewMode() ViewMode { return a.attrs.ViewMode() }
func (a *Adapter) DesiredBitrate() int { return a.attrs.DesiredBitrate() }
func (a *Adapter) Linear() bool { return a.attrs.Linear() }
func (a *Adapter) Expanded() bool { return a.attrs.Expanded() }
func (a *Adapter) SkippableState() bool { return a.attrs.SkippableState() }
func (a *Adapter) Duration() float64 { return a.attrs.Duration() }
func (a *Adapter) Volume() float64 { return a.attrs.Volume() }
func (a *Adapter) Companions() string { return a.attrs.Companions() }
func (a *Adapter) Icons() bool { return a.attrs.Icons() }

// RemainingTime returns remaining seconds, never negative unless unknown.
// While paused the value stays frozen.
func (a *Adapter) RemainingTime() float64 {
	a.refreshRemaining()
	return a.attrs.RemainingTime()
}

// Snapshot returns every attribute with remaining time refreshed
func (a *Adapter) Snapshot() Attributes {
	a.refreshRemaining()
	return a.attrs.Snapshot()
}

func (a *Adapter) refreshRemaining() {
	if a.state.Started() {
		a.attrs.setRemaining(a.timing.Remaining())
	}
}

func (a *Adapter) tick() {
	if a.state != StatePlaying || a.timing.Strategy() != WallClock {
		return
	}

	remaining := a.timing.Remaining()
	a.attrs.setRemaining(remaining)
	a.bus.Dispatch(AdRemainingTimeChange)

	// Once clicked through to video, progress and completion wait for the
	// media player.
	if a.state != StatePlaying || a.attrs.Linear() {
		return
	}
	a.reportProgress()
	if remaining <= 0 && a.state == StatePlaying {
		a.quartiles.OnProgress(100)
		a.Stop()
	}
}

func (a *Adapter) reportProgress() {
	if p := a.timing.Progress(); p >= 0 {
		a.quartiles.OnProgress(p)
	}
}

func (a *Adapter) becomeLinear() {
	source, ok := a.creative.PlayableSource(a.renderer.CanPlay)
	if !ok {
		a.fail(ErrMediaSourceUnavailable)
		return
	}

	a.attrs.SetLinear(true)
	a.renderer.SetMediaSource(source.URL)
	a.renderer.Play()
	a.mediaStarted = true
	a.log.Debug().Str("url", source.URL).Msg("Creative switched to linear playback")
}

func (a *Adapter) startTicker() {
	a.cancelTicker()
	a.ticker = a.sched.Every(a.tickInterval, a.tick)
}

func (a *Adapter) cancelTicker() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
}

func (a *Adapter) content() Content {
	return Content{
		Env:      a.env,
		Ads:      a.creative.Ads,
		Overlays: a.creative.Overlays,
		Width:    a.attrs.Width(),
		Height:   a.attrs.Height(),
		ViewMode: a.attrs.ViewMode(),
		Linear:   a.attrs.Linear(),
	}
}

func (a *Adapter) fail(err error) {
	a.log.Warn().Err(err).Str("state", a.state.String()).Msg("Reporting ad error")
	a.bus.Dispatch(AdError, err.Error())
}

func (a *Adapter) misuse(op string) {
	a.log.Debug().Str("op", op).Str("state", a.state.String()).Msg("Ignoring out-of-turn operation")
	if a.onMisuse != nil {
		a.onMisuse(op, a.state)
	}
}

func (a *Adapter) transition(to State) {
	a.log.Debug().Str("from", a.state.String()).Str("to", to.String()).Msg("State transition")
	a.state = to
}
