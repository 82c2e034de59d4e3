package vpaid

import (
	"math"
	"time"
)

// Strategy selects how the timing engine measures playback
type Strategy int

const (
	// WallClock measures elapsed wall time minus paused time against the
	// stored duration. Used by non-linear creatives not backed by media.
	WallClock Strategy = iota
	// MediaDriven reads the media player's position and length.
	MediaDriven
)

func (s Strategy) String() string {
	if s == MediaDriven {
		return "media"
	}
	return "wall_clock"
}

// MediaClock reports the playback position of the host media element in
// seconds. A total that is not positive or is NaN means unknown.
type MediaClock interface {
	MediaTime() (current, total float64)
}

// TimingSnapshot is the wall-clock bookkeeping of a started engine
type TimingSnapshot struct {
	StartTime         time.Time
	PausedAccumulated time.Duration
	IsPaused          bool
	PauseStartTime    time.Time
}

// TimingEngine computes remaining time and progress.
//
// While paused, Remaining returns the value computed at the moment of the
// pause. The switch from WallClock to MediaDriven is one-way.
type TimingEngine struct {
	now      func() time.Time
	strategy Strategy
	media    MediaClock
	started  bool

	duration          float64
	startTime         time.Time
	pausedAccumulated time.Duration
	paused            bool
	pauseStartTime    time.Time

	remaining float64
	progress  float64
}

// NewTimingEngine creates an engine reading wall time from now
func NewTimingEngine(now func() time.Time) *TimingEngine {
	if now == nil {
		now = time.Now
	}
	return &TimingEngine{
		now:       now,
		duration:  DurationUnknown,
		remaining: DurationUnknown,
		progress:  -1,
	}
}

// Start begins wall-clock timing against duration seconds. It is ignored
// once the engine follows the media clock.
func (e *TimingEngine) Start(duration float64) {
	if e.started && e.strategy == MediaDriven {
		return
	}
	e.strategy = WallClock
	e.started = true
	e.duration = duration
	e.startTime = e.now()
	e.pausedAccumulated = 0
	e.paused = false
	e.remaining = duration
	e.progress = 0
}

// StartMedia switches to the media-driven strategy. Calling it again is a no-op.
func (e *TimingEngine) StartMedia(media MediaClock) {
	if e.strategy == MediaDriven && e.started {
		return
	}
	e.strategy = MediaDriven
	e.media = media
	if !e.started {
		e.started = true
		e.startTime = e.now()
	}
	if !e.paused {
		e.sample()
	}
}

// SetDuration replaces the wall-clock duration
func (e *TimingEngine) SetDuration(d float64) {
	e.duration = d
}

// Pause freezes the clock at its current value
func (e *TimingEngine) Pause() {
	if !e.started || e.paused {
		return
	}
	e.sample()
	e.paused = true
	e.pauseStartTime = e.now()
}

// Resume unfreezes the clock. Time spent paused does not count as played.
func (e *TimingEngine) Resume() {
	if !e.paused {
		return
	}
	e.pausedAccumulated += e.now().Sub(e.pauseStartTime)
	e.paused = false
	e.pauseStartTime = time.Time{}
}

// Remaining returns remaining seconds. The value may be negative when the
// wall clock has run past the duration.
func (e *TimingEngine) Remaining() float64 {
	if e.started && !e.paused {
		e.sample()
	}
	return e.remaining
}

// Progress returns the played percentage in [0,100], or -1 when unknown
func (e *TimingEngine) Progress() float64 {
	if e.started && !e.paused {
		e.sample()
	}
	return e.progress
}

// Strategy returns the active strategy
func (e *TimingEngine) Strategy() Strategy {
	return e.strategy
}

// Started reports whether timing has begun
func (e *TimingEngine) Started() bool {
	return e.started
}

// Paused reports whether the clock is frozen
func (e *TimingEngine) Paused() bool {
	return e.paused
}

// Snapshot returns wall-clock bookkeeping; ok is false before Start
func (e *TimingEngine) Snapshot() (TimingSnapshot, bool) {
	if !e.started {
		return TimingSnapshot{}, false
	}
	return TimingSnapshot{
		StartTime:         e.startTime,
		PausedAccumulated: e.pausedAccumulated,
		IsPaused:          e.paused,
		PauseStartTime:    e.pauseStartTime,
	}, true
}

func (e *TimingEngine) sample() {
	switch e.strategy {
	case MediaDriven:
		current, total := e.media.MediaTime()
		if !knownDuration(total) {
			e.remaining = DurationUnknown
			e.progress = -1
			return
		}
		e.remaining = total - current
		e.progress = percent(current, total)
	default:
		elapsed := e.now().Sub(e.startTime) - e.pausedAccumulated
		if !knownDuration(e.duration) {
			e.remaining = DurationUnknown
			e.progress = -1
			return
		}
		e.remaining = e.duration - elapsed.Seconds()
		e.progress = percent(elapsed.Seconds(), e.duration)
	}
}

func knownDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0
}

func percent(played, total float64) float64 {
	p := played / total * 100
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	return math.Min(p, 100)
}
