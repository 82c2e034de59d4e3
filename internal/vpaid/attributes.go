package vpaid

import "math"

// ViewMode is the presentation mode requested by the host
type ViewMode string

const (
	ViewModeNormal     ViewMode = "normal"
	ViewModeFullscreen ViewMode = "fullscreen"
	ViewModeThumbnail  ViewMode = "thumbnail"
)

// ParseViewMode returns the view mode named by s
func ParseViewMode(s string) (ViewMode, bool) {
	switch ViewMode(s) {
	case ViewModeNormal, ViewModeFullscreen, ViewModeThumbnail:
		return ViewMode(s), true
	}
	return ViewModeNormal, false
}

// DurationUnknown is reported for duration and remaining time before the
// creative's length is known.
const DurationUnknown = -2.0

// VolumeScale is the upper bound of a variant's volume range. Linear and
// non-linear creatives use different scales and they are never converted
// into one another.
type VolumeScale float64

const (
	// UnitVolume is the [0,1] scale used by linear creatives
	UnitVolume VolumeScale = 1
	// PercentVolume is the [0,100] scale used by non-linear creatives
	PercentVolume VolumeScale = 100
)

// Clamp bounds v to [0, scale]
func (s VolumeScale) Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, float64(s))
}

// Normalize maps v on this scale to a [0,1] level
func (s VolumeScale) Normalize(v float64) float64 {
	return s.Clamp(v) / float64(s)
}

// Attributes is a point-in-time copy of the adapter's property bag
type Attributes struct {
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	ViewMode       ViewMode `json:"view_mode"`
	DesiredBitrate int      `json:"desired_bitrate"`
	Duration       float64  `json:"duration"`
	RemainingTime  float64  `json:"remaining_time"`
	Volume         float64  `json:"volume"`
	Linear         bool     `json:"linear"`
	Expanded       bool     `json:"expanded"`
	SkippableState bool     `json:"skippable_state"`
	Companions     string   `json:"companions"`
	Icons          bool     `json:"icons"`
}

// AttributeStore owns the mutable attributes. Setters for host-visible
// values commit first and then emit the matching change event.
type AttributeStore struct {
	bus   *EventBus
	scale VolumeScale
	attrs Attributes
}

// NewAttributeStore creates a store emitting on bus
func NewAttributeStore(bus *EventBus, scale VolumeScale) *AttributeStore {
	return &AttributeStore{
		bus:   bus,
		scale: scale,
		attrs: Attributes{
			ViewMode:      ViewModeNormal,
			Duration:      DurationUnknown,
			RemainingTime: DurationUnknown,
			Volume:        float64(scale),
		},
	}
}

func (s *AttributeStore) Width() int { return s.attrs.Width }
func (s *AttributeStore) Height() int { return s.attrs.Height }
func (s *AttributeStore) ViewMode() ViewMode { return s.attrs.ViewMode }
func (s *AttributeStore) DesiredBitrate() int { return s.attrs.DesiredBitrate }
func (s *AttributeStore) Duration() float64 { return s.attrs.Duration }
func (s *AttributeStore) Volume() float64 { return s.attrs.Volume }
func (s *AttributeStore) Linear() bool { return s.attrs.Linear }
func (s *AttributeStore) Expanded() bool { return s.attrs.Expanded }
func (s *AttributeStore) SkippableState() bool { return s.attrs.SkippableState }
func (s *AttributeStore) Companions() string { return s.attrs.Companions }
func (s *AttributeStore) Icons() bool { return s.attrs.Icons }
func (s *AttributeStore) VolumeScale() VolumeScale { return s.scale }

// RemainingTime returns the last computed remaining time, clamped at zero
// unless it is unknown.
func (s *AttributeStore) RemainingTime() float64 {
	return reportable(s.attrs.RemainingTime)
}

// Snapshot returns a copy of all attributes
func (s *AttributeStore) Snapshot() Attributes {
	out := s.attrs
	out.RemainingTime = reportable(out.RemainingTime)
	return out
}

// Resize commits new dimensions and emits AdSizeChange
func (s *AttributeStore) Resize(width, height int, mode ViewMode) {
	s.setSize(width, height, mode)
	s.bus.Dispatch(AdSizeChange)
}

// SetVolume clamps v to the store's scale, commits it and emits AdVolumeChange
func (s *AttributeStore) SetVolume(v float64) {
	s.attrs.Volume = s.scale.Clamp(v)
	s.bus.Dispatch(AdVolumeChange)
}

// SetDuration commits d and emits AdDurationChange. Setting the current
// value again is a no-op. It reports whether the value changed.
func (s *AttributeStore) SetDuration(d float64) bool {
	if d == s.attrs.Duration {
		return false
	}
	s.attrs.Duration = d
	s.bus.Dispatch(AdDurationChange)
	return true
}

// SetLinear commits the linear flag and emits AdLinearChange when it flips
func (s *AttributeStore) SetLinear(linear bool) {
	if s.attrs.Linear == linear {
		return
	}
	s.attrs.Linear = linear
	s.bus.Dispatch(AdLinearChange)
}

// Expand sets the expanded flag and emits AdExpanded
func (s *AttributeStore) Expand() {
	s.attrs.Expanded = true
	s.bus.Dispatch(AdExpanded)
}

// Collapse clears the expanded flag. No event is emitted.
func (s *AttributeStore) Collapse() {
	s.attrs.Expanded = false
}

func (s *AttributeStore) setSize(width, height int, mode ViewMode) {
	s.attrs.Width = max(width, 0)
	s.attrs.Height = max(height, 0)
	s.attrs.ViewMode = mode
}

func (s *AttributeStore) setRemaining(r float64) {
	s.attrs.RemainingTime = r
}

func (s *AttributeStore) load(init Attributes) {
	s.setSize(init.Width, init.Height, init.ViewMode)
	s.attrs.DesiredBitrate = init.DesiredBitrate
	s.attrs.Duration = init.Duration
	s.attrs.RemainingTime = init.Duration
	s.attrs.Linear = init.Linear
	s.attrs.SkippableState = init.SkippableState
	s.attrs.Companions = init.Companions
	s.attrs.Icons = init.Icons
}

func reportable(r float64) float64 {
	if r == DurationUnknown {
		return r
	}
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	return r
}
