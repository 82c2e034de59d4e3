package vpaid

// State is the adapter lifecycle state
type State int

const (
	StateUnstarted State = iota
	StateLoaded
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Started reports whether the ad is playing or paused
func (s State) Started() bool {
	return s == StatePlaying || s == StatePaused
}

// Variant selects the creative type and with it the timing strategy and
// volume scale.
type Variant int

const (
	// Linear creatives play media in the primary player from the start
	Linear Variant = iota
	// NonLinear creatives overlay content on wall-clock timing and may
	// convert to linear playback on a user click
	NonLinear
)

func (v Variant) String() string {
	if v == NonLinear {
		return "nonlinear"
	}
	return "linear"
}

// VolumeScale returns the variant's volume range
func (v Variant) VolumeScale() VolumeScale {
	if v == NonLinear {
		return PercentVolume
	}
	return UnitVolume
}

// ParseVariant returns the variant named by s
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "linear", "":
		return Linear, true
	case "nonlinear", "non-linear", "non_linear":
		return NonLinear, true
	}
	return Linear, false
}
