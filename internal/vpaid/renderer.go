package vpaid

// Environment carries the rendering surfaces the host provides at Init.
// The adapter passes them through to the Renderer untouched.
type Environment struct {
	Slot                 any
	VideoSlot            any
	VideoSlotCanAutoPlay bool
}

// Content is what the adapter asks the Renderer to mount
type Content struct {
	Env      Environment
	Ads      []AdItem
	Overlays []string
	Width    int
	Height   int
	ViewMode ViewMode
	Linear   bool
}

// Renderer is the presentation collaborator. The adapter instructs it and
// never draws anything itself.
type Renderer interface {
	MediaClock

	Mount(content Content) error
	Unmount()
	Layout(width, height int, mode ViewMode)

	CanPlay(mimeType string) bool
	SetMediaSource(url string)
	Play()
	Pause()
	Stop()
	SetVolume(level float64)

	RequestFullscreen()
}
