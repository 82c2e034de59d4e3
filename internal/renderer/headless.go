// Package renderer provides Renderer implementations for the adapter core
package renderer

import (
	"strings"
	"sync"

	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
)

// DefaultMimeTypes are the media types a Headless renderer accepts by default
var DefaultMimeTypes = []string{"video/mp4", "video/webm"}

// Headless is a Renderer with no pixels. The media clock is whatever the
// host last reported through ReportTime, so it fits server-side sessions
// where the real player lives elsewhere.
type Headless struct {
	mu sync.Mutex

	playable map[string]bool
	mountErr error
	calls    []string

	mounted    bool
	content    vpaid.Content
	source     string
	playing    bool
	current    float64
	total      float64
	volume     float64
	fullscreen bool
	width      int
	height     int
	viewMode   vpaid.ViewMode
}

// NewHeadless creates a renderer accepting the given mime types
// (DefaultMimeTypes when none are given).
func NewHeadless(mimeTypes ...string) *Headless {
	if len(mimeTypes) == 0 {
		mimeTypes = DefaultMimeTypes
	}
	playable := make(map[string]bool, len(mimeTypes))
	for _, m := range mimeTypes {
		playable[normalizeMime(m)] = true
	}
	return &Headless{playable: playable, volume: 1}
}

// FailMount makes the next Mount calls return err (nil clears it)
func (h *Headless) FailMount(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mountErr = err
}

// ReportTime records the host player's position and length in seconds
func (h *Headless) ReportTime(current, total float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = current
	h.total = total
}

func (h *Headless) Mount(content vpaid.Content) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("mount")
	if h.mountErr != nil {
		return h.mountErr
	}
	h.mounted = true
	h.content = content
	h.width, h.height, h.viewMode = content.Width, content.Height, content.ViewMode
	return nil
}

func (h *Headless) Unmount() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("unmount")
	h.mounted = false
	h.fullscreen = false
}

func (h *Headless) Layout(width, height int, mode vpaid.ViewMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("layout")
	h.width, h.height, h.viewMode = width, height, mode
}

func (h *Headless) CanPlay(mimeType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playable[normalizeMime(mimeType)]
}

func (h *Headless) SetMediaSource(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("source")
	h.source = url
	h.current, h.total = 0, 0
}

func (h *Headless) Play() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("play")
	h.playing = true
}

func (h *Headless) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("pause")
	h.playing = false
}

func (h *Headless) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("stop")
	h.playing = false
}

func (h *Headless) SetVolume(level float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("volume")
	h.volume = level
}

func (h *Headless) RequestFullscreen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("fullscreen")
	h.fullscreen = true
}

func (h *Headless) MediaTime() (current, total float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, h.total
}

// State is a copy of what the renderer currently presents
type State struct {
	Mounted    bool           `json:"mounted"`
	Source     string         `json:"source,omitempty"`
	Playing    bool           `json:"playing"`
	Current    float64        `json:"current_time"`
	Total      float64        `json:"total_time"`
	Volume     float64        `json:"volume"`
	Fullscreen bool           `json:"fullscreen"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	ViewMode   vpaid.ViewMode `json:"view_mode,omitempty"`
	Overlays   int            `json:"overlays"`
}

// State returns the current presentation state
func (h *Headless) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return State{
		Mounted:    h.mounted,
		Source:     h.source,
		Playing:    h.playing,
		Current:    h.current,
		Total:      h.total,
		Volume:     h.volume,
		Fullscreen: h.fullscreen,
		Width:      h.width,
		Height:     h.height,
		ViewMode:   h.viewMode,
		Overlays:   len(h.content.Overlays),
	}
}

// Calls returns the renderer instructions received so far, in order
func (h *Headless) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *Headless) record(call string) {
	h.calls = append(h.calls, call)
}

func normalizeMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

var _ vpaid.Renderer = (*Headless)(nil)
