package display

import (
	"time"

	"github.com/gorcp/rcq/texture"
)

// Headless is an Output without a screen. Vertical blanks are simulated
// at a fixed rate, which keeps frame pacing code exercisable in tests
// and offline renders.
type Headless struct {
	// Rate is the simulated refresh interval. Zero means no pacing,
	// WaitVBlank returns immediately.
	Rate time.Duration

	current *texture.Texture
	frames  int
	last    time.Time
}

func (h *Headless) SetFramebuffer(t *texture.Texture) {
	h.current = t
	h.frames++
}

func (h *Headless) WaitVBlank(timeout time.Duration) bool {
	if h.Rate == 0 {
		return true
	}
	next := h.last.Add(h.Rate)
	now := time.Now()
	if wait := next.Sub(now); wait > 0 {
		if wait > timeout {
			return false
		}
		time.Sleep(wait)
	}
	h.last = time.Now()
	return true
}

// Framebuffer returns the surface currently scanned out.
func (h *Headless) Framebuffer() *texture.Texture { return h.current }

// Frames returns the number of framebuffer switches so far.
func (h *Headless) Frames() int { return h.frames }
