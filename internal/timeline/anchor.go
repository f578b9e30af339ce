package timeline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/pratchat/prat/internal/sched"
)

// Viewport is the scrollable surface the anchor steers. The TUI backs it with
// rendered lines (one unit = one line); a browser-style frontend would back
// it with pixels. ScrollHeight is total content extent, ClientHeight the
// visible extent, ScrollTop the offset of the visible window's top edge.
type Viewport interface {
	ScrollTop() int
	SetScrollTop(top int)
	ScrollHeight() int
	ClientHeight() int
}

// AnchorConfig tunes the controller. Zero fields take defaults.
type AnchorConfig struct {
	// BottomThreshold is the max distance from the bottom that still counts
	// as "at the bottom" for stick-to-bottom.
	BottomThreshold int
	// TopThreshold is the distance from the top within which an upward scroll
	// triggers backward pagination.
	TopThreshold int
	// PulseAttempts bounds the re-anchor pulse after a tail mutation.
	PulseAttempts int
	// PulseInterval spaces the pulse attempts.
	PulseInterval time.Duration
}

func (c AnchorConfig) withDefaults() AnchorConfig {
	if c.BottomThreshold <= 0 {
		c.BottomThreshold = 32
	}
	if c.TopThreshold <= 0 {
		c.TopThreshold = 48
	}
	if c.PulseAttempts <= 0 {
		c.PulseAttempts = 12
	}
	if c.PulseInterval <= 0 {
		c.PulseInterval = 80 * time.Millisecond
	}
	return c
}

// Anchor keeps the viewport visually stable across mutations at either end of
// the timeline: stick-to-bottom on tail appends, scroll-delta compensation on
// head prepends. It owns no goroutines; its only asynchrony is pulse tasks on
// the scheduler, and Close stops those.
type Anchor struct {
	vp    Viewport
	sched sched.Scheduler
	cfg   AnchorConfig
	log   zerolog.Logger

	stickToBottom bool
	lastScrollTop int

	// isPrependingHistory guards the window between BeginPrepend and
	// EndPrepend so tail anchoring cannot fight the prepend correction.
	isPrependingHistory bool
	prePrependHeight    int
	prePrependTop       int
	// tailDeferred records a tail append that arrived mid-prepend; it is
	// re-evaluated once the prepend correction lands.
	tailDeferred bool

	pulseTask      sched.Task
	pulseRemaining int

	// onLoadOlder is invoked when an upward scroll near the top should fetch
	// the previous page. The loader decides whether older pages exist.
	onLoadOlder func()
}

func NewAnchor(vp Viewport, sch sched.Scheduler, cfg AnchorConfig, log zerolog.Logger) *Anchor {
	return &Anchor{
		vp:            vp,
		sched:         sch,
		cfg:           cfg.withDefaults(),
		log:           log,
		stickToBottom: true,
	}
}

// OnLoadOlder sets the backward-pagination trigger.
func (a *Anchor) OnLoadOlder(fn func()) { a.onLoadOlder = fn }

// StickToBottom reports whether the viewport is pinned to the newest message.
func (a *Anchor) StickToBottom() bool { return a.stickToBottom }

func (a *Anchor) distanceFromBottom() int {
	return a.vp.ScrollHeight() - (a.vp.ScrollTop() + a.vp.ClientHeight())
}

// HandleScroll is called after any user-driven scroll. It recomputes
// stick-to-bottom and fires backward pagination on upward movement near the
// top. Downward movement never paginates, so a rebound after the prepend
// correction cannot re-trigger a load.
func (a *Anchor) HandleScroll() {
	top := a.vp.ScrollTop()
	upward := top < a.lastScrollTop
	a.lastScrollTop = top

	a.stickToBottom = a.distanceFromBottom() <= a.cfg.BottomThreshold
	if !a.stickToBottom {
		a.stopPulse()
	}

	if upward && top <= a.cfg.TopThreshold && !a.isPrependingHistory && a.onLoadOlder != nil {
		a.onLoadOlder()
	}
}

// HandleChange reacts to a store mutation that has already been projected and
// laid out.
func (a *Anchor) HandleChange(c Change) {
	switch c.Kind {
	case ChangeAppend, ChangeReset:
		if !a.stickToBottom {
			return
		}
		if a.isPrependingHistory {
			a.tailDeferred = true
			return
		}
		a.snapToBottom()
		a.startPulse()
	case ChangePrepend:
		// Handled by the BeginPrepend/EndPrepend pair around the merge.
	case ChangeInsert, ChangePatch, ChangeRemove:
		if a.stickToBottom && !a.isPrependingHistory {
			a.snapToBottom()
		}
	}
}

// HandleLayoutChange re-asserts the tail anchor when content height moved
// without a store mutation (image decode, late glyph measurement).
func (a *Anchor) HandleLayoutChange() {
	if a.stickToBottom && !a.isPrependingHistory {
		a.snapToBottom()
	}
}

// BeginPrepend captures geometry before older history is merged in. It must
// be paired with EndPrepend after the merge has been laid out.
func (a *Anchor) BeginPrepend() {
	a.isPrependingHistory = true
	a.prePrependHeight = a.vp.ScrollHeight()
	a.prePrependTop = a.vp.ScrollTop()
}

// EndPrepend restores the pre-merge visual position: the message that sat at
// the top edge before the prepend stays put. Any tail append deferred during
// the window is then re-evaluated.
func (a *Anchor) EndPrepend() {
	if !a.isPrependingHistory {
		return
	}
	grown := a.vp.ScrollHeight() - a.prePrependHeight
	newTop := a.prePrependTop + grown
	a.vp.SetScrollTop(newTop)
	a.lastScrollTop = a.vp.ScrollTop()
	a.isPrependingHistory = false

	if a.tailDeferred {
		a.tailDeferred = false
		if a.stickToBottom {
			a.snapToBottom()
			a.startPulse()
		}
	}
}

func (a *Anchor) snapToBottom() {
	bottom := a.vp.ScrollHeight() - a.vp.ClientHeight()
	if bottom < 0 {
		bottom = 0
	}
	a.vp.SetScrollTop(bottom)
	a.lastScrollTop = a.vp.ScrollTop()
}

// startPulse schedules the bounded re-anchor pulse that absorbs layout shifts
// settling after a tail mutation.
func (a *Anchor) startPulse() {
	a.stopPulse()
	a.pulseRemaining = a.cfg.PulseAttempts
	a.pulseTask = a.sched.Every(a.cfg.PulseInterval, a.pulseTick)
}

func (a *Anchor) pulseTick() {
	if !a.stickToBottom || a.isPrependingHistory {
		a.stopPulse()
		return
	}
	a.snapToBottom()
	a.pulseRemaining--
	if a.pulseRemaining <= 0 {
		a.stopPulse()
	}
}

func (a *Anchor) stopPulse() {
	if a.pulseTask != nil {
		a.pulseTask.Stop()
		a.pulseTask = nil
	}
}

// Close releases the pulse task. The anchor is unusable afterwards.
func (a *Anchor) Close() {
	a.stopPulse()
}
