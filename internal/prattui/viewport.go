package prattui

// tuiViewport backs timeline.Viewport with rendered lines: one unit is one
// line. ScrollHeight tracks the content, ClientHeight the widget, and the
// anchor does the rest.
type tuiViewport struct {
	lines  []string
	top    int
	height int
}

func (v *tuiViewport) ScrollTop() int { return v.top }

func (v *tuiViewport) SetScrollTop(top int) {
	max := len(v.lines) - v.height
	if max < 0 {
		max = 0
	}
	if top > max {
		top = max
	}
	if top < 0 {
		top = 0
	}
	v.top = top
}

func (v *tuiViewport) ScrollHeight() int { return len(v.lines) }

func (v *tuiViewport) ClientHeight() int { return v.height }

func (v *tuiViewport) SetHeight(h int) {
	if h < 0 {
		h = 0
	}
	v.height = h
	v.SetScrollTop(v.top)
}

// SetContent swaps the rendered lines, clamping the offset.
func (v *tuiViewport) SetContent(lines []string) {
	v.lines = lines
	v.SetScrollTop(v.top)
}

// ScrollBy moves the window and reports whether the offset changed.
func (v *tuiViewport) ScrollBy(delta int) bool {
	before := v.top
	v.SetScrollTop(v.top + delta)
	return v.top != before
}

// Visible returns the lines inside the window.
func (v *tuiViewport) Visible() []string {
	if v.height <= 0 || len(v.lines) == 0 {
		return nil
	}
	end := v.top + v.height
	if end > len(v.lines) {
		end = len(v.lines)
	}
	if v.top >= end {
		return nil
	}
	return v.lines[v.top:end]
}
