package timeline

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pratchat/prat/internal/sched"
)

// fakeViewport is a line-based scroll surface for anchor tests.
type fakeViewport struct {
	content int
	client  int
	top     int
}

func (v *fakeViewport) ScrollTop() int { return v.top }

func (v *fakeViewport) SetScrollTop(top int) {
	max := v.content - v.client
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

func (v *fakeViewport) ScrollHeight() int { return v.content }
func (v *fakeViewport) ClientHeight() int { return v.client }

func newTestAnchor(vp *fakeViewport, sch sched.Scheduler) *Anchor {
	return NewAnchor(vp, sch, AnchorConfig{
		BottomThreshold: 2,
		TopThreshold:    3,
		PulseAttempts:   12,
		PulseInterval:   80 * time.Millisecond,
	}, zerolog.Nop())
}

func TestAnchor_StartsStuckToBottom(t *testing.T) {
	vp := &fakeViewport{content: 100, client: 10}
	a := newTestAnchor(vp, sched.NewManual())
	require.True(t, a.StickToBottom())
}

func TestAnchor_AppendSnapsWhenStuck(t *testing.T) {
	sch := sched.NewManual()
	vp := &fakeViewport{content: 100, client: 10, top: 90}
	a := newTestAnchor(vp, sch)

	vp.content = 105
	a.HandleChange(Change{Kind: ChangeAppend, Count: 1})
	require.Equal(t, 95, vp.ScrollTop())
	a.Close()
}

func TestAnchor_AppendLeavesScrolledUpReaderAlone(t *testing.T) {
	sch := sched.NewManual()
	vp := &fakeViewport{content: 100, client: 10, top: 40}
	a := newTestAnchor(vp, sch)
	a.HandleScroll() // reading history; well above the threshold
	require.False(t, a.StickToBottom())

	vp.content = 110
	a.HandleChange(Change{Kind: ChangeAppend, Count: 1})
	require.Equal(t, 40, vp.ScrollTop())
}

func TestAnchor_BottomThresholdTolerance(t *testing.T) {
	vp := &fakeViewport{content: 100, client: 10, top: 88}
	a := newTestAnchor(vp, sched.NewManual())

	// 2 lines from the bottom still counts as at-bottom.
	a.HandleScroll()
	require.True(t, a.StickToBottom())

	vp.SetScrollTop(87)
	a.HandleScroll()
	require.False(t, a.StickToBottom())
}

func TestAnchor_UpwardScrollNearTopPaginates(t *testing.T) {
	vp := &fakeViewport{content: 100, client: 10, top: 10}
	a := newTestAnchor(vp, sched.NewManual())
	loads := 0
	a.OnLoadOlder(func() { loads++ })
	a.HandleScroll() // establish lastScrollTop

	vp.SetScrollTop(2)
	a.HandleScroll()
	require.Equal(t, 1, loads)

	// Downward movement back out never paginates.
	vp.SetScrollTop(5)
	a.HandleScroll()
	require.Equal(t, 1, loads)

	// Upward but outside the threshold: no trigger.
	vp.SetScrollTop(4)
	a.HandleScroll()
	require.Equal(t, 1, loads)
}

func TestAnchor_PrependKeepsVisualPosition(t *testing.T) {
	vp := &fakeViewport{content: 60, client: 10, top: 1}
	a := newTestAnchor(vp, sched.NewManual())
	a.HandleScroll()
	require.False(t, a.StickToBottom())

	a.BeginPrepend()
	vp.content = 100 // 40 lines of older history arrive above
	a.EndPrepend()

	require.Equal(t, 41, vp.ScrollTop())
}

func TestAnchor_ReboundAfterPrependDoesNotRetrigger(t *testing.T) {
	vp := &fakeViewport{content: 60, client: 10, top: 2}
	a := newTestAnchor(vp, sched.NewManual())
	loads := 0
	a.OnLoadOlder(func() { loads++ })
	a.HandleScroll()

	a.BeginPrepend()
	vp.content = 100
	a.EndPrepend()
	require.Equal(t, 42, vp.ScrollTop())

	// The next genuine scroll compares against the corrected position, so the
	// downward rebound is not an upward move.
	vp.SetScrollTop(44)
	a.HandleScroll()
	require.Zero(t, loads)
}

func TestAnchor_NoPaginationDuringPrepend(t *testing.T) {
	vp := &fakeViewport{content: 60, client: 10, top: 5}
	a := newTestAnchor(vp, sched.NewManual())
	loads := 0
	a.OnLoadOlder(func() { loads++ })
	a.HandleScroll()

	a.BeginPrepend()
	vp.SetScrollTop(1)
	a.HandleScroll()
	require.Zero(t, loads)
	a.EndPrepend()
}

func TestAnchor_TailAppendDuringPrependIsDeferred(t *testing.T) {
	sch := sched.NewManual()
	vp := &fakeViewport{content: 60, client: 10, top: 52}
	a := newTestAnchor(vp, sch)
	a.HandleScroll()
	require.True(t, a.StickToBottom())

	a.BeginPrepend()

	// A live message lands while older history is being merged.
	vp.content = 61
	a.HandleChange(Change{Kind: ChangeAppend, Count: 1})
	require.Equal(t, 52, vp.ScrollTop(), "no snap mid-prepend")

	vp.content = 101 // the prepend lays out: 40 older lines
	a.EndPrepend()

	// The deferred tail wins: a pinned reader ends at the bottom.
	require.Equal(t, 91, vp.ScrollTop())
	a.Close()
}

func TestAnchor_PulseIsBounded(t *testing.T) {
	sch := sched.NewManual()
	vp := &fakeViewport{content: 100, client: 10, top: 90}
	a := newTestAnchor(vp, sch)

	a.HandleChange(Change{Kind: ChangeAppend, Count: 1})
	require.Equal(t, 1, sch.PendingCount())

	// Content keeps settling during the pulse; every tick re-snaps.
	vp.content = 120
	sch.Advance(80 * time.Millisecond)
	require.Equal(t, 110, vp.ScrollTop())

	sch.Advance(12 * 80 * time.Millisecond)
	require.Zero(t, sch.PendingCount(), "pulse stops after its attempts")
}

func TestAnchor_PulseStopsWhenReaderScrollsUp(t *testing.T) {
	sch := sched.NewManual()
	vp := &fakeViewport{content: 100, client: 10, top: 90}
	a := newTestAnchor(vp, sch)

	a.HandleChange(Change{Kind: ChangeAppend, Count: 1})
	vp.SetScrollTop(40)
	a.HandleScroll()
	require.False(t, a.StickToBottom())
	require.Zero(t, sch.PendingCount())

	sch.Advance(time.Second)
	require.Equal(t, 40, vp.ScrollTop())
}

func TestAnchor_CloseStopsPulse(t *testing.T) {
	sch := sched.NewManual()
	vp := &fakeViewport{content: 100, client: 10, top: 90}
	a := newTestAnchor(vp, sch)

	a.HandleChange(Change{Kind: ChangeAppend, Count: 1})
	require.Equal(t, 1, sch.PendingCount())
	a.Close()
	require.Zero(t, sch.PendingCount())
}

func TestAnchor_LayoutChangeReassertsTail(t *testing.T) {
	vp := &fakeViewport{content: 100, client: 10, top: 90}
	a := newTestAnchor(vp, sched.NewManual())

	vp.content = 130 // late layout growth, no store mutation
	a.HandleLayoutChange()
	require.Equal(t, 120, vp.ScrollTop())
	a.Close()
}
