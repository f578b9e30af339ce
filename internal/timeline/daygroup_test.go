package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pratchat/prat/internal/chat"
)

func TestDayLabel(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)

	require.Equal(t, "Today", DayLabel(now.Add(-2*time.Hour), now))
	require.Equal(t, "Yesterday", DayLabel(now.AddDate(0, 0, -1), now))
	require.Equal(t, "Monday, Aug 3", DayLabel(time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC), now))
	require.Equal(t, "Dec 31, 2025", DayLabel(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC), now))
}

func TestGroupByDay_Boundaries(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	msgs := []chat.Message{
		{ID: "a", CreatedAt: time.Date(2026, 8, 27, 23, 59, 0, 0, time.UTC)},
		{ID: "b", CreatedAt: time.Date(2026, 8, 28, 0, 1, 0, 0, time.UTC)},
		{ID: "c", CreatedAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)},
		{ID: "d", CreatedAt: time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)},
	}

	groups := GroupByDay(msgs, now)
	require.Len(t, groups, 3)

	require.Equal(t, "2026-08-27", groups[0].Key)
	require.Len(t, groups[0].Messages, 1)

	require.Equal(t, "2026-08-28", groups[1].Key)
	require.Equal(t, "Yesterday", groups[1].Label)
	require.Len(t, groups[1].Messages, 2)

	require.Equal(t, "2026-08-29", groups[2].Key)
	require.Equal(t, "Today", groups[2].Label)
}

func TestGroupByDay_Empty(t *testing.T) {
	require.Nil(t, GroupByDay(nil, time.Now()))
}

func TestGroupByDay_Deterministic(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	msgs := []chat.Message{msgAt("a", 0), msgAt("b", 10)}
	require.Equal(t, GroupByDay(msgs, now), GroupByDay(msgs, now))
}

func TestProjector_RecomputesOnEveryChange(t *testing.T) {
	s := NewStore()
	now := func() time.Time { return testBase.Add(time.Hour) }
	p := NewProjector(s, now)

	require.Empty(t, p.Groups())

	s.Upsert(msgAt("a", 0))
	require.Len(t, p.Groups(), 1)
	require.Len(t, p.Groups()[0].Messages, 1)

	s.Upsert(msgAt("b", 10))
	require.Len(t, p.Groups()[0].Messages, 2)

	s.Remove("a")
	s.Remove("b")
	require.Empty(t, p.Groups())
}
