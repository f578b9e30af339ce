package timeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pratchat/prat/internal/chat"
)

// newestFirstPage builds a server-shaped page: newest first, n messages ending
// (oldest) at minute offset start.
func newestFirstPage(start, n int) []chat.Message {
	page := make([]chat.Message, n)
	for i := 0; i < n; i++ {
		page[i] = msgAt(fmt.Sprintf("m%03d", start+n-1-i), start+n-1-i)
	}
	return page
}

func TestLoader_PaginatesUntilShortPage(t *testing.T) {
	s := NewStore()
	l := NewLoader(s, 20, zerolog.Nop())

	// 45 messages of history: two full pages, then a short one.
	require.NoError(t, l.BeginInitial())
	l.ApplyPage(newestFirstPage(25, 20))
	require.True(t, l.HasOlder())
	require.Equal(t, 20, s.Len())
	require.Equal(t, "m025", s.OldestID())

	cursor, ok := l.BeginOlder()
	require.True(t, ok)
	require.Equal(t, "m025", cursor)
	l.ApplyPage(newestFirstPage(5, 20))
	require.True(t, l.HasOlder())
	require.Equal(t, 40, s.Len())

	cursor, ok = l.BeginOlder()
	require.True(t, ok)
	require.Equal(t, "m005", cursor)
	l.ApplyPage(newestFirstPage(0, 5))
	require.False(t, l.HasOlder())
	require.Equal(t, 45, s.Len())

	// Exhausted history refuses further loads.
	_, ok = l.BeginOlder()
	require.False(t, ok)
}

func TestLoader_ApplyPageNormalizesToAscending(t *testing.T) {
	s := NewStore()
	l := NewLoader(s, 20, zerolog.Nop())

	require.NoError(t, l.BeginInitial())
	c := l.ApplyPage(newestFirstPage(0, 3))
	require.Equal(t, ChangeReset, c.Kind)
	require.Equal(t, []string{"m000", "m001", "m002"}, storeIDs(s))
}

func TestLoader_ReappliedPageLeavesStoreUnchanged(t *testing.T) {
	s := NewStore()
	l := NewLoader(s, 20, zerolog.Nop())

	require.NoError(t, l.BeginInitial())
	page := newestFirstPage(0, 20)
	l.ApplyPage(page)
	before := s.Snapshot()

	_, ok := l.BeginOlder()
	require.True(t, ok)
	l.ApplyPage(page)
	require.Equal(t, before, s.Snapshot())
}

func TestLoader_BeginOlderRequiresInitialPage(t *testing.T) {
	l := NewLoader(NewStore(), 20, zerolog.Nop())
	_, ok := l.BeginOlder()
	require.False(t, ok)
}

func TestLoader_SingleFlight(t *testing.T) {
	l := NewLoader(NewStore(), 20, zerolog.Nop())

	require.NoError(t, l.BeginInitial())
	require.ErrorIs(t, l.BeginInitial(), ErrLoadInFlight)
	l.ApplyPage(newestFirstPage(0, 20))

	_, ok := l.BeginOlder()
	require.True(t, ok)
	_, ok = l.BeginOlder()
	require.False(t, ok)
}

func TestLoader_FailLeavesStoreAndAllowsRetry(t *testing.T) {
	s := NewStore()
	l := NewLoader(s, 20, zerolog.Nop())

	require.NoError(t, l.BeginInitial())
	l.ApplyPage(newestFirstPage(20, 20))
	before := s.Snapshot()

	_, ok := l.BeginOlder()
	require.True(t, ok)
	boom := errors.New("boom")
	l.Fail(boom)

	require.Equal(t, before, s.Snapshot())
	require.ErrorIs(t, l.Err(), boom)
	require.False(t, l.Loading())

	// The retry hands out the same cursor.
	cursor, ok := l.BeginOlder()
	require.True(t, ok)
	require.Equal(t, "m020", cursor)
	require.NoError(t, l.Err())
}

func TestLoader_BackfillBounded(t *testing.T) {
	s := NewStore()
	l := NewLoader(s, 20, zerolog.Nop())

	require.NoError(t, l.BeginInitial())
	l.ApplyPage(newestFirstPage(80, 20))

	for i := 0; i < maxBackfillAttempts; i++ {
		require.True(t, l.NeedsBackfill(false), "attempt %d", i)
		l.NoteBackfill()
		_, ok := l.BeginOlder()
		require.True(t, ok)
		l.ApplyPage(newestFirstPage(80-20*(i+1), 20))
	}
	require.False(t, l.NeedsBackfill(false))

	// A scrollable viewport never backfills.
	require.False(t, l.NeedsBackfill(true))
}

func TestLoader_NoBackfillWhileLoadingOrFailed(t *testing.T) {
	s := NewStore()
	l := NewLoader(s, 20, zerolog.Nop())

	require.NoError(t, l.BeginInitial())
	l.ApplyPage(newestFirstPage(20, 20))

	_, ok := l.BeginOlder()
	require.True(t, ok)
	require.False(t, l.NeedsBackfill(false))

	l.Fail(errors.New("boom"))
	require.False(t, l.NeedsBackfill(false))
}
