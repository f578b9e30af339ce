package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pratchat/prat/internal/chat"
)

var testConv = chat.ConversationRef{Kind: chat.KindChannel, ID: "general"}

var testBase = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

// msgAt builds a message offset from the shared base time by n minutes.
func msgAt(id string, n int) chat.Message {
	return chat.Message{
		ID:             id,
		Conversation:   testConv,
		AuthorID:       "u-" + id,
		AuthorUsername: "user-" + id,
		Content:        "message " + id,
		CreatedAt:      testBase.Add(time.Duration(n) * time.Minute),
	}
}

func storeIDs(s *Store) []string {
	snap := s.Snapshot()
	ids := make([]string, len(snap))
	for i, m := range snap {
		ids[i] = m.ID
	}
	return ids
}

func TestStore_UpsertClassifiesByPosition(t *testing.T) {
	s := NewStore()

	c := s.Upsert(msgAt("b", 10))
	require.Equal(t, ChangeAppend, c.Kind)

	c = s.Upsert(msgAt("d", 30))
	require.Equal(t, ChangeAppend, c.Kind)

	c = s.Upsert(msgAt("a", 0))
	require.Equal(t, ChangePrepend, c.Kind)

	c = s.Upsert(msgAt("c", 20))
	require.Equal(t, ChangeInsert, c.Kind)

	edited := msgAt("c", 20)
	edited.Content = "revised"
	c = s.Upsert(edited)
	require.Equal(t, ChangePatch, c.Kind)

	require.Equal(t, []string{"a", "b", "c", "d"}, storeIDs(s))
	got, ok := s.Get("c")
	require.True(t, ok)
	require.Equal(t, "revised", got.Content)
}

func TestStore_UpsertIdempotent(t *testing.T) {
	s := NewStore()
	m := msgAt("a", 0)
	s.Upsert(m)
	before := s.Snapshot()
	s.Upsert(m)
	require.Equal(t, before, s.Snapshot())
}

func TestStore_TimestampTiesBreakByID(t *testing.T) {
	s := NewStore()
	a := msgAt("a", 5)
	b := msgAt("b", 5)
	s.Upsert(b)
	s.Upsert(a)
	require.Equal(t, []string{"a", "b"}, storeIDs(s))
}

func TestStore_MergePageClassification(t *testing.T) {
	t.Run("into empty store is a reset", func(t *testing.T) {
		s := NewStore()
		c := s.MergePage([]chat.Message{msgAt("a", 0), msgAt("b", 10)})
		require.Equal(t, ChangeReset, c.Kind)
		require.Equal(t, 2, c.Count)
	})

	t.Run("strictly older page is a prepend", func(t *testing.T) {
		s := NewStore()
		s.MergePage([]chat.Message{msgAt("c", 20), msgAt("d", 30)})
		c := s.MergePage([]chat.Message{msgAt("a", 0), msgAt("b", 10)})
		require.Equal(t, ChangePrepend, c.Kind)
		require.Equal(t, []string{"a", "b", "c", "d"}, storeIDs(s))
	})

	t.Run("strictly newer page is an append", func(t *testing.T) {
		s := NewStore()
		s.MergePage([]chat.Message{msgAt("a", 0)})
		c := s.MergePage([]chat.Message{msgAt("b", 10), msgAt("c", 20)})
		require.Equal(t, ChangeAppend, c.Kind)
	})

	t.Run("straddling page is a reset", func(t *testing.T) {
		s := NewStore()
		s.MergePage([]chat.Message{msgAt("b", 10)})
		c := s.MergePage([]chat.Message{msgAt("a", 0), msgAt("c", 20)})
		require.Equal(t, ChangeReset, c.Kind)
	})

	t.Run("all-known page is a patch", func(t *testing.T) {
		s := NewStore()
		page := []chat.Message{msgAt("a", 0), msgAt("b", 10)}
		s.MergePage(page)
		c := s.MergePage(page)
		require.Equal(t, ChangePatch, c.Kind)
		require.Equal(t, []string{"a", "b"}, storeIDs(s))
	})
}

func TestStore_MergePageDeduplicatesOverlap(t *testing.T) {
	s := NewStore()
	s.MergePage([]chat.Message{msgAt("b", 10), msgAt("c", 20)})
	s.MergePage([]chat.Message{msgAt("a", 0), msgAt("b", 10)})
	require.Equal(t, []string{"a", "b", "c"}, storeIDs(s))
	require.Equal(t, 3, s.Len())
}

func TestStore_PatchOutsideWindow(t *testing.T) {
	s := NewStore()
	require.False(t, s.Patch("missing", func(m *chat.Message) bool { return true }))
	require.False(t, s.Remove("missing"))
}

func TestStore_PatchOnlyNotifiesOnMutation(t *testing.T) {
	s := NewStore()
	s.Upsert(msgAt("a", 0))

	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })

	require.True(t, s.Patch("a", func(m *chat.Message) bool { return false }))
	require.Empty(t, changes)

	require.True(t, s.Patch("a", func(m *chat.Message) bool {
		m.Content = "edited"
		return true
	}))
	require.Len(t, changes, 1)
	require.Equal(t, ChangePatch, changes[0].Kind)
}

func TestStore_ListenersRunInRegistrationOrder(t *testing.T) {
	s := NewStore()
	var order []string
	s.OnChange(func(Change) { order = append(order, "first") })
	s.OnChange(func(Change) { order = append(order, "second") })
	s.Upsert(msgAt("a", 0))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestStore_SnapshotDoesNotAlias(t *testing.T) {
	s := NewStore()
	m := msgAt("a", 0)
	m.Reactions = []chat.Reaction{{Emoji: chat.EmojiRef{Unicode: "👍"}, Count: 1}}
	s.Upsert(m)

	snap := s.Snapshot()
	snap[0].Reactions[0].Count = 99

	got, _ := s.Get("a")
	require.Equal(t, 1, got.Reactions[0].Count)
}

func TestStore_OldestID(t *testing.T) {
	s := NewStore()
	require.Equal(t, "", s.OldestID())
	s.Upsert(msgAt("b", 10))
	s.Upsert(msgAt("a", 0))
	require.Equal(t, "a", s.OldestID())
}
