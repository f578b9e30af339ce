package timeline

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pratchat/prat/internal/chat"
)

var testSelf = chat.Identity{UserID: "self", Username: "me"}

func newTestReducer(t *testing.T, hooks ReducerHooks) (*Reducer, *Store) {
	t.Helper()
	s := NewStore()
	return NewReducer(s, testSelf, hooks, zerolog.Nop()), s
}

func base() chat.EventBase {
	return chat.EventBase{Conv: testConv}
}

func TestReducer_NewMessageIgnoresDuplicates(t *testing.T) {
	r, s := newTestReducer(t, ReducerHooks{})

	m := msgAt("a", 0)
	r.Apply(chat.NewMessage{EventBase: base(), Message: m})
	require.Equal(t, 1, s.Len())

	// The echo of an optimistic send, or duplicate delivery.
	echo := m
	echo.Content = "diverged echo"
	r.Apply(chat.NewMessage{EventBase: base(), Message: echo})

	got, _ := s.Get("a")
	require.Equal(t, m.Content, got.Content)
	require.Equal(t, 1, s.Len())
}

func TestReducer_EditAppliesAuthoritativeContent(t *testing.T) {
	r, s := newTestReducer(t, ReducerHooks{})
	s.Upsert(msgAt("a", 0))

	at := testBase.Add(time.Hour)
	ev := chat.MessageEdited{EventBase: base(), ID: "a", Content: "fixed", EditedAt: at}
	r.Apply(ev)

	got, _ := s.Get("a")
	require.Equal(t, "fixed", got.Content)
	require.NotNil(t, got.EditedAt)
	require.True(t, got.EditedAt.Equal(at))

	// Duplicate delivery does not renotify.
	var changes int
	s.OnChange(func(Change) { changes++ })
	r.Apply(ev)
	require.Zero(t, changes)
}

func TestReducer_EditOutsideWindowIsNoOp(t *testing.T) {
	r, s := newTestReducer(t, ReducerHooks{})
	r.Apply(chat.MessageEdited{EventBase: base(), ID: "ghost", Content: "x", EditedAt: testBase})
	require.Zero(t, s.Len())
}

func TestReducer_DeleteFiresHookOnce(t *testing.T) {
	var deleted []string
	r, s := newTestReducer(t, ReducerHooks{OnDeleted: func(id string) { deleted = append(deleted, id) }})
	s.Upsert(msgAt("a", 0))

	ev := chat.MessageDeleted{EventBase: base(), ID: "a"}
	r.Apply(ev)
	require.Zero(t, s.Len())
	require.Equal(t, []string{"a"}, deleted)

	// Second delivery: message already gone, hook not re-fired.
	r.Apply(ev)
	require.Equal(t, []string{"a"}, deleted)
}

func TestReducer_ReactionAddTakesServerCount(t *testing.T) {
	r, s := newTestReducer(t, ReducerHooks{})
	s.Upsert(msgAt("a", 0))
	thumbs := chat.EmojiRef{Unicode: "👍"}

	r.Apply(chat.ReactionAdded{EventBase: base(), MessageID: "a", Emoji: thumbs, Count: 2, ActorID: "other"})
	got, _ := s.Get("a")
	require.Len(t, got.Reactions, 1)
	require.Equal(t, 2, got.Reactions[0].Count)
	require.False(t, got.Reactions[0].UserReacted)

	// The local user joins: count authoritative, flag set.
	r.Apply(chat.ReactionAdded{EventBase: base(), MessageID: "a", Emoji: thumbs, Count: 3, ActorID: testSelf.UserID})
	got, _ = s.Get("a")
	require.Equal(t, 3, got.Reactions[0].Count)
	require.True(t, got.Reactions[0].UserReacted)

	// Another user piles on: flag survives.
	r.Apply(chat.ReactionAdded{EventBase: base(), MessageID: "a", Emoji: thumbs, Count: 4, ActorID: "third"})
	got, _ = s.Get("a")
	require.Equal(t, 4, got.Reactions[0].Count)
	require.True(t, got.Reactions[0].UserReacted)
}

func TestReducer_ReactionAddIdempotent(t *testing.T) {
	r, s := newTestReducer(t, ReducerHooks{})
	s.Upsert(msgAt("a", 0))
	ev := chat.ReactionAdded{EventBase: base(), MessageID: "a", Emoji: chat.EmojiRef{Unicode: "👍"}, Count: 1, ActorID: "other"}
	r.Apply(ev)

	var changes int
	s.OnChange(func(Change) { changes++ })
	r.Apply(ev)
	require.Zero(t, changes)
}

func TestReducer_ReactionRemove(t *testing.T) {
	r, s := newTestReducer(t, ReducerHooks{})
	m := msgAt("a", 0)
	m.Reactions = []chat.Reaction{{Emoji: chat.EmojiRef{Unicode: "👍"}, Count: 3, UserReacted: true}}
	s.Upsert(m)
	thumbs := chat.EmojiRef{Unicode: "👍"}

	// A foreign removal keeps our flag.
	r.Apply(chat.ReactionRemoved{EventBase: base(), MessageID: "a", Emoji: thumbs, Count: 2, ActorID: "other"})
	got, _ := s.Get("a")
	require.Equal(t, 2, got.Reactions[0].Count)
	require.True(t, got.Reactions[0].UserReacted)

	// Our own removal clears it.
	r.Apply(chat.ReactionRemoved{EventBase: base(), MessageID: "a", Emoji: thumbs, Count: 1, ActorID: testSelf.UserID})
	got, _ = s.Get("a")
	require.Equal(t, 1, got.Reactions[0].Count)
	require.False(t, got.Reactions[0].UserReacted)

	// Count zero drops the entry entirely.
	r.Apply(chat.ReactionRemoved{EventBase: base(), MessageID: "a", Emoji: thumbs, Count: 0, ActorID: "other"})
	got, _ = s.Get("a")
	require.Empty(t, got.Reactions)

	// Removing an absent reaction is a no-op.
	r.Apply(chat.ReactionRemoved{EventBase: base(), MessageID: "a", Emoji: thumbs, Count: 0, ActorID: "other"})
}

func TestReducer_CustomAndUnicodeEmojiAreDistinct(t *testing.T) {
	r, s := newTestReducer(t, ReducerHooks{})
	s.Upsert(msgAt("a", 0))

	r.Apply(chat.ReactionAdded{EventBase: base(), MessageID: "a", Emoji: chat.EmojiRef{Unicode: "👍"}, Count: 1, ActorID: "x"})
	r.Apply(chat.ReactionAdded{EventBase: base(), MessageID: "a", Emoji: chat.EmojiRef{EmojiID: "party-parrot"}, Count: 1, Shortcode: ":party:", ActorID: "x"})

	got, _ := s.Get("a")
	require.Len(t, got.Reactions, 2)
}

func TestReducer_TypingEventsRouteToHooks(t *testing.T) {
	var started, stopped []string
	r, _ := newTestReducer(t, ReducerHooks{
		OnTypingStart: func(_, username string) { started = append(started, username) },
		OnTypingStop:  func(_, username string) { stopped = append(stopped, username) },
	})

	r.Apply(chat.TypingStart{EventBase: base(), UserID: "u1", Username: "alice"})
	r.Apply(chat.TypingStop{EventBase: base(), UserID: "u1", Username: "alice"})
	require.Equal(t, []string{"alice"}, started)
	require.Equal(t, []string{"alice"}, stopped)

	// Our own heartbeat echoes back; it must not show locally.
	r.Apply(chat.TypingStart{EventBase: base(), UserID: testSelf.UserID, Username: testSelf.Username})
	require.Equal(t, []string{"alice"}, started)
}
