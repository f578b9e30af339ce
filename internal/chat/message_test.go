package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLess_OrdersByCreatedAtThenID(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	a := Message{ID: "a", CreatedAt: base}
	b := Message{ID: "b", CreatedAt: base.Add(time.Second)}

	require.True(t, Less(a, b))
	require.False(t, Less(b, a))

	// Identical timestamps fall back to the id so the order stays total.
	tieA := Message{ID: "a", CreatedAt: base}
	tieB := Message{ID: "b", CreatedAt: base}
	require.True(t, Less(tieA, tieB))
	require.False(t, Less(tieB, tieA))
	require.False(t, Less(tieA, tieA))
}

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("channel:general")
	require.NoError(t, err)
	require.Equal(t, ConversationRef{Kind: KindChannel, ID: "general"}, ref)

	ref, err = ParseRef("dm:7f3a")
	require.NoError(t, err)
	require.Equal(t, ConversationRef{Kind: KindDM, ID: "7f3a"}, ref)

	// A bare name is a channel.
	ref, err = ParseRef("general")
	require.NoError(t, err)
	require.Equal(t, ConversationRef{Kind: KindChannel, ID: "general"}, ref)

	_, err = ParseRef("")
	require.Error(t, err)
	_, err = ParseRef("group:42")
	require.Error(t, err)
	_, err = ParseRef("dm:")
	require.Error(t, err)
}

func TestConversationRefString(t *testing.T) {
	require.Equal(t, "channel:general", ConversationRef{Kind: KindChannel, ID: "general"}.String())
	require.Equal(t, "<none>", ConversationRef{}.String())
	require.True(t, ConversationRef{}.IsZero())
}

func TestEmojiRef(t *testing.T) {
	require.True(t, EmojiRef{Unicode: "👍"}.Valid())
	require.True(t, EmojiRef{EmojiID: "party"}.Valid())
	require.False(t, EmojiRef{}.Valid())
	require.False(t, EmojiRef{EmojiID: "party", Unicode: "👍"}.Valid())

	// Keys never collide across the two namespaces.
	require.NotEqual(t, EmojiRef{EmojiID: "x"}.Key(), EmojiRef{Unicode: "x"}.Key())
}

func TestMessage_AuthorLabel(t *testing.T) {
	m := Message{AuthorUsername: "alice", AuthorDisplayName: "Alice A."}
	require.Equal(t, "Alice A.", m.AuthorLabel())

	m.AuthorDisplayName = "   "
	require.Equal(t, "alice", m.AuthorLabel())
}

func TestMessage_ReactionIndex(t *testing.T) {
	m := Message{Reactions: []Reaction{
		{Emoji: EmojiRef{Unicode: "👍"}},
		{Emoji: EmojiRef{EmojiID: "party"}},
	}}
	require.Equal(t, 0, m.ReactionIndex(EmojiRef{Unicode: "👍"}))
	require.Equal(t, 1, m.ReactionIndex(EmojiRef{EmojiID: "party"}))
	require.Equal(t, -1, m.ReactionIndex(EmojiRef{Unicode: "🎉"}))
}

func TestMessage_CloneIsDeep(t *testing.T) {
	edited := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m := Message{
		ID:          "a",
		EditedAt:    &edited,
		Attachments: []Attachment{{ID: "att-1"}},
		Reactions:   []Reaction{{Emoji: EmojiRef{Unicode: "👍"}, Count: 1}},
	}

	c := m.Clone()
	*c.EditedAt = c.EditedAt.Add(time.Hour)
	c.Attachments[0].ID = "mutated"
	c.Reactions[0].Count = 99

	require.True(t, m.EditedAt.Equal(edited))
	require.Equal(t, "att-1", m.Attachments[0].ID)
	require.Equal(t, 1, m.Reactions[0].Count)
}
