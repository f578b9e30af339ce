package chat

import "time"

// Event is the push-channel union. It is sealed: only types in this package
// implement it, and the reducer type-switches over every variant, so adding a
// kind here forces every consumer to handle it.
type Event interface {
	Conversation() ConversationRef
	event()
}

// EventBase carries the conversation tag shared by all variants.
type EventBase struct {
	Conv ConversationRef
}

func (b EventBase) Conversation() ConversationRef { return b.Conv }
func (EventBase) event()                          {}

// NewMessage announces a freshly created message, including the echo of the
// local user's own sends.
type NewMessage struct {
	EventBase
	Message Message
}

// MessageEdited carries the authoritative post-edit content.
type MessageEdited struct {
	EventBase
	ID       string
	Content  string
	EditedAt time.Time
}

// MessageDeleted removes a message.
type MessageDeleted struct {
	EventBase
	ID string
}

// ReactionAdded carries the authoritative count after the add. ActorID is the
// user whose reaction produced the event.
type ReactionAdded struct {
	EventBase
	MessageID string
	Emoji     EmojiRef
	Count     int
	Shortcode string
	ActorID   string
}

// ReactionRemoved carries the authoritative count after the removal; a count
// of zero (or less) means the reaction is gone.
type ReactionRemoved struct {
	EventBase
	MessageID string
	Emoji     EmojiRef
	Count     int
	ActorID   string
}

// TypingStart reports a remote user's typing heartbeat.
type TypingStart struct {
	EventBase
	UserID   string
	Username string
}

// TypingStop reports a remote user explicitly clearing their draft.
type TypingStop struct {
	EventBase
	UserID   string
	Username string
}
