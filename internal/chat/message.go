// Package chat defines the domain model shared by the timeline engine, the
// composer and the transport: conversations, messages, reactions, attachments
// and the push-event union.
package chat

import (
	"fmt"
	"strings"
	"time"
)

// ConversationKind distinguishes channels from direct-message threads.
type ConversationKind string

const (
	KindChannel ConversationKind = "channel"
	KindDM      ConversationKind = "dm"
)

// ConversationRef identifies a conversation. It is the unit of message-store
// isolation: every store, subscription and pending action is keyed by it.
type ConversationRef struct {
	Kind ConversationKind
	ID   string
}

func (r ConversationRef) IsZero() bool {
	return r.ID == ""
}

func (r ConversationRef) String() string {
	if r.IsZero() {
		return "<none>"
	}
	return string(r.Kind) + ":" + r.ID
}

// ParseRef parses a "kind:id" conversation reference, e.g. "channel:general"
// or "dm:7f3a". A bare id is treated as a channel.
func ParseRef(s string) (ConversationRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ConversationRef{}, fmt.Errorf("empty conversation reference")
	}
	kind, id, found := strings.Cut(s, ":")
	if !found {
		return ConversationRef{Kind: KindChannel, ID: s}, nil
	}
	switch ConversationKind(kind) {
	case KindChannel, KindDM:
		if id == "" {
			return ConversationRef{}, fmt.Errorf("conversation reference %q has no id", s)
		}
		return ConversationRef{Kind: ConversationKind(kind), ID: id}, nil
	default:
		return ConversationRef{}, fmt.Errorf("unknown conversation kind %q", kind)
	}
}

// Identity is the local user as known to the server.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
}

// EmojiRef identifies a reaction kind: either a custom emoji by id or a
// unicode emoji, never both.
type EmojiRef struct {
	EmojiID string
	Unicode string
}

func (e EmojiRef) Valid() bool {
	return (e.EmojiID != "") != (e.Unicode != "")
}

// Key returns a stable map/compare key for the emoji identity.
func (e EmojiRef) Key() string {
	if e.EmojiID != "" {
		return "id:" + e.EmojiID
	}
	return "u:" + e.Unicode
}

// Reaction is one emoji's aggregate on a message. Count is authoritative from
// the server; entries never exist with Count <= 0.
type Reaction struct {
	Emoji       EmojiRef
	Count       int
	UserReacted bool
	Shortcode   string
}

// AttachmentStatus tracks an upload through its lifecycle. Server-side
// descriptors only ever carry StatusProcessing or StatusReady.
type AttachmentStatus string

const (
	StatusUploading  AttachmentStatus = "uploading"
	StatusProcessing AttachmentStatus = "processing"
	StatusReady      AttachmentStatus = "ready"
	StatusFailed     AttachmentStatus = "failed"
)

// Attachment is a server-confirmed attachment descriptor on a message.
type Attachment struct {
	ID          string
	Filename    string
	ContentType string
	URL         string
	Status      AttachmentStatus
}

// PendingAttachment is a composer-local upload. ClientID is generated locally
// for correlation and never sent to the server; MediaID is assigned by the
// server once the upload begins. Pending attachments are never persisted into
// a Message.
type PendingAttachment struct {
	ClientID string
	MediaID  string
	Filename string
	Size     int64
	Status   AttachmentStatus
	Error    string
}

// Message is one timeline entry. CreatedAt is immutable and is the sort key;
// Content, EditedAt, Attachments and Reactions may change after creation.
type Message struct {
	ID           string
	Conversation ConversationRef

	AuthorID          string
	AuthorUsername    string
	AuthorDisplayName string

	Content     string
	CreatedAt   time.Time
	EditedAt    *time.Time
	Attachments []Attachment
	Reactions   []Reaction
}

// Less orders messages ascending by CreatedAt, ties broken by ID so the order
// is total and stable.
func Less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// AuthorLabel returns the display name, falling back to the username.
func (m Message) AuthorLabel() string {
	if s := strings.TrimSpace(m.AuthorDisplayName); s != "" {
		return s
	}
	return m.AuthorUsername
}

// ReactionIndex returns the index of the reaction with the given emoji
// identity, or -1.
func (m Message) ReactionIndex(e EmojiRef) int {
	key := e.Key()
	for i, r := range m.Reactions {
		if r.Emoji.Key() == key {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so store snapshots cannot alias caller slices.
func (m Message) Clone() Message {
	out := m
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	if len(m.Attachments) > 0 {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if len(m.Reactions) > 0 {
		out.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return out
}
