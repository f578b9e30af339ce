package chat

import (
	"context"
	"errors"
	"io"
	"time"
)

// Client errors surfaced to the engine. Transport implementations wrap their
// own detail around these sentinels.
var (
	ErrNotFound     = errors.New("not found")
	ErrProbeTimeout = errors.New("derivative readiness probe timed out")
)

// EditResult is the server's authoritative view of a message after an edit.
// The store applies these values, not the local draft.
type EditResult struct {
	ID       string
	Content  string
	EditedAt time.Time
}

// Upload describes a file handed to UploadAttachment.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// UploadResult is returned once the server has accepted an upload.
type UploadResult struct {
	MediaID string
	Status  AttachmentStatus
}

// Reactor is one user behind a reaction, used by the reaction-detail popup.
type Reactor struct {
	UserID      string
	Username    string
	DisplayName string
}

// Client is the request/response half of the server contract. The engine
// never sees wire formats, only these typed calls; cancellation is cooperative
// through the context plus epoch comparison on the results.
type Client interface {
	// FetchMessagePage returns up to limit messages older than beforeID
	// (all newest first when beforeID is empty), newest-to-oldest.
	FetchMessagePage(ctx context.Context, conv ConversationRef, beforeID string, limit int) ([]Message, error)

	EditMessage(ctx context.Context, conv ConversationRef, id, content string) (EditResult, error)
	DeleteMessage(ctx context.Context, conv ConversationRef, id string) error

	UploadAttachment(ctx context.Context, up Upload) (UploadResult, error)
	// ProbeDerivativeReady reports whether the server-side derivative for an
	// uploaded media is available yet.
	ProbeDerivativeReady(ctx context.Context, mediaID string) (bool, error)

	AddReaction(ctx context.Context, conv ConversationRef, messageID string, emoji EmojiRef) error
	RemoveReaction(ctx context.Context, conv ConversationRef, messageID string, emoji EmojiRef) error
	// FetchReactionDetails lists the users behind one reaction entry.
	FetchReactionDetails(ctx context.Context, conv ConversationRef, messageID string, emoji EmojiRef) ([]Reactor, error)
}

// PushChannel is the fire-and-forget half: commands out, the typed event
// stream in. Reconnection is the transport's problem; it signals completed
// reconnects on Reconnected and the session treats them as a fresh
// conversation activation.
type PushChannel interface {
	Subscribe(conv ConversationRef) error
	SendMessage(conv ConversationRef, content string, attachmentIDs []string) error
	TypingStart(conv ConversationRef) error
	TypingStop(conv ConversationRef) error

	Events() <-chan Event
	Reconnected() <-chan struct{}
	Close() error
}
