// Package transport implements the server contracts consumed by the engine:
// the request/response API over HTTP JSON and the push channel over a
// websocket. The engine only ever sees the typed interfaces in package chat.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pratchat/prat/internal/chat"
)

type wireConversation struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func toWireConversation(c chat.ConversationRef) wireConversation {
	return wireConversation{Kind: string(c.Kind), ID: c.ID}
}

func (w wireConversation) toDomain() chat.ConversationRef {
	return chat.ConversationRef{Kind: chat.ConversationKind(w.Kind), ID: w.ID}
}

type wireEmoji struct {
	EmojiID *string `json:"emoji_id"`
	Unicode *string `json:"unicode_emoji"`
}

func toWireEmoji(e chat.EmojiRef) wireEmoji {
	w := wireEmoji{}
	if e.EmojiID != "" {
		id := e.EmojiID
		w.EmojiID = &id
	}
	if e.Unicode != "" {
		u := e.Unicode
		w.Unicode = &u
	}
	return w
}

func (w wireEmoji) toDomain() chat.EmojiRef {
	var e chat.EmojiRef
	if w.EmojiID != nil {
		e.EmojiID = *w.EmojiID
	}
	if w.Unicode != nil {
		e.Unicode = *w.Unicode
	}
	return e
}

type wireReaction struct {
	Emoji     wireEmoji `json:"emoji"`
	Count     int       `json:"count"`
	Me        bool      `json:"me"`
	Shortcode string    `json:"shortcode,omitempty"`
}

type wireAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
	Status      string `json:"status"`
}

type wireAuthor struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

type wireMessage struct {
	ID           string           `json:"id"`
	Conversation wireConversation `json:"conversation"`
	Author       wireAuthor       `json:"author"`
	Content      string           `json:"content"`
	CreatedAt    time.Time        `json:"created_at"`
	EditedAt     *time.Time       `json:"edited_at,omitempty"`
	Attachments  []wireAttachment `json:"attachments,omitempty"`
	Reactions    []wireReaction   `json:"reactions,omitempty"`
}

func (w wireMessage) toDomain() chat.Message {
	m := chat.Message{
		ID:                w.ID,
		Conversation:      w.Conversation.toDomain(),
		AuthorID:          w.Author.ID,
		AuthorUsername:    w.Author.Username,
		AuthorDisplayName: w.Author.DisplayName,
		Content:           w.Content,
		CreatedAt:         w.CreatedAt,
		EditedAt:          w.EditedAt,
	}
	for _, a := range w.Attachments {
		m.Attachments = append(m.Attachments, chat.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			URL:         a.URL,
			Status:      chat.AttachmentStatus(a.Status),
		})
	}
	for _, r := range w.Reactions {
		m.Reactions = append(m.Reactions, chat.Reaction{
			Emoji:       r.Emoji.toDomain(),
			Count:       r.Count,
			UserReacted: r.Me,
			Shortcode:   r.Shortcode,
		})
	}
	return m
}

// wireFrame is the envelope of every push-channel frame, both directions.
type wireFrame struct {
	Type         string           `json:"type"`
	Conversation wireConversation `json:"conversation"`

	Message *wireMessage `json:"message,omitempty"`

	ID       string     `json:"id,omitempty"`
	Content  string     `json:"content,omitempty"`
	EditedAt *time.Time `json:"edited_at,omitempty"`

	MessageID string     `json:"message_id,omitempty"`
	Emoji     *wireEmoji `json:"emoji,omitempty"`
	Count     int        `json:"count,omitempty"`
	Shortcode string     `json:"shortcode,omitempty"`
	ActorID   string     `json:"actor_id,omitempty"`

	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

// decodeEvent parses one inbound frame into the event union.
func decodeEvent(payload []byte) (chat.Event, error) {
	var f wireFrame
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, fmt.Errorf("decode push frame: %w", err)
	}

	base := chat.EventBase{Conv: f.Conversation.toDomain()}
	switch f.Type {
	case "new_message", "new_dm_message":
		if f.Message == nil {
			return nil, fmt.Errorf("%s frame without message", f.Type)
		}
		return chat.NewMessage{EventBase: base, Message: f.Message.toDomain()}, nil
	case "message_edited", "dm_message_edited":
		var at time.Time
		if f.EditedAt != nil {
			at = *f.EditedAt
		}
		return chat.MessageEdited{EventBase: base, ID: f.ID, Content: f.Content, EditedAt: at}, nil
	case "message_deleted", "dm_message_deleted":
		return chat.MessageDeleted{EventBase: base, ID: f.ID}, nil
	case "reaction_added":
		if f.Emoji == nil {
			return nil, fmt.Errorf("reaction_added frame without emoji")
		}
		return chat.ReactionAdded{
			EventBase: base,
			MessageID: f.MessageID,
			Emoji:     f.Emoji.toDomain(),
			Count:     f.Count,
			Shortcode: f.Shortcode,
			ActorID:   f.ActorID,
		}, nil
	case "reaction_removed":
		if f.Emoji == nil {
			return nil, fmt.Errorf("reaction_removed frame without emoji")
		}
		return chat.ReactionRemoved{
			EventBase: base,
			MessageID: f.MessageID,
			Emoji:     f.Emoji.toDomain(),
			Count:     f.Count,
			ActorID:   f.ActorID,
		}, nil
	case "typing_start":
		return chat.TypingStart{EventBase: base, UserID: f.UserID, Username: f.Username}, nil
	case "typing_stop":
		return chat.TypingStop{EventBase: base, UserID: f.UserID, Username: f.Username}, nil
	default:
		return nil, fmt.Errorf("unknown push frame type %q", f.Type)
	}
}

func encodeCommand(f wireFrame) ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", f.Type, err)
	}
	return payload, nil
}
