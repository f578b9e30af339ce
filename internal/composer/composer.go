// Package composer is the optimistic action tracker: it guards send, edit,
// delete and attachment uploads against concurrent conflicting operations and
// only ever mutates the timeline through confirmed server results.
package composer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pratchat/prat/internal/chat"
	"github.com/pratchat/prat/internal/sched"
)

// Local-validation errors, rejected before any network call.
var (
	ErrEmptyMessage         = errors.New("message is empty")
	ErrSelfMention          = errors.New("cannot mention yourself")
	ErrAttachmentUploading  = errors.New("attachment still uploading")
	ErrAttachmentProcessing = errors.New("attachment still processing")
	ErrAttachmentFailed     = errors.New("remove failed attachments before sending")
	ErrAttachmentTooLarge   = errors.New("attachment exceeds size limit")
	ErrAttachmentType       = errors.New("attachment type not allowed")
)

// Config bounds uploads and the derivative readiness probe.
type Config struct {
	MaxUploadBytes int64
	// AllowedTypes whitelists content-type prefixes ("image/", "video/").
	// Empty means everything is allowed.
	AllowedTypes  []string
	ProbeAttempts int
	ProbeInterval int // milliseconds between probe attempts
}

func (c Config) withDefaults() Config {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 25 << 20
	}
	if c.ProbeAttempts <= 0 {
		c.ProbeAttempts = 20
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 500
	}
	return c
}

// TimelineSink is the slice of the session the composer writes confirmed
// results into.
type TimelineSink interface {
	ApplyEditResult(res chat.EditResult)
	ApplyDeleted(messageID string)
}

// Composer tracks the draft, pending attachments and in-flight guards for the
// active conversation.
type Composer struct {
	client   chat.Client
	push     chat.PushChannel
	sched    sched.Scheduler
	self     chat.Identity
	cfg      Config
	timeline TimelineSink
	log      zerolog.Logger

	async func(fn func())

	mu      sync.Mutex
	conv    chat.ConversationRef
	draft   string
	pending []chat.PendingAttachment

	editingID string
	editDraft string

	editsInFlight   map[string]struct{}
	deletesInFlight map[string]struct{}

	onDraftChange func(content string) // feeds the typing tracker
	onUpdate      func()
}

func New(client chat.Client, push chat.PushChannel, sch sched.Scheduler, self chat.Identity, cfg Config, timeline TimelineSink, log zerolog.Logger) *Composer {
	return &Composer{
		client:          client,
		push:            push,
		sched:           sch,
		self:            self,
		cfg:             cfg.withDefaults(),
		timeline:        timeline,
		log:             log,
		async:           func(fn func()) { go fn() },
		editsInFlight:   make(map[string]struct{}),
		deletesInFlight: make(map[string]struct{}),
	}
}

// OnDraftChange registers the typing-tracker feed.
func (c *Composer) OnDraftChange(fn func(content string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDraftChange = fn
}

// OnUpdate registers the UI refresh callback.
func (c *Composer) OnUpdate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

func (c *Composer) notifyUpdate() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetConversation resets the composer for a new conversation. Pending
// attachments and guards belong to the old conversation and are dropped.
func (c *Composer) SetConversation(conv chat.ConversationRef) {
	c.mu.Lock()
	c.conv = conv
	c.draft = ""
	c.pending = nil
	c.editingID = ""
	c.editDraft = ""
	c.editsInFlight = make(map[string]struct{})
	c.deletesInFlight = make(map[string]struct{})
	fn := c.onDraftChange
	c.mu.Unlock()
	if fn != nil {
		fn("")
	}
}

// SetDraft updates the draft text and feeds the typing tracker.
func (c *Composer) SetDraft(content string) {
	c.mu.Lock()
	c.draft = content
	fn := c.onDraftChange
	c.mu.Unlock()
	if fn != nil {
		fn(content)
	}
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// validateSendLocked mirrors the send gate: trimmed content or at least one
// ready attachment, nothing uploading, nothing failed.
func (c *Composer) validateSendLocked() error {
	trimmed := strings.TrimSpace(c.draft)
	ready := 0
	for _, p := range c.pending {
		switch p.Status {
		case chat.StatusUploading:
			return ErrAttachmentUploading
		case chat.StatusProcessing:
			return ErrAttachmentProcessing
		case chat.StatusFailed:
			return ErrAttachmentFailed
		case chat.StatusReady:
			ready++
		}
	}
	if trimmed == "" && ready == 0 {
		return ErrEmptyMessage
	}
	if c.self.Username != "" && mentions(trimmed, c.self.Username) {
		return ErrSelfMention
	}
	return nil
}

func mentions(content, username string) bool {
	for _, field := range strings.Fields(content) {
		if strings.TrimRight(field, ".,!?:;") == "@"+username {
			return true
		}
	}
	return false
}

// CanSend reports whether Send would pass local validation.
func (c *Composer) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateSendLocked() == nil
}

// Send validates locally and dispatches the message on the push channel. The
// draft and pending list clear once dispatch succeeds, not at confirmation:
// the message itself arrives through the new_message echo. A dispatch failure
// leaves both intact so the user can retry without re-uploading.
func (c *Composer) Send() error {
	c.mu.Lock()
	if err := c.validateSendLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	conv := c.conv
	content := strings.TrimSpace(c.draft)
	ids := make([]string, 0, len(c.pending))
	for _, p := range c.pending {
		if p.Status == chat.StatusReady {
			ids = append(ids, p.MediaID)
		}
	}
	c.mu.Unlock()

	if err := c.push.SendMessage(conv, content, ids); err != nil {
		c.log.Warn().Err(err).Msg("send dispatch failed")
		return err
	}

	c.mu.Lock()
	var fn func(string)
	if c.conv == conv {
		c.draft = ""
		c.pending = nil
		fn = c.onDraftChange
	}
	c.mu.Unlock()

	if fn != nil {
		fn("")
	}
	c.notifyUpdate()
	return nil
}

// --- edit ---

// BeginEdit opens an edit session for a message; at most one message is
// edited at a time.
func (c *Composer) BeginEdit(messageID, currentContent string) {
	c.mu.Lock()
	c.editingID = messageID
	c.editDraft = currentContent
	c.mu.Unlock()
	c.notifyUpdate()
}

func (c *Composer) SetEditDraft(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editDraft = content
}

// Editing returns the open edit session, if any.
func (c *Composer) Editing() (messageID, draft string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editingID, c.editDraft, c.editingID != ""
}

// CancelEdit closes the edit session without a server call. The reducer
// invokes CancelEditFor when a message_deleted event lands mid-edit.
func (c *Composer) CancelEdit() {
	c.mu.Lock()
	c.editingID = ""
	c.editDraft = ""
	c.mu.Unlock()
	c.notifyUpdate()
}

// CancelEditFor cancels the edit session iff it targets the given message.
func (c *Composer) CancelEditFor(messageID string) {
	c.mu.Lock()
	if c.editingID != messageID {
		c.mu.Unlock()
		return
	}
	c.editingID = ""
	c.editDraft = ""
	c.mu.Unlock()
	c.notifyUpdate()
}

// SubmitEdit sends the edit. A second submit for the same id while one is in
// flight is ignored; success applies the server's authoritative values, not
// the local draft. Failure releases the guard so the user may retry, with no
// partial state mutation.
func (c *Composer) SubmitEdit(messageID, content string) {
	c.mu.Lock()
	if _, inFlight := c.editsInFlight[messageID]; inFlight {
		c.mu.Unlock()
		return
	}
	c.editsInFlight[messageID] = struct{}{}
	conv := c.conv
	c.mu.Unlock()

	c.async(func() {
		res, err := c.client.EditMessage(context.Background(), conv, messageID, content)

		c.mu.Lock()
		delete(c.editsInFlight, messageID)
		if err == nil && c.editingID == messageID {
			c.editingID = ""
			c.editDraft = ""
		}
		c.mu.Unlock()

		if err != nil {
			c.log.Warn().Err(err).Str("id", messageID).Msg("edit failed")
			c.notifyUpdate()
			return
		}
		c.timeline.ApplyEditResult(res)
		c.notifyUpdate()
	})
}

// --- delete ---

// Delete removes a message after server confirmation, guarded per id like
// edits. A confirmed delete also cancels a matching edit session.
func (c *Composer) Delete(messageID string) {
	c.mu.Lock()
	if _, inFlight := c.deletesInFlight[messageID]; inFlight {
		c.mu.Unlock()
		return
	}
	c.deletesInFlight[messageID] = struct{}{}
	conv := c.conv
	c.mu.Unlock()

	c.async(func() {
		err := c.client.DeleteMessage(context.Background(), conv, messageID)

		c.mu.Lock()
		delete(c.deletesInFlight, messageID)
		c.mu.Unlock()

		if err != nil {
			c.log.Warn().Err(err).Str("id", messageID).Msg("delete failed")
			c.notifyUpdate()
			return
		}
		c.CancelEditFor(messageID)
		c.timeline.ApplyDeleted(messageID)
		c.notifyUpdate()
	})
}
