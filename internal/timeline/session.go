package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pratchat/prat/internal/cache"
	"github.com/pratchat/prat/internal/chat"
	"github.com/pratchat/prat/internal/sched"
)

const defaultReactionCacheSize = 128

// SessionConfig tunes a session. Zero fields take defaults.
type SessionConfig struct {
	PageSize          int
	Anchor            AnchorConfig
	ReactionCacheSize int
}

// SessionHooks are outward wires: typing events go to the presence tracker,
// deletions cancel composer edit sessions.
type SessionHooks struct {
	TypingStart    func(userID, username string)
	TypingStop     func(userID, username string)
	MessageDeleted func(messageID string)
}

// Session is the per-conversation engine instance. Switching conversations
// increments the epoch, discards the store (never patches it), cancels
// nothing — late responses are simply dropped when their captured epoch no
// longer matches — and re-subscribes the push channel.
//
// All state behind the mutex models a single cooperative event loop: UI
// calls, fetch completions and timer callbacks interleave one at a time.
type Session struct {
	client chat.Client
	push   chat.PushChannel
	sched  sched.Scheduler
	self   chat.Identity
	cfg    SessionConfig
	log    zerolog.Logger

	// async dispatches a network call off the calling goroutine. Tests
	// replace it with an inline call for determinism.
	async func(fn func())

	mu    sync.Mutex
	vp    Viewport
	hooks SessionHooks

	epoch     uint64
	conv      chat.ConversationRef
	store     *Store
	projector *Projector
	anchor    *Anchor
	loader    *Loader
	reducer   *Reducer
	reactions *cache.LRU[string, []chat.Reactor]
	banner    error

	onUpdate func()
}

func NewSession(client chat.Client, push chat.PushChannel, sch sched.Scheduler, self chat.Identity, cfg SessionConfig, log zerolog.Logger) *Session {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ReactionCacheSize <= 0 {
		cfg.ReactionCacheSize = defaultReactionCacheSize
	}
	return &Session{
		client: client,
		push:   push,
		sched:  sch,
		self:   self,
		cfg:    cfg,
		log:    log,
		async:  func(fn func()) { go fn() },
	}
}

// SetViewport attaches the scroll surface. Must be called before Activate.
func (s *Session) SetViewport(vp Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vp = vp
}

// SetHooks attaches the outward wires. Must be called before Activate.
func (s *Session) SetHooks(h SessionHooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// OnUpdate registers the UI refresh callback, invoked outside the lock after
// any externally visible change.
func (s *Session) OnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

func (s *Session) notifyUpdate() {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// lockedScheduler runs task callbacks under the session mutex, preserving the
// one-at-a-time event-loop model for timers, and refreshes the UI afterwards.
type lockedScheduler struct {
	s *Session
}

func (l lockedScheduler) wrap(fn func()) func() {
	return func() {
		l.s.mu.Lock()
		fn()
		l.s.mu.Unlock()
		l.s.notifyUpdate()
	}
}

func (l lockedScheduler) After(d time.Duration, fn func()) sched.Task {
	return l.s.sched.After(d, l.wrap(fn))
}

func (l lockedScheduler) Every(d time.Duration, fn func()) sched.Task {
	return l.s.sched.Every(d, l.wrap(fn))
}

func (l lockedScheduler) Close() {}

// Activate switches the session to a conversation. The previous store and
// caches are discarded, timers stop, in-flight responses become stale, and a
// fresh subscribe plus initial page load are issued.
func (s *Session) Activate(conv chat.ConversationRef) {
	s.mu.Lock()
	s.activateLocked(conv)
	s.mu.Unlock()
	s.notifyUpdate()
}

func (s *Session) activateLocked(conv chat.ConversationRef) {
	s.epoch++
	if s.anchor != nil {
		s.anchor.Close()
	}

	s.conv = conv
	s.banner = nil
	s.store = NewStore()
	s.projector = NewProjector(s.store, time.Now)
	s.anchor = NewAnchor(s.vp, lockedScheduler{s: s}, s.cfg.Anchor, s.log)
	s.anchor.OnLoadOlder(func() { s.startOlderLocked() })
	s.store.OnChange(s.anchor.HandleChange)
	s.loader = NewLoader(s.store, s.cfg.PageSize, s.log)
	s.reducer = NewReducer(s.store, s.self, ReducerHooks{
		OnTypingStart: s.hooks.TypingStart,
		OnTypingStop:  s.hooks.TypingStop,
		OnDeleted:     s.hooks.MessageDeleted,
	}, s.log)
	s.reactions = cache.New[string, []chat.Reactor](s.cfg.ReactionCacheSize)

	s.log.Info().Stringer("conversation", conv).Uint64("epoch", s.epoch).Msg("conversation activated")

	if err := s.push.Subscribe(conv); err != nil {
		s.log.Warn().Err(err).Msg("subscribe failed")
		s.banner = err
	}
	s.startInitialLocked()
}

// Close tears the session down: epoch invalidated, timers stopped. The push
// channel is owned by the caller.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if s.anchor != nil {
		s.anchor.Close()
	}
}

// HandleReconnected treats a transport reconnect as a fresh activation of the
// same conversation; the engine does no gap detection of its own.
func (s *Session) HandleReconnected() {
	s.mu.Lock()
	conv := s.conv
	if !conv.IsZero() {
		s.activateLocked(conv)
	}
	s.mu.Unlock()
	s.notifyUpdate()
}

// HandleEvent feeds one push event through the reducer. Events for any other
// conversation are dropped here; unread badges for inactive conversations
// belong to the roster, not this engine.
func (s *Session) HandleEvent(ev chat.Event) {
	s.mu.Lock()
	if s.reducer == nil || ev.Conversation() != s.conv {
		s.mu.Unlock()
		return
	}
	s.reducer.Apply(ev)
	s.mu.Unlock()
	s.notifyUpdate()
}

// --- history loading ---

func (s *Session) startInitialLocked() {
	if err := s.loader.BeginInitial(); err != nil {
		return
	}
	epoch, conv, limit := s.epoch, s.conv, s.loader.PageSize()
	s.async(func() {
		page, err := s.client.FetchMessagePage(context.Background(), conv, "", limit)
		s.completeLoad(epoch, page, err, false)
	})
}

func (s *Session) startOlderLocked() {
	cursor, ok := s.loader.BeginOlder()
	if !ok {
		return
	}
	epoch, conv, limit := s.epoch, s.conv, s.loader.PageSize()
	s.async(func() {
		page, err := s.client.FetchMessagePage(context.Background(), conv, cursor, limit)
		s.completeLoad(epoch, page, err, true)
	})
}

func (s *Session) completeLoad(epoch uint64, page []chat.Message, err error, older bool) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.log.Debug().Uint64("epoch", epoch).Msg("stale history response dropped")
		return
	}
	if err != nil {
		s.loader.Fail(err)
		s.banner = err
		s.mu.Unlock()
		s.notifyUpdate()
		return
	}
	if older {
		s.anchor.BeginPrepend()
	}
	s.loader.ApplyPage(page)
	s.mu.Unlock()
	s.notifyUpdate()
}

// LayoutSettled is called by the UI after it has re-laid-out the viewport for
// the current store contents. It completes any pending prepend correction,
// re-asserts the tail anchor, and decides whether backfill should continue.
func (s *Session) LayoutSettled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anchor == nil {
		return
	}
	if s.anchor.isPrependingHistory {
		s.anchor.EndPrepend()
	} else {
		s.anchor.HandleLayoutChange()
	}

	if s.vp != nil && s.loader.NeedsBackfill(s.vp.ScrollHeight() > s.vp.ClientHeight()) {
		s.loader.NoteBackfill()
		s.startOlderLocked()
	}
}

// HandleScroll forwards a user scroll to the anchor; an upward scroll near
// the top triggers backward pagination through the anchor's callback.
func (s *Session) HandleScroll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anchor != nil {
		s.anchor.HandleScroll()
	}
}

// LoadOlder is the explicit pagination trigger (retry included).
func (s *Session) LoadOlder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loader == nil {
		return
	}
	if !s.loader.loadedOnce {
		s.startInitialLocked()
		return
	}
	s.startOlderLocked()
}

// --- reactions ---

// AddReaction asks the server to add the local user's reaction. The store is
// only mutated by the resulting push event; a failure surfaces as a banner.
func (s *Session) AddReaction(messageID string, emoji chat.EmojiRef) {
	s.reactionCall(messageID, emoji, s.client.AddReaction)
}

// RemoveReaction mirrors AddReaction.
func (s *Session) RemoveReaction(messageID string, emoji chat.EmojiRef) {
	s.reactionCall(messageID, emoji, s.client.RemoveReaction)
}

func (s *Session) reactionCall(messageID string, emoji chat.EmojiRef, call func(context.Context, chat.ConversationRef, string, chat.EmojiRef) error) {
	s.mu.Lock()
	epoch, conv := s.epoch, s.conv
	s.mu.Unlock()
	s.async(func() {
		err := call(context.Background(), conv, messageID, emoji)
		if err == nil {
			return
		}
		s.mu.Lock()
		if epoch == s.epoch {
			s.banner = err
		}
		s.mu.Unlock()
		s.notifyUpdate()
	})
}

// ReactionDetails returns the cached reactor list for one reaction entry and
// kicks off a fetch on a miss. The cache is session-owned and dies with it.
func (s *Session) ReactionDetails(messageID string, emoji chat.EmojiRef) ([]chat.Reactor, bool) {
	s.mu.Lock()
	key := messageID + "/" + emoji.Key()
	if who, ok := s.reactions.Get(key); ok {
		s.mu.Unlock()
		return who, true
	}
	epoch, conv := s.epoch, s.conv
	s.mu.Unlock()

	s.async(func() {
		who, err := s.client.FetchReactionDetails(context.Background(), conv, messageID, emoji)
		if err != nil {
			s.log.Debug().Err(err).Str("message", messageID).Msg("reaction details fetch failed")
			return
		}
		s.mu.Lock()
		if epoch == s.epoch {
			s.reactions.Set(key, who)
		}
		s.mu.Unlock()
		s.notifyUpdate()
	})
	return nil, false
}

// --- composer callbacks ---

// ApplyEditResult writes the server's authoritative post-edit values.
func (s *Session) ApplyEditResult(res chat.EditResult) {
	s.mu.Lock()
	if s.store != nil {
		s.store.Patch(res.ID, func(m *chat.Message) bool {
			m.Content = res.Content
			t := res.EditedAt
			m.EditedAt = &t
			return true
		})
	}
	s.mu.Unlock()
	s.notifyUpdate()
}

// ApplyDeleted removes a locally deleted message after server confirmation.
func (s *Session) ApplyDeleted(messageID string) {
	s.mu.Lock()
	removed := s.store != nil && s.store.Remove(messageID)
	hook := s.hooks.MessageDeleted
	s.mu.Unlock()
	if removed && hook != nil {
		hook(messageID)
	}
	s.notifyUpdate()
}

// --- read accessors ---

func (s *Session) Conversation() chat.ConversationRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

func (s *Session) Groups() []DayGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projector == nil {
		return nil
	}
	return s.projector.Groups()
}

func (s *Session) Message(id string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return chat.Message{}, false
	}
	return s.store.Get(id)
}

func (s *Session) HasOlder() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loader != nil && s.loader.HasOlder()
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loader != nil && s.loader.Loading()
}

// Banner returns the current recoverable error, if any.
func (s *Session) Banner() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner
}

func (s *Session) ClearBanner() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banner = nil
}

// StickToBottom reports the anchor's pin state, for the UI status line.
func (s *Session) StickToBottom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor != nil && s.anchor.StickToBottom()
}
