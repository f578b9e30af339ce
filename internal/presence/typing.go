// Package presence implements the typing heartbeat protocol: outgoing
// typing_start/stop driven by draft transitions, and per-user expiry of
// remote typing entries so dropped stop events cannot leave ghosts.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pratchat/prat/internal/chat"
	"github.com/pratchat/prat/internal/sched"
)

const (
	// DefaultHeartbeat re-emits typing_start while the draft stays non-empty.
	DefaultHeartbeat = 4 * time.Second
	// DefaultExpiry removes a remote entry that saw no refresh.
	DefaultExpiry = 3 * time.Second
)

// Tracker owns typing state for the active conversation. Safe for use from
// timer callbacks; the mutex serializes them with UI calls.
type Tracker struct {
	push      chat.PushChannel
	sched     sched.Scheduler
	self      chat.Identity
	heartbeat time.Duration
	expiry    time.Duration
	log       zerolog.Logger

	mu        sync.Mutex
	conv      chat.ConversationRef
	typingOut bool
	beat      sched.Task
	remote    map[string]sched.Task // username -> expiry task

	onChange func()
}

type Option func(*Tracker)

func WithHeartbeat(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.heartbeat = d
		}
	}
}

func WithExpiry(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.expiry = d
		}
	}
}

func NewTracker(push chat.PushChannel, sch sched.Scheduler, self chat.Identity, log zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		push:      push,
		sched:     sch,
		self:      self,
		heartbeat: DefaultHeartbeat,
		expiry:    DefaultExpiry,
		log:       log,
		remote:    make(map[string]sched.Task),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnChange registers a callback fired whenever the visible typist set
// changes. Called without the tracker lock held.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

func (t *Tracker) notify() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetConversation switches the active conversation: the outgoing heartbeat
// stops (with a typing_stop for the old conversation if one was active) and
// all remote entries are dropped.
func (t *Tracker) SetConversation(conv chat.ConversationRef) {
	t.mu.Lock()
	prev := t.conv
	wasTyping := t.typingOut
	t.conv = conv
	t.stopHeartbeatLocked()
	t.clearRemoteLocked()
	t.mu.Unlock()

	if wasTyping && !prev.IsZero() {
		if err := t.push.TypingStop(prev); err != nil {
			t.log.Debug().Err(err).Msg("typing stop send failed")
		}
	}
	t.notify()
}

// DraftChanged tracks the local draft. The empty→non-empty edge emits
// typing_start and starts the heartbeat; the non-empty→empty edge emits
// typing_stop and cancels it.
func (t *Tracker) DraftChanged(content string) {
	t.mu.Lock()
	conv := t.conv
	nonEmpty := content != ""
	switch {
	case nonEmpty && !t.typingOut && !conv.IsZero():
		t.typingOut = true
		t.beat = t.sched.Every(t.heartbeat, func() { t.emitHeartbeat() })
		t.mu.Unlock()
		if err := t.push.TypingStart(conv); err != nil {
			t.log.Debug().Err(err).Msg("typing start send failed")
		}
	case !nonEmpty && t.typingOut:
		t.stopHeartbeatLocked()
		t.mu.Unlock()
		if !conv.IsZero() {
			if err := t.push.TypingStop(conv); err != nil {
				t.log.Debug().Err(err).Msg("typing stop send failed")
			}
		}
	default:
		t.mu.Unlock()
	}
}

func (t *Tracker) emitHeartbeat() {
	t.mu.Lock()
	conv := t.conv
	active := t.typingOut && !conv.IsZero()
	t.mu.Unlock()
	if !active {
		return
	}
	if err := t.push.TypingStart(conv); err != nil {
		t.log.Debug().Err(err).Msg("typing heartbeat send failed")
	}
}

func (t *Tracker) stopHeartbeatLocked() {
	t.typingOut = false
	if t.beat != nil {
		t.beat.Stop()
		t.beat = nil
	}
}

// HandleStart records or refreshes a remote typist.
func (t *Tracker) HandleStart(username string) {
	if username == "" || username == t.self.Username {
		return
	}
	t.mu.Lock()
	if task, ok := t.remote[username]; ok {
		task.Stop()
	}
	t.remote[username] = t.sched.After(t.expiry, func() { t.expire(username) })
	t.mu.Unlock()
	t.notify()
}

// HandleStop removes a remote typist immediately.
func (t *Tracker) HandleStop(username string) {
	t.mu.Lock()
	task, ok := t.remote[username]
	if ok {
		task.Stop()
		delete(t.remote, username)
	}
	t.mu.Unlock()
	if ok {
		t.notify()
	}
}

func (t *Tracker) expire(username string) {
	t.mu.Lock()
	_, ok := t.remote[username]
	if ok {
		delete(t.remote, username)
	}
	t.mu.Unlock()
	if ok {
		t.notify()
	}
}

// Typists returns the visible remote typists, sorted for stable rendering.
func (t *Tracker) Typists() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.remote))
	for u := range t.remote {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) clearRemoteLocked() {
	for u, task := range t.remote {
		task.Stop()
		delete(t.remote, u)
	}
}

// Close stops every timer. A typing_stop for an active draft is emitted so
// the server does not wait out our expiry.
func (t *Tracker) Close() {
	t.mu.Lock()
	conv := t.conv
	wasTyping := t.typingOut
	t.stopHeartbeatLocked()
	t.clearRemoteLocked()
	t.mu.Unlock()
	if wasTyping && !conv.IsZero() {
		_ = t.push.TypingStop(conv)
	}
}
