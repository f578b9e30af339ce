package timeline

import (
	"github.com/rs/zerolog"

	"github.com/pratchat/prat/internal/chat"
)

// ReducerHooks are the reducer's side channels: typing events route to the
// presence tracker and deletions must cancel a matching local edit session.
type ReducerHooks struct {
	OnTypingStart func(userID, username string)
	OnTypingStop  func(userID, username string)
	OnDeleted     func(messageID string)
}

// Reducer applies push events into the store. Every application is
// idempotent: duplicate delivery of an event is a no-op the second time, and
// edits or deletes referencing a message outside the loaded window fall
// through silently (the message arrives already-corrected on a later history
// load).
type Reducer struct {
	store *Store
	self  chat.Identity
	hooks ReducerHooks
	log   zerolog.Logger
}

func NewReducer(store *Store, self chat.Identity, hooks ReducerHooks, log zerolog.Logger) *Reducer {
	return &Reducer{store: store, self: self, hooks: hooks, log: log}
}

// Apply dispatches one event. The switch is exhaustive over the sealed event
// union; an unknown variant is a bug in this package, not a runtime
// condition to tolerate quietly.
func (r *Reducer) Apply(ev chat.Event) {
	switch ev := ev.(type) {
	case chat.NewMessage:
		r.applyNew(ev)
	case chat.MessageEdited:
		r.applyEdit(ev)
	case chat.MessageDeleted:
		r.applyDelete(ev)
	case chat.ReactionAdded:
		r.applyReactionAdd(ev)
	case chat.ReactionRemoved:
		r.applyReactionRemove(ev)
	case chat.TypingStart:
		if ev.UserID == r.self.UserID {
			return
		}
		if r.hooks.OnTypingStart != nil {
			r.hooks.OnTypingStart(ev.UserID, ev.Username)
		}
	case chat.TypingStop:
		if ev.UserID == r.self.UserID {
			return
		}
		if r.hooks.OnTypingStop != nil {
			r.hooks.OnTypingStop(ev.UserID, ev.Username)
		}
	default:
		r.log.Error().Type("event", ev).Msg("unhandled push event variant")
	}
}

// applyNew inserts an unseen message. A message already present is the echo
// of our own optimistic send (or a duplicate delivery) and is ignored.
func (r *Reducer) applyNew(ev chat.NewMessage) {
	if r.store.Contains(ev.Message.ID) {
		return
	}
	r.store.Upsert(ev.Message)
}

func (r *Reducer) applyEdit(ev chat.MessageEdited) {
	ok := r.store.Patch(ev.ID, func(m *chat.Message) bool {
		if m.Content == ev.Content && m.EditedAt != nil && m.EditedAt.Equal(ev.EditedAt) {
			return false
		}
		m.Content = ev.Content
		t := ev.EditedAt
		m.EditedAt = &t
		return true
	})
	if !ok {
		r.log.Debug().Str("id", ev.ID).Msg("edit for message outside loaded window")
	}
}

func (r *Reducer) applyDelete(ev chat.MessageDeleted) {
	if !r.store.Remove(ev.ID) {
		r.log.Debug().Str("id", ev.ID).Msg("delete for message outside loaded window")
		return
	}
	if r.hooks.OnDeleted != nil {
		r.hooks.OnDeleted(ev.ID)
	}
}

// applyReactionAdd replaces the entry's count with the event's authoritative
// value. UserReacted is ORed in: a foreign actor's add never clears a flag
// set before this window loaded.
func (r *Reducer) applyReactionAdd(ev chat.ReactionAdded) {
	ok := r.store.Patch(ev.MessageID, func(m *chat.Message) bool {
		byLocal := ev.ActorID == r.self.UserID
		if i := m.ReactionIndex(ev.Emoji); i >= 0 {
			rx := &m.Reactions[i]
			changed := rx.Count != ev.Count || (byLocal && !rx.UserReacted)
			rx.Count = ev.Count
			rx.UserReacted = rx.UserReacted || byLocal
			if ev.Shortcode != "" {
				rx.Shortcode = ev.Shortcode
			}
			return changed
		}
		m.Reactions = append(m.Reactions, chat.Reaction{
			Emoji:       ev.Emoji,
			Count:       ev.Count,
			UserReacted: byLocal,
			Shortcode:   ev.Shortcode,
		})
		return true
	})
	if !ok {
		r.log.Debug().Str("id", ev.MessageID).Msg("reaction add for message outside loaded window")
	}
}

// applyReactionRemove drops the entry entirely at count <= 0; otherwise it
// takes the authoritative count and, when the remover is the local user,
// clears UserReacted.
func (r *Reducer) applyReactionRemove(ev chat.ReactionRemoved) {
	ok := r.store.Patch(ev.MessageID, func(m *chat.Message) bool {
		i := m.ReactionIndex(ev.Emoji)
		if i < 0 {
			return false
		}
		if ev.Count <= 0 {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return true
		}
		rx := &m.Reactions[i]
		byLocal := ev.ActorID == r.self.UserID
		changed := rx.Count != ev.Count || (byLocal && rx.UserReacted)
		rx.Count = ev.Count
		if byLocal {
			rx.UserReacted = false
		}
		return changed
	})
	if !ok {
		r.log.Debug().Str("id", ev.MessageID).Msg("reaction remove for message outside loaded window")
	}
}
