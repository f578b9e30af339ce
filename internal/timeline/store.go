// Package timeline implements the synchronization engine for a single
// conversation: the sorted message store, paginated history loading, the
// live-event reducer, day grouping and scroll anchoring. One Session owns one
// conversation's state and is discarded wholesale on switch.
package timeline

import (
	"sort"

	"github.com/pratchat/prat/internal/chat"
)

// ChangeKind classifies a store mutation for the listeners that follow it.
type ChangeKind int

const (
	// ChangeReset means the visible set was rebuilt (activation, reload, or a
	// merge that touched both ends).
	ChangeReset ChangeKind = iota
	// ChangePrepend means messages were inserted strictly before the previous
	// head.
	ChangePrepend
	// ChangeAppend means messages were inserted strictly after the previous
	// tail.
	ChangeAppend
	// ChangeInsert means a message landed between existing entries.
	ChangeInsert
	// ChangePatch means existing entries changed in place.
	ChangePatch
	// ChangeRemove means entries were removed.
	ChangeRemove
)

// Change summarizes one mutation cycle.
type Change struct {
	Kind  ChangeKind
	Count int
}

// Store is the canonical, sorted, id-deduplicated message set for the active
// conversation. It is not safe for concurrent use; the owning Session
// serializes access. Listeners run synchronously, in registration order,
// which is how the projector is guaranteed to observe a change before the
// anchor does.
type Store struct {
	msgs      []chat.Message
	byID      map[string]int
	listeners []func(Change)
}

func NewStore() *Store {
	return &Store{byID: make(map[string]int)}
}

// OnChange registers a listener. Registration order is notification order.
func (s *Store) OnChange(fn func(Change)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(c Change) {
	for _, fn := range s.listeners {
		fn(c)
	}
}

func (s *Store) Len() int { return len(s.msgs) }

// Snapshot returns a deep copy of the ordered messages.
func (s *Store) Snapshot() []chat.Message {
	out := make([]chat.Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (chat.Message, bool) {
	i, ok := s.byID[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.msgs[i].Clone(), true
}

func (s *Store) Contains(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// OldestID returns the pagination cursor: the id of the oldest loaded
// message, or "" when empty.
func (s *Store) OldestID() string {
	if len(s.msgs) == 0 {
		return ""
	}
	return s.msgs[0].ID
}

// insertionIndex returns where m belongs in the sorted order.
func (s *Store) insertionIndex(m chat.Message) int {
	return sort.Search(len(s.msgs), func(i int) bool {
		return !chat.Less(s.msgs[i], m)
	})
}

// upsert inserts or replaces without notifying. It reports whether anything
// changed and, for inserts, the insertion index (-1 for replacements).
func (s *Store) upsert(m chat.Message) (changed bool, insertedAt int) {
	if i, ok := s.byID[m.ID]; ok {
		s.msgs[i] = m.Clone()
		return true, -1
	}
	at := s.insertionIndex(m)
	s.msgs = append(s.msgs, chat.Message{})
	copy(s.msgs[at+1:], s.msgs[at:])
	s.msgs[at] = m.Clone()
	s.reindex(at)
	return true, at
}

func (s *Store) reindex(from int) {
	for i := from; i < len(s.msgs); i++ {
		s.byID[s.msgs[i].ID] = i
	}
}

// Upsert inserts a message in sorted position or fully replaces the entry
// with the same id. Idempotent: upserting an identical message twice leaves
// the store identical.
func (s *Store) Upsert(m chat.Message) Change {
	wasTail := len(s.msgs)
	_, at := s.upsert(m)

	var c Change
	switch {
	case at == -1:
		c = Change{Kind: ChangePatch, Count: 1}
	case at == 0 && wasTail > 0:
		c = Change{Kind: ChangePrepend, Count: 1}
	case at == wasTail:
		c = Change{Kind: ChangeAppend, Count: 1}
	default:
		c = Change{Kind: ChangeInsert, Count: 1}
	}
	s.notify(c)
	return c
}

// MergePage merges a history page (any order) into the store and emits a
// single change for the whole batch. Re-merging the same page is a no-op
// apart from in-place refreshes of already-known messages.
func (s *Store) MergePage(page []chat.Message) Change {
	if len(page) == 0 {
		return Change{Kind: ChangePatch, Count: 0}
	}

	wasEmpty := len(s.msgs) == 0
	var oldHead, oldTail chat.Message
	if !wasEmpty {
		oldHead, oldTail = s.msgs[0], s.msgs[len(s.msgs)-1]
	}

	inserted, refreshed := 0, 0
	before, after, between := 0, 0, 0
	for _, m := range page {
		_, at := s.upsert(m)
		if at == -1 {
			refreshed++
			continue
		}
		inserted++
		switch {
		case wasEmpty:
		case chat.Less(m, oldHead):
			before++
		case chat.Less(oldTail, m):
			after++
		default:
			between++
		}
	}

	var c Change
	switch {
	case inserted == 0:
		c = Change{Kind: ChangePatch, Count: refreshed}
	case wasEmpty:
		c = Change{Kind: ChangeReset, Count: inserted}
	case between == 0 && after == 0:
		c = Change{Kind: ChangePrepend, Count: inserted}
	case between == 0 && before == 0:
		c = Change{Kind: ChangeAppend, Count: inserted}
	default:
		c = Change{Kind: ChangeReset, Count: inserted}
	}
	s.notify(c)
	return c
}

// Patch applies fn to the message with the given id. fn reports whether it
// mutated the message; only then are listeners notified. Returns false when
// the id is not loaded.
func (s *Store) Patch(id string, fn func(*chat.Message) bool) bool {
	i, ok := s.byID[id]
	if !ok {
		return false
	}
	if !fn(&s.msgs[i]) {
		return true
	}
	s.notify(Change{Kind: ChangePatch, Count: 1})
	return true
}

// Remove deletes the message with the given id, reporting whether it was
// present.
func (s *Store) Remove(id string) bool {
	i, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	s.reindex(i)
	s.notify(Change{Kind: ChangeRemove, Count: 1})
	return true
}
