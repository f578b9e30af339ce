package timeline

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/pratchat/prat/internal/chat"
)

const (
	// DefaultPageSize is the history fetch limit when config does not set one.
	DefaultPageSize = 20
	// maxBackfillAttempts bounds the automatic older-page loads issued to
	// fill a not-yet-scrollable viewport after the initial page.
	maxBackfillAttempts = 3
)

// ErrLoadInFlight is returned when a page load is requested while another is
// still outstanding.
var ErrLoadInFlight = errors.New("history load already in flight")

// Loader tracks backward pagination for one conversation. It is a plain state
// machine: Begin* hands out a cursor, ApplyPage/Fail settle the request. The
// Session drives the actual fetch and enforces epoch validity; the Loader
// never touches the network.
type Loader struct {
	store    *Store
	pageSize int
	log      zerolog.Logger

	loading    bool
	loadedOnce bool
	hasOlder   bool
	backfills  int
	lastErr    error
}

func NewLoader(store *Store, pageSize int, log zerolog.Logger) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{store: store, pageSize: pageSize, log: log}
}

func (l *Loader) PageSize() int { return l.pageSize }

// HasOlder reports whether more history is believed to exist. True until a
// short page arrives; a short page is the sole termination signal.
func (l *Loader) HasOlder() bool { return l.hasOlder }

// Loading reports whether a fetch is outstanding.
func (l *Loader) Loading() bool { return l.loading }

// Err returns the last fetch failure, cleared by the next successful page.
func (l *Loader) Err() error { return l.lastErr }

// BeginInitial starts the activation load (no cursor).
func (l *Loader) BeginInitial() error {
	if l.loading {
		return ErrLoadInFlight
	}
	l.loading = true
	l.lastErr = nil
	l.backfills = 0
	return nil
}

// BeginOlder starts a backward load and returns the cursor (the oldest loaded
// message id). ok is false when nothing should be fetched: already loading,
// no initial page yet, or history exhausted.
func (l *Loader) BeginOlder() (cursor string, ok bool) {
	if l.loading || !l.loadedOnce || !l.hasOlder {
		return "", false
	}
	l.loading = true
	l.lastErr = nil
	return l.store.OldestID(), true
}

// ApplyPage normalizes a newest-to-oldest page to ascending order and merges
// it. Applying the same page twice leaves the store unchanged.
func (l *Loader) ApplyPage(page []chat.Message) Change {
	l.loading = false
	l.loadedOnce = true
	l.lastErr = nil
	l.hasOlder = len(page) >= l.pageSize

	ascending := make([]chat.Message, len(page))
	for i, m := range page {
		ascending[len(page)-1-i] = m
	}

	l.log.Debug().
		Int("page", len(page)).
		Bool("has_older", l.hasOlder).
		Msg("history page merged")
	return l.store.MergePage(ascending)
}

// Fail records a fetch failure. The store is untouched; the same user action
// (scroll to top, retry) can re-trigger the load.
func (l *Loader) Fail(err error) {
	l.loading = false
	l.lastErr = err
	l.log.Warn().Err(err).Msg("history page fetch failed")
}

// NeedsBackfill reports whether another automatic older-page load should run
// so the user lands on a filled, scrollable view. Bounded so a pathological
// layout can't loop forever.
func (l *Loader) NeedsBackfill(scrollable bool) bool {
	if scrollable || !l.hasOlder || l.loading || l.lastErr != nil {
		return false
	}
	return l.backfills < maxBackfillAttempts
}

// NoteBackfill counts one automatic backfill attempt.
func (l *Loader) NoteBackfill() {
	l.backfills++
}
