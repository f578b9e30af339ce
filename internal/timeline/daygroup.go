package timeline

import (
	"time"

	"github.com/pratchat/prat/internal/chat"
)

// DayGroup is one calendar day's slice of the timeline, in order.
type DayGroup struct {
	Key      string // calendar date, "2006-01-02"
	Label    string // Today / Yesterday / weekday+date / date+year
	Messages []chat.Message
}

const dayKeyFormat = "2006-01-02"

// DayLabel renders the header label for a calendar day relative to now.
func DayLabel(day, now time.Time) string {
	day = day.In(now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	that := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case that.Equal(today):
		return "Today"
	case that.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case that.Year() == today.Year():
		return that.Format("Monday, Jan 2")
	default:
		return that.Format("Jan 2, 2006")
	}
}

// GroupByDay buckets an already-sorted message slice into day groups. It is a
// pure O(n) walk: identical input always yields identical group boundaries,
// so downstream layout stays stable across recomputes.
func GroupByDay(msgs []chat.Message, now time.Time) []DayGroup {
	if len(msgs) == 0 {
		return nil
	}

	groups := make([]DayGroup, 0, 8)
	currentKey := ""
	for _, m := range msgs {
		local := m.CreatedAt.In(now.Location())
		key := local.Format(dayKeyFormat)
		if key != currentKey {
			groups = append(groups, DayGroup{
				Key:   key,
				Label: DayLabel(local, now),
			})
			currentKey = key
		}
		last := len(groups) - 1
		groups[last].Messages = append(groups[last].Messages, m)
	}
	return groups
}

// Projector derives day groups from the store on every mutation. It is the
// first store listener a Session registers, so anyone notified after it
// (anchor, UI) always observes fresh groups.
type Projector struct {
	store  *Store
	now    func() time.Time
	groups []DayGroup
}

func NewProjector(store *Store, now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	p := &Projector{store: store, now: now}
	store.OnChange(func(Change) { p.recompute() })
	p.recompute()
	return p
}

func (p *Projector) recompute() {
	p.groups = GroupByDay(p.store.Snapshot(), p.now())
}

// Groups returns the current projection. Callers must not mutate it.
func (p *Projector) Groups() []DayGroup {
	return p.groups
}
