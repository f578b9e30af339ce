package sched

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of the wall clock. It keeps
// timer-dependent tests deterministic.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	closed  bool
	nextSeq int
	pending []*manualTask
}

type manualTask struct {
	sched   *Manual
	seq     int
	due     time.Time
	period  time.Duration // 0 for one-shot
	fn      func()
	stopped bool
}

func (t *manualTask) Stop() {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	t.stopped = true
}

func NewManual() *Manual {
	return &Manual{now: time.Unix(0, 0)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(d time.Duration, fn func()) Task {
	return m.add(d, 0, fn)
}

func (m *Manual) Every(d time.Duration, fn func()) Task {
	return m.add(d, d, fn)
}

func (m *Manual) add(d, period time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTask{sched: m, seq: m.nextSeq, due: m.now.Add(d), period: period, fn: fn}
	m.nextSeq++
	if m.closed {
		t.stopped = true
		return t
	}
	m.pending = append(m.pending, t)
	return t
}

// Advance moves the clock forward, firing due tasks in due-then-creation
// order. Callbacks run without the lock held and may schedule further tasks.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var next *manualTask
		for _, t := range m.pending {
			if t.stopped || t.due.After(target) {
				continue
			}
			if next == nil || t.due.Before(next.due) || (t.due.Equal(next.due) && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			m.now = target
			m.compactLocked()
			m.mu.Unlock()
			return
		}
		if next.due.After(m.now) {
			m.now = next.due
		}
		if next.period > 0 {
			next.due = next.due.Add(next.period)
		} else {
			next.stopped = true
		}
		fn := next.fn
		m.mu.Unlock()

		fn()
	}
}

func (m *Manual) compactLocked() {
	kept := m.pending[:0]
	for _, t := range m.pending {
		if !t.stopped {
			kept = append(kept, t)
		}
	}
	m.pending = kept
	sort.SliceStable(m.pending, func(i, j int) bool { return m.pending[i].seq < m.pending[j].seq })
}

// PendingCount reports live tasks, for asserting teardown.
func (m *Manual) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, t := range m.pending {
		t.stopped = true
	}
	m.pending = nil
}
