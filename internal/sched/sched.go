// Package sched owns the engine's timers. Every heartbeat, re-anchor pulse
// and expiry runs as a task on a Runner so that conversation switch and
// teardown have a single path that cannot leak an interval.
package sched

import (
	"sync"
	"time"
)

// Task is a cancellable scheduled callback.
type Task interface {
	// Stop cancels the task. Stopping an already-stopped or fired task is a
	// no-op.
	Stop()
}

// Scheduler schedules callbacks. The production implementation is Runner;
// tests use Manual to drive time by hand.
type Scheduler interface {
	// After runs fn once after d.
	After(d time.Duration, fn func()) Task
	// Every runs fn repeatedly every d until the task is stopped.
	Every(d time.Duration, fn func()) Task
	// Close stops every outstanding task.
	Close()
}

// Runner is the wall-clock Scheduler.
type Runner struct {
	mu     sync.Mutex
	closed bool
	tasks  map[*runnerTask]struct{}
}

func NewRunner() *Runner {
	return &Runner{tasks: make(map[*runnerTask]struct{})}
}

type runnerTask struct {
	runner *Runner

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (t *runnerTask) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()

	t.runner.forget(t)
}

func (r *Runner) After(d time.Duration, fn func()) Task {
	return r.schedule(d, fn, false)
}

func (r *Runner) Every(d time.Duration, fn func()) Task {
	return r.schedule(d, fn, true)
}

func (r *Runner) schedule(d time.Duration, fn func(), repeat bool) Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := &runnerTask{runner: r}
	if r.closed {
		t.stopped = true
		return t
	}

	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return
		}
		if repeat {
			t.timer.Reset(d)
		} else {
			t.stopped = true
		}
		t.mu.Unlock()

		if !repeat {
			r.forget(t)
		}
		fn()
	})
	r.tasks[t] = struct{}{}
	return t
}

func (r *Runner) forget(t *runnerTask) {
	r.mu.Lock()
	delete(r.tasks, t)
	r.mu.Unlock()
}

// Close stops all tasks; further scheduling is a no-op.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	tasks := make([]*runnerTask, 0, len(r.tasks))
	for t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.tasks = make(map[*runnerTask]struct{})
	r.mu.Unlock()

	for _, t := range tasks {
		t.mu.Lock()
		t.stopped = true
		if t.timer != nil {
			t.timer.Stop()
		}
		t.mu.Unlock()
	}
}
