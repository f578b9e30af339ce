// Package state persists the small bits of TUI state worth keeping across
// runs: per-conversation drafts and the last active conversation. Saves are
// debounced and written atomically under a file lock.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	CurrentVersion = 1

	defaultDebounce = 1 * time.Second
)

type TUIState struct {
	Version          int               `json:"version"`
	Drafts           map[string]string `json:"drafts,omitempty"`            // conversation ref -> draft text
	LastConversation string            `json:"last_conversation,omitempty"` // for session restore
}

type Manager struct {
	path     string
	lockPath string

	mu       sync.Mutex
	state    TUIState
	dirty    bool
	timer    *time.Timer
	debounce time.Duration
}

func New(path string) *Manager {
	path = strings.TrimSpace(path)
	return &Manager{
		path:     path,
		lockPath: path + ".lock",
		state: TUIState{
			Version: CurrentVersion,
			Drafts:  make(map[string]string),
		},
		debounce: defaultDebounce,
	}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return nil
	}

	var loaded TUIState
	if err := withFileLock(m.lockPath, func() error {
		payload, err := os.ReadFile(m.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				loaded = TUIState{Version: CurrentVersion}
				return nil
			}
			return err
		}
		if len(payload) == 0 {
			loaded = TUIState{Version: CurrentVersion}
			return nil
		}
		return json.Unmarshal(payload, &loaded)
	}); err != nil {
		return err
	}

	if loaded.Version <= 0 {
		loaded.Version = CurrentVersion
	}
	if loaded.Drafts == nil {
		loaded.Drafts = make(map[string]string)
	}
	m.state = loaded
	m.dirty = false
	return nil
}

func (m *Manager) Draft(target string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Drafts[strings.TrimSpace(target)]
}

func (m *Manager) SetDraft(target, draft string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target = strings.TrimSpace(target)
	if target == "" {
		return
	}
	if draft == "" {
		if _, ok := m.state.Drafts[target]; !ok {
			return
		}
		delete(m.state.Drafts, target)
	} else {
		m.state.Drafts[target] = draft
	}
	m.markDirtyLocked()
}

func (m *Manager) LastConversation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastConversation
}

func (m *Manager) SetLastConversation(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target = strings.TrimSpace(target)
	if target == "" || target == m.state.LastConversation {
		return
	}
	m.state.LastConversation = target
	m.markDirtyLocked()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	needsSave := m.dirty
	m.mu.Unlock()
	if !needsSave {
		return nil
	}
	return m.SaveNow()
}

func (m *Manager) SaveNow() error {
	m.mu.Lock()
	if m.path == "" {
		m.mu.Unlock()
		return nil
	}
	state := m.state
	state.Version = CurrentVersion
	drafts := make(map[string]string, len(state.Drafts))
	for k, v := range state.Drafts {
		drafts[k] = v
	}
	state.Drafts = drafts
	m.dirty = false
	m.mu.Unlock()

	if err := withFileLock(m.lockPath, func() error {
		return writeAtomicJSON(m.path, state)
	}); err != nil {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) markDirtyLocked() {
	m.dirty = true
	if m.path == "" {
		return
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.debounce, func() {
			_ = m.SaveNow()
		})
		return
	}
	_ = m.timer.Reset(m.debounce)
}

func withFileLock(lockPath string, fn func() error) error {
	if strings.TrimSpace(lockPath) == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomicJSON(path string, state TUIState) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
