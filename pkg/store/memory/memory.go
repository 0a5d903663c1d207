// Package memory provides an in-process SessionStore with a lock per session.
package memory

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jxucoder/TeleInterview/pkg/clock"
	"github.com/jxucoder/TeleInterview/pkg/model"
	"github.com/jxucoder/TeleInterview/pkg/store"
)

// entry guards one session. deleted is set under mu so a mutation that was
// waiting on the lock sees the deletion instead of writing to a dead session.
type entry struct {
	mu      sync.Mutex
	sess    *model.Session
	deleted bool
}

// Store is an in-memory SessionStore. Mutations of different sessions never
// contend; the map lock is held only to look entries up.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	clock  clock.Clock
	logger *slog.Logger
}

var _ store.SessionStore = (*Store)(nil)

// New creates an empty Store. UpdatedAt is stamped from clk on every commit.
func New(clk clock.Clock, logger *slog.Logger) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries: make(map[string]*entry),
		clock:   clk,
		logger:  logger.With("component", "session-store"),
	}
}

// Create stores a new session under a fresh id.
func (s *Store) Create(p model.CreateParams) (*model.Session, error) {
	if _, err := model.ParseInterviewType(string(p.InterviewType)); err != nil {
		return nil, err
	}
	if err := p.Timing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timing: %w", err)
	}
	if p.Now.IsZero() {
		p.Now = s.clock.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()[:8]
	for s.entries[id] != nil {
		id = uuid.New().String()[:8]
	}
	sess := model.NewSession(id, p)
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	s.entries[id] = &entry{sess: sess}
	s.logger.Debug("session created", "session_id", id)
	return sess.Clone(), nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	return e, nil
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (*model.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	return e.sess.Clone(), nil
}

// MutateAtomically applies fn to a working copy of the session and swaps it in
// when fn succeeds and the result passes Validate. A result that fails Validate
// marks the stored session unusable; unusable sessions reject all mutations.
func (s *Store) MutateAtomically(id string, fn store.MutateFunc) (*model.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	if e.sess.Unusable {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionUnusable, e.sess.UnusableReason)
	}

	work := e.sess.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	if err := work.Validate(); err != nil {
		e.sess.Unusable = true
		e.sess.UnusableReason = err.Error()
		e.sess.UpdatedAt = s.clock.Now()
		s.logger.Error("session invariant violated", "session_id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", model.ErrSessionUnusable, err)
	}
	work.UpdatedAt = s.clock.Now()
	e.sess = work
	return work.Clone(), nil
}

// Delete removes the session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	s.logger.Debug("session deleted", "session_id", id)
	return nil
}

// List returns snapshots of all live sessions, oldest first.
func (s *Store) List() []*model.Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*model.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.sess.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
