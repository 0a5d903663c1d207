// Package store defines the SessionStore interface for live interview sessions.
package store

import "github.com/jxucoder/TeleInterview/pkg/model"

// MutateFunc changes a session in place. Returning an error abandons every
// change the function made.
type MutateFunc func(sess *model.Session) error

// SessionStore owns all live session state. Sessions handed out by Get and
// List are snapshots; MutateAtomically is the only way to change a session.
type SessionStore interface {
	// Create stores a new session and returns a snapshot of it.
	Create(p model.CreateParams) (*model.Session, error)
	// Get returns a snapshot or model.ErrSessionNotFound.
	Get(id string) (*model.Session, error)
	// MutateAtomically runs fn with exclusive access to the session and
	// commits its changes only if fn and the invariant check both succeed.
	// It returns a snapshot of the committed session.
	MutateAtomically(id string, fn MutateFunc) (*model.Session, error)
	// Delete removes the session. Later calls for id return ErrSessionNotFound.
	Delete(id string) error
	// List returns snapshots of every live session.
	List() []*model.Session
}
