// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest

import (
	"sync"

	"github.com/google/uuid"
)

// Session correlates consecutive calls to one stateful service. It is a
// client-side handle only; the gate decides what state it stands for.
type Session struct {
	owner Reference
	id    string
}

// NewSession returns a session with a fresh id bound to owner.
func NewSession(owner Reference) *Session {
	return &Session{owner: owner, id: uuid.NewString()}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Owner() Reference { return s.owner }

// State is the value injected under the "state" job parameter.
func (s *Session) State() map[string]any {
	return map[string]any{"session_id": s.id}
}

// SessionState holds a service's default session and the parameters merged
// into calls while it is enabled. Calls read it through Apply, which takes a
// consistent snapshot.
type SessionState struct {
	owner Reference

	mu      sync.Mutex
	session *Session
	params  Parameters
}

// NewSessionState returns an empty state for owner.
func NewSessionState(owner Reference) *SessionState {
	return &SessionState{owner: owner}
}

// CreateSession returns a new session bound to the owner without installing it.
func (s *SessionState) CreateSession() *Session {
	return NewSession(s.owner)
}

// EnableSession installs a default session unless one is already active and
// replaces the session parameters with a copy of params.
func (s *SessionState) EnableSession(params Parameters) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		s.session = NewSession(s.owner)
	}
	s.params = params.Clone()
	return s.session
}

// DisableSession clears the default session. Session parameters are kept
// but no longer merged.
func (s *SessionState) DisableSession() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// DefaultSession returns the enabled session or nil.
func (s *SessionState) DefaultSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SessionParameters returns a copy of the session parameters.
func (s *SessionState) SessionParameters() Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.params == nil {
		return nil
	}
	return s.params.Clone()
}

// Apply builds the parameters of one call: a copy of params, the session
// parameters for keys the caller left unset (only while a session is
// enabled) and the "state" entry of explicit, or of the default session.
// params itself is never modified.
func (s *SessionState) Apply(params Parameters, explicit *Session) Parameters {
	out := params.Clone()

	s.mu.Lock()
	active := s.session
	if active != nil {
		for k, v := range s.params {
			if _, set := out[k]; !set {
				out[k] = cloneValue(v)
			}
		}
	}
	s.mu.Unlock()

	session := explicit
	if session == nil {
		session = active
	}
	if session != nil {
		out["state"] = session.State()
	}
	return out
}
