// Package session keeps the per-user conversation history. The store is
// process-local: nothing survives a restart, which is the intended scope
// for a stateless deployment behind sticky routing.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/periplo-ai/periplo/pkg/extract"
	"github.com/periplo-ai/periplo/pkg/observability"
	"github.com/periplo-ai/periplo/pkg/plan"
	"github.com/periplo-ai/periplo/pkg/reasoning"
	"github.com/periplo-ai/periplo/pkg/travel"
)

// DefaultMaxTurns is how much history one user keeps. Older turns fall
// off the front.
const DefaultMaxTurns = 10

// TurnRecord is the full account of one handled request. The pipeline
// fills it in stages and hands it to the store once composed; after that
// it is immutable.
type TurnRecord struct {
	ID        string              `json:"id"`
	Utterance string              `json:"utterance"`
	Extracted extract.Extracted   `json:"extracted"`
	Thoughts  []reasoning.Thought `json:"thoughts"`
	Plan      plan.Plan           `json:"plan"`
	Results   travel.ResultBundle `json:"results,omitempty"`
	Answer    string              `json:"answer"`
	TsIn      time.Time           `json:"ts_in"`
	TsOut     time.Time           `json:"ts_out"`
}

// Session is one user's view of their history. Load returns a copy; the
// store keeps ownership of the backing records.
type Session struct {
	UserID  string       `json:"user_id"`
	History []TurnRecord `json:"history"`
}

// Turns returns the number of recorded turns.
func (s Session) Turns() int { return len(s.History) }

// Last returns the most recent record, if any.
func (s Session) Last() (TurnRecord, bool) {
	if len(s.History) == 0 {
		return TurnRecord{}, false
	}
	return s.History[len(s.History)-1], true
}

type userSession struct {
	mu      sync.Mutex
	history []TurnRecord
}

// Store maps user ids to sessions. The outer map lock is held only for
// lookup and insert; per-user operations serialise on the session's own
// mutex, so users never contend with each other.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*userSession
	maxTurns int
}

// NewStore builds a store trimming each history to maxTurns. Zero or
// negative means DefaultMaxTurns.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		sessions: make(map[string]*userSession),
		maxTurns: maxTurns,
	}
}

func (s *Store) session(userID string, create bool) *userSession {
	s.mu.RLock()
	us, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok || !create {
		return us
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if us, ok = s.sessions[userID]; ok {
		return us
	}
	us = &userSession{}
	s.sessions[userID] = us
	observability.AddActiveSessions(context.Background(), 1)
	return us
}

// Load returns a copy of the user's session. Unknown users get an empty
// session, not an error.
func (s *Store) Load(userID string) Session {
	us := s.session(userID, false)
	if us == nil {
		return Session{UserID: userID}
	}

	us.mu.Lock()
	defer us.mu.Unlock()
	history := make([]TurnRecord, len(us.history))
	copy(history, us.history)
	return Session{UserID: userID, History: history}
}

// Append records one finished turn and trims the history. Records missing
// an id get one here; a TsIn behind the previous record's is advanced to
// it, keeping the history monotonic even under misuse.
func (s *Store) Append(userID string, rec TurnRecord) TurnRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	us := s.session(userID, true)
	us.mu.Lock()
	defer us.mu.Unlock()

	if n := len(us.history); n > 0 && rec.TsIn.Before(us.history[n-1].TsIn) {
		rec.TsIn = us.history[n-1].TsIn
	}
	us.history = append(us.history, rec)
	us.history = trimTail(us.history, s.maxTurns)
	return rec
}

// Trim reapplies the history cap for one user.
func (s *Store) Trim(userID string) {
	us := s.session(userID, false)
	if us == nil {
		return
	}
	us.mu.Lock()
	defer us.mu.Unlock()
	us.history = trimTail(us.history, s.maxTurns)
}

// Users returns the number of sessions in memory.
func (s *Store) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func trimTail(history []TurnRecord, max int) []TurnRecord {
	if len(history) <= max {
		return history
	}
	trimmed := make([]TurnRecord, max)
	copy(trimmed, history[len(history)-max:])
	return trimmed
}
