// Package ident provides the identifiers used across the sync core: session
// IDs that name a single client/server actor and the monotonic sequence
// numbers an actor mints within a session.
package ident

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SessionID names one actor — a client tab, a worker, a server process —
// for as long as it keeps a logical clock running. It is a UUID v7, so
// SessionIDs minted later sort after ones minted earlier.
type SessionID uuid.UUID

// NewSessionID mints a new SessionID from the current time.
func NewSessionID() SessionID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system clock/rand source is broken;
		// there is no useful degraded behavior for an identifier type.
		panic(fmt.Sprintf("ident: failed to mint session id: %v", err))
	}
	return SessionID(id)
}

// String returns the canonical UUID representation.
func (s SessionID) String() string {
	return uuid.UUID(s).String()
}

// Compare orders two SessionIDs byte-wise. Used to break ties deterministically
// (e.g. LWW path ordering, lock ordering for cross-document operations).
func (s SessionID) Compare(other SessionID) int {
	a, b := uuid.UUID(s), uuid.UUID(other)
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (s SessionID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return fmt.Errorf("ident: invalid session id: %w", err)
	}
	*s = SessionID(u)
	return nil
}

func (s SessionID) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SessionID) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(str))
}

// Seq is a per-session monotonic counter. A (SessionID, Seq) pair is
// globally unique and totally ordered without coordination, which is what
// Change.id needs: clients mint ids offline and the server never
// renumbers them.
type Seq struct {
	Session SessionID `json:"sid"`
	Counter uint64    `json:"seq"`
}

// Compare orders Seq values first by session, then by counter.
func (s Seq) Compare(other Seq) int {
	if c := s.Session.Compare(other.Session); c != 0 {
		return c
	}
	switch {
	case s.Counter < other.Counter:
		return -1
	case s.Counter > other.Counter:
		return 1
	default:
		return 0
	}
}

func (s Seq) String() string {
	return fmt.Sprintf("%s:%d", s.Session, s.Counter)
}

// Clock mints successive Seq values for one session. It is not safe for
// concurrent use; callers that need concurrency should guard it themselves
// (the sync core's single-threaded-per-document model never needs to).
type Clock struct {
	session SessionID
	counter uint64
}

// NewClock creates a Clock for a fresh session.
func NewClock() *Clock {
	return &Clock{session: NewSessionID()}
}

// NewClockForSession creates a Clock that mints ids under an existing
// session, e.g. after reloading persisted state that recorded the session.
func NewClockForSession(session SessionID, startAt uint64) *Clock {
	return &Clock{session: session, counter: startAt}
}

// Session returns the session this clock mints ids under.
func (c *Clock) Session() SessionID {
	return c.session
}

// Next returns the next Seq and advances the counter.
func (c *Clock) Next() Seq {
	c.counter++
	return Seq{Session: c.session, Counter: c.counter}
}

// Peek returns the Seq that Next would return, without advancing.
func (c *Clock) Peek() Seq {
	return Seq{Session: c.session, Counter: c.counter + 1}
}
