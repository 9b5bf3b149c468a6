package state

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryWindow is the number of most recent turns replayed to the model.
const DefaultHistoryWindow = 5

var (
	// ErrSessionNotFound is returned when switching to an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoActiveSession is returned when an operation needs an active session and none is set.
	ErrNoActiveSession = errors.New("no active session")
)

// SessionState is the history of one conversation. Queries[i] was answered by Responses[i].
type SessionState struct {
	ID          string   `json:"id"`
	Queries     []string `json:"queries"`
	Responses   []string `json:"responses"`
	CreatedAt   uint64   `json:"created_at"`
	LastUpdated uint64   `json:"last_updated"`
}

// Turn is one query and its answer.
type Turn struct {
	Query    string
	Response string
}

// Len returns the number of recorded turns.
func (s *SessionState) Len() int { return len(s.Queries) }

// Turns returns the recorded turns in order.
func (s *SessionState) Turns() []Turn {
	turns := make([]Turn, 0, len(s.Queries))
	for i := range s.Queries {
		turns = append(turns, Turn{Query: s.Queries[i], Response: s.Responses[i]})
	}
	return turns
}

// WindowHistory returns the last n turns of s and how many earlier turns were left out.
// A nil session has no history.
func WindowHistory(s *SessionState, n int) (turns []Turn, omitted int) {
	if s == nil {
		return nil, 0
	}
	all := s.Turns()
	if n < 0 {
		n = 0
	}
	if len(all) <= n {
		return all, 0
	}
	return all[len(all)-n:], len(all) - n
}

// SessionManager owns every session and tracks which one is active.
type SessionManager struct {
	Sessions map[string]*SessionState `json:"sessions"`
	Active   *string                  `json:"active_session"`

	now func() time.Time
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{Sessions: make(map[string]*SessionState)}
}

func (m *SessionManager) timestamp() uint64 {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	return uint64(now().Unix())
}

// CreateSession adds an empty session, makes it active and returns its id.
func (m *SessionManager) CreateSession() string {
	if m.Sessions == nil {
		m.Sessions = make(map[string]*SessionState)
	}
	id := uuid.NewString()
	ts := m.timestamp()
	m.Sessions[id] = &SessionState{
		ID:          id,
		Queries:     []string{},
		Responses:   []string{},
		CreatedAt:   ts,
		LastUpdated: ts,
	}
	m.Active = &id
	return id
}

// SetActiveSession makes id the active session.
func (m *SessionManager) SetActiveSession(id string) error {
	if _, ok := m.Sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.Active = &id
	return nil
}

// ActiveSession returns the active session, if any.
func (m *SessionManager) ActiveSession() (*SessionState, bool) {
	if m.Active == nil {
		return nil, false
	}
	s, ok := m.Sessions[*m.Active]
	return s, ok
}

// ActiveID returns the active session id or "".
func (m *SessionManager) ActiveID() string {
	if m.Active == nil {
		return ""
	}
	return *m.Active
}

// AddInteraction appends a turn to the active session.
func (m *SessionManager) AddInteraction(query, answer string) error {
	s, ok := m.ActiveSession()
	if !ok {
		return ErrNoActiveSession
	}
	s.Queries = append(s.Queries, query)
	s.Responses = append(s.Responses, answer)
	s.LastUpdated = m.timestamp()
	return nil
}

// ListSessions returns all sessions, most recently updated first.
func (m *SessionManager) ListSessions() []*SessionState {
	out := make([]*SessionState, 0, len(m.Sessions))
	for _, s := range m.Sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdated != out[j].LastUpdated {
			return out[i].LastUpdated > out[j].LastUpdated
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ClearActive deletes the active session and returns its id.
func (m *SessionManager) ClearActive() (string, error) {
	if m.Active == nil {
		return "", ErrNoActiveSession
	}
	id := *m.Active
	delete(m.Sessions, id)
	m.Active = nil
	return id, nil
}

// Select resolves the session a query runs in: "new" creates one, any other non-empty id
// switches to it, and an empty id keeps the active session or creates a default one.
func (m *SessionManager) Select(id string) (string, error) {
	switch id {
	case "new":
		return m.CreateSession(), nil
	case "":
		if _, ok := m.ActiveSession(); ok {
			return *m.Active, nil
		}
		return m.CreateSession(), nil
	default:
		if err := m.SetActiveSession(id); err != nil {
			return "", err
		}
		return id, nil
	}
}
