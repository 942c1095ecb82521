package hub

import (
	"errors"
	"sort"
	"sync"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/crypto"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	errSendBufferFull = errors.New("send buffer full")
	errSessionClosed  = errors.New("session closed")
)

// Session is one connected client. It belongs to exactly one user for its
// whole life and only changes room membership while active.
type Session struct {
	ID string

	send chan []byte
	done chan struct{}

	mu     sync.RWMutex
	state  State
	userID int64
	rooms  map[string]struct{}
}

func newSession(sendBuffer int) *Session {
	return &Session{
		ID:    crypto.NewUUIDv7().String(),
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		state: StateConnecting,
		rooms: make(map[string]struct{}),
	}
}

// UserID returns the authenticated user, zero before authentication.
func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Rooms returns the joined rooms in name order.
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Frames yields every frame queued for the client. The channel closes with
// the session.
func (s *Session) Frames() <-chan []byte {
	return s.send
}

func (s *Session) authenticate(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return ErrSessionInactive
	}
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	s.userID = userID
	s.state = StateAuthenticated
	return nil
}

func (s *Session) activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return ErrSessionInactive
	}
	s.state = StateActive
	return nil
}

// enqueue never blocks.
func (s *Session) enqueue(frame []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateClosed {
		return errSessionClosed
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// markClosed moves the session to closed and hands back the rooms it was in.
// Only the first call reports ok.
func (s *Session) markClosed() ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, false
	}
	s.state = StateClosed

	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.rooms = nil

	close(s.send)
	close(s.done)
	return rooms, true
}
