// Package hub keeps realtime channel membership and fans events out to
// connected websocket sessions.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/conversation"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/metrics"
)

var (
	ErrHubClosed       = errors.New("hub closed")
	ErrSessionInactive = errors.New("session is not active")
	ErrInvalidRoom     = errors.New("invalid room name")
	ErrRoomForbidden   = errors.New("room not accessible")
)

// RoomAccess decides which rooms a session may join.
type RoomAccess string

const (
	// AccessParticipant limits sessions to their own personal channel and
	// conversations that include their user.
	AccessParticipant RoomAccess = "participant"
	// AccessOpen allows any room name.
	AccessOpen RoomAccess = "open"
)

const (
	shardCount        = 32
	maxRoomNameLength = 128
	defaultSendBuffer = 256
)

type shard struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

// Hub is the in-process membership table. It is safe for concurrent use.
type Hub struct {
	shards     [shardCount]*shard
	access     RoomAccess
	sendBuffer int
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithRoomAccess sets the room access policy.
func WithRoomAccess(a RoomAccess) Option {
	return func(h *Hub) {
		if a == AccessOpen || a == AccessParticipant {
			h.access = a
		}
	}
}

// WithSendBuffer sets how many frames a session may have queued before it
// is treated as a slow consumer.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// New creates a hub.
func New(logger zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		access:     AccessParticipant,
		sendBuffer: defaultSendBuffer,
		logger:     logger.With().Str("component", "hub").Logger(),
		sessions:   make(map[*Session]struct{}),
	}
	for i := range h.shards {
		h.shards[i] = &shard{rooms: make(map[string]map[*Session]struct{})}
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) shardFor(room string) *shard {
	f := fnv.New32a()
	f.Write([]byte(room))
	return h.shards[f.Sum32()%shardCount]
}

// Connect registers an authenticated user and joins its personal channel.
func (h *Hub) Connect(userID int64) (*Session, error) {
	s := newSession(h.sendBuffer)
	if err := s.authenticate(userID); err != nil {
		s.markClosed()
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.markClosed()
		return nil, ErrHubClosed
	}
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeSessions.Inc()

	if err := s.activate(); err != nil {
		h.Disconnect(s)
		return nil, err
	}
	if err := h.join(s, conversation.UserChannel(userID)); err != nil {
		h.Disconnect(s)
		return nil, err
	}

	h.logger.Debug().Str("session", s.ID).Int64("user_id", userID).Msg("session connected")
	return s, nil
}

// JoinRoom adds s to room.
func (h *Hub) JoinRoom(s *Session, room string) error {
	if err := h.authorize(s, room, false); err != nil {
		return err
	}
	return h.join(s, room)
}

// JoinUserRoom adds s to a personal channel.
func (h *Hub) JoinUserRoom(s *Session, room string) error {
	if err := h.authorize(s, room, true); err != nil {
		return err
	}
	return h.join(s, room)
}

// LeaveRoom removes s from room. Leaving a room that was never joined is not an error.
func (h *Hub) LeaveRoom(s *Session, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrSessionInactive
	}
	if _, ok := s.rooms[room]; !ok {
		return nil
	}
	delete(s.rooms, room)
	h.removeMember(room, s)
	return nil
}

func (h *Hub) authorize(s *Session, room string, personalOnly bool) error {
	if room == "" || len(room) > maxRoomNameLength {
		return ErrInvalidRoom
	}
	ch, ok := conversation.ParseChannel(room)
	if personalOnly && (!ok || ch.Kind != conversation.ChannelUser) {
		return ErrInvalidRoom
	}
	if h.access == AccessOpen {
		return nil
	}
	if !ok {
		return ErrInvalidRoom
	}
	if !ch.Includes(s.UserID()) {
		return ErrRoomForbidden
	}
	return nil
}

// join holds the session lock across the shard update so a concurrent
// Disconnect sees every room the session ever entered.
func (h *Hub) join(s *Session, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrSessionInactive
	}
	if _, ok := s.rooms[room]; ok {
		return nil
	}

	sh := h.shardFor(room)
	sh.mu.Lock()
	members := sh.rooms[room]
	if members == nil {
		members = make(map[*Session]struct{})
		sh.rooms[room] = members
	}
	members[s] = struct{}{}
	sh.mu.Unlock()

	s.rooms[room] = struct{}{}
	return nil
}

func (h *Hub) removeMember(room string, s *Session) {
	sh := h.shardFor(room)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	members := sh.rooms[room]
	delete(members, s)
	if len(members) == 0 {
		delete(sh.rooms, room)
	}
}

// Disconnect closes s and removes it from every room. It is idempotent.
func (h *Hub) Disconnect(s *Session) {
	rooms, ok := s.markClosed()
	if !ok {
		return
	}
	for _, room := range rooms {
		h.removeMember(room, s)
	}

	h.mu.Lock()
	_, registered := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if registered {
		metrics.RealtimeSessions.Dec()
	}

	h.logger.Debug().Str("session", s.ID).Int64("user_id", s.UserID()).Msg("session disconnected")
}

// Emit delivers payload to every session currently in room. Sessions that
// cannot take the frame immediately are dropped instead of waited on.
func (h *Hub) Emit(ctx context.Context, room, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.Closed() {
		return ErrHubClosed
	}
	frame, err := encodeFrame(room, event, payload)
	if err != nil {
		return err
	}
	h.deliver(room, event, frame)
	return nil
}

// deliver returns how many sessions accepted the frame.
func (h *Hub) deliver(room, event string, frame []byte) int {
	sh := h.shardFor(room)
	sh.mu.RLock()
	members := make([]*Session, 0, len(sh.rooms[room]))
	for s := range sh.rooms[room] {
		members = append(members, s)
	}
	sh.mu.RUnlock()

	delivered := 0
	for _, s := range members {
		err := s.enqueue(frame)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, errSendBufferFull):
			metrics.RealtimeFramesDropped.Inc()
			h.logger.Warn().
				Str("session", s.ID).
				Int64("user_id", s.UserID()).
				Str("room", room).
				Msg("send buffer full, disconnecting slow session")
			h.Disconnect(s)
		}
	}

	metrics.RealtimeFramesEmitted.WithLabelValues(event).Add(float64(delivered))
	return delivered
}

// handle applies one client event to s and queues the reply.
func (h *Hub) handle(s *Session, in Frame) {
	room, ok := in.roomArg()
	var err error
	switch {
	case !ok:
		err = ErrInvalidRoom
	case in.Event == EventJoinRoom:
		err = h.JoinRoom(s, room)
	case in.Event == EventLeaveRoom:
		err = h.LeaveRoom(s, room)
	case in.Event == EventJoinUserRoom:
		err = h.JoinUserRoom(s, room)
	default:
		err = errors.New("unknown event " + in.Event)
	}

	var reply Frame
	switch {
	case err != nil:
		reply = Frame{Event: EventError, Ack: in.Ack, Room: room, Error: err.Error()}
	case in.Ack != "":
		reply = Frame{Event: EventAck, Ack: in.Ack, Room: room}
	default:
		return
	}
	if data, mErr := json.Marshal(reply); mErr == nil {
		_ = s.enqueue(data)
	}
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	n := 0
	for _, sh := range h.shards {
		sh.mu.RLock()
		n += len(sh.rooms)
		sh.mu.RUnlock()
	}
	return n
}

// Members returns how many sessions are in room.
func (h *Hub) Members(room string) int {
	sh := h.shardFor(room)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.rooms[room])
}

// Closed reports whether Close has been called.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close disconnects every session. Later Connect and Emit calls fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Disconnect(s)
	}
	h.logger.Info().Int("sessions", len(sessions)).Msg("hub closed")
}
