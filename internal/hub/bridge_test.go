package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// memPubSub is an in-process PubSub shared by several bridges.
type memPubSub struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
	fail error
}

func newMemPubSub() *memPubSub {
	return &memPubSub{subs: make(map[string][]chan []byte)}
}

func (m *memPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	for _, ch := range m.subs[channel] {
		ch <- payload
	}
	return nil
}

func (m *memPubSub) Subscribe(_ context.Context, channel string) (<-chan []byte, func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan []byte, 16)
	m.subs[channel] = append(m.subs[channel], ch)
	return ch, func() error { return nil }, nil
}

func (m *memPubSub) subscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channel])
}

func TestBridgeDeliversAcrossHubs(t *testing.T) {
	ps := newMemPubSub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h1, h2 := newTestHub(), newTestHub()
	b1 := NewBridge(h1, ps, "chato:relay", zerolog.Nop())
	b2 := NewBridge(h2, ps, "chato:relay", zerolog.Nop())
	go b1.Run(ctx)
	go b2.Run(ctx)
	waitFor(t, func() bool { return ps.subscribers("chato:relay") == 2 })

	local := connect(t, h1, 5)
	remote := connect(t, h2, 9)

	if err := b1.Emit(ctx, "user_9", EventNewMessage, map[string]string{"content": "over the wire"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	f := recv(t, remote)
	if f.Event != EventNewMessage || f.Room != "user_9" {
		t.Fatalf("unexpected frame %+v", f)
	}
	var data map[string]string
	if err := json.Unmarshal(f.Data, &data); err != nil || data["content"] != "over the wire" {
		t.Fatalf("data = %s (%v)", f.Data, err)
	}

	if err := b2.Emit(ctx, "user_5", EventMessagesRead, map[string]int64{"userId": 9}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if f := recv(t, local); f.Event != EventMessagesRead {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestBridgePublishErrorStillDeliversLocally(t *testing.T) {
	ps := newMemPubSub()
	redisDown := errors.New("redis down")
	ps.fail = redisDown
	h := newTestHub()
	b := NewBridge(h, ps, "chato:relay", zerolog.Nop())
	s := connect(t, h, 1)

	err := b.Emit(context.Background(), "user_1", EventNewMessage, map[string]string{"content": "local"})
	if !errors.Is(err, redisDown) {
		t.Fatalf("err = %v, want wrapped publish error", err)
	}
	f := recv(t, s)
	if f.Event != EventNewMessage || f.Room != "user_1" {
		t.Fatalf("unexpected frame %+v", f)
	}
	expectNone(t, s)
}

func TestBridgeIgnoresMalformedEnvelope(t *testing.T) {
	ps := newMemPubSub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newTestHub()
	b := NewBridge(h, ps, "chato:relay", zerolog.Nop())
	go b.Run(ctx)
	waitFor(t, func() bool { return ps.subscribers("chato:relay") == 1 })

	s := connect(t, h, 5)
	ps.Publish(ctx, "chato:relay", []byte("garbage"))
	b.Emit(ctx, "user_5", EventNewMessage, 1)

	if f := recv(t, s); f.Event != EventNewMessage {
		t.Fatalf("unexpected frame %+v", f)
	}
	expectNone(t, s)
}

func TestBridgeEmitAfterClose(t *testing.T) {
	h := newTestHub()
	b := NewBridge(h, newMemPubSub(), "chato:relay", zerolog.Nop())
	h.Close()
	if err := b.Emit(context.Background(), "user_1", EventNewMessage, nil); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("err = %v, want ErrHubClosed", err)
	}
}
