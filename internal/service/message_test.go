package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/apperr"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/events"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/hub"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/models"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/store"
)

type emitted struct {
	room, event string
	payload     any
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []emitted
	err   error
}

func (n *recordingNotifier) Emit(_ context.Context, room, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, emitted{room, event, payload})
	return n.err
}

func (n *recordingNotifier) rooms() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	for i, c := range n.calls {
		out[i] = c.event + "@" + c.room
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func newTestRepo(t *testing.T, users ...models.User) *store.SQLiteStore {
	t.Helper()
	repo, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chato.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(repo.Close)
	for _, u := range users {
		if err := repo.UpsertUser(context.Background(), u); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}
	return repo
}

var (
	alice = models.User{ID: 5, Username: "alice", Email: "alice@example.com"}
	bob   = models.User{ID: 9, Username: "bob", Email: "bob@example.com"}
	carol = models.User{ID: 11, Username: "carol"}
)

func newTestService(t *testing.T) (*MessageService, *recordingNotifier, *recordingPublisher) {
	t.Helper()
	n := &recordingNotifier{}
	p := &recordingPublisher{}
	return NewMessageService(newTestRepo(t, alice, bob, carol), n, p, zerolog.Nop()), n, p
}

func TestSendTextPersistsUnreadMessage(t *testing.T) {
	svc, n, p := newTestService(t)
	ctx := context.Background()

	m, err := svc.SendText(ctx, 5, 9, "hi")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if m.ID == 0 || m.IsRead || m.Kind != models.KindText {
		t.Fatalf("unexpected message %+v", m)
	}
	if m.Sender == nil || m.Sender.Username != "alice" || m.Recipient == nil || m.Recipient.Username != "bob" {
		t.Fatalf("profiles not resolved: %+v %+v", m.Sender, m.Recipient)
	}

	history, err := svc.History(ctx, 5, 9)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].ID != m.ID || history[0].IsRead || history[0].SenderID != 5 {
		t.Fatalf("history = %+v", history)
	}

	want := []string{"new_message@conversation_5_9", "new_message@user_9"}
	if got := n.rooms(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("emits = %v, want %v", got, want)
	}
	if len(p.events) != 1 || p.events[0].Type != events.TypeMessageCreated || p.events[0].Key != "conversation_5_9" {
		t.Fatalf("events = %+v", p.events)
	}
}

func TestSendTextValidation(t *testing.T) {
	svc, n, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		sender    int64
		recipient int64
		content   string
		want      error
	}{
		{"no caller", 0, 9, "hi", apperr.ErrAuth},
		{"no recipient", 5, 0, "hi", apperr.ErrValidation},
		{"blank", 5, 9, "  \n", apperr.ErrValidation},
		{"self", 5, 5, "hi", apperr.ErrValidation},
		{"unknown recipient", 5, 404, "hi", apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SendText(ctx, tt.sender, tt.recipient, tt.content); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(n.rooms()) != 0 {
		t.Fatalf("rejected sends must not emit, got %v", n.rooms())
	}
}

func TestSendVoiceDuration(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	m, err := svc.SendVoice(ctx, 5, 9, "http://media/voice/a.webm", 0)
	if err != nil {
		t.Fatalf("SendVoice(0): %v", err)
	}
	if m.Kind != models.KindVoice || m.Duration != nil {
		t.Fatalf("zero duration should be absent: %+v", m)
	}

	m, err = svc.SendVoice(ctx, 5, 9, "http://media/voice/b.webm", 12)
	if err != nil {
		t.Fatalf("SendVoice(12): %v", err)
	}
	if m.Duration == nil || *m.Duration != 12 {
		t.Fatalf("duration = %v, want 12", m.Duration)
	}

	summaries, err := svc.Conversations(ctx, 9)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(summaries) != 1 || summaries[0].LastMessage.Duration == nil || *summaries[0].LastMessage.Duration != 12 {
		t.Fatalf("summaries = %+v", summaries)
	}

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := svc.SendVoice(ctx, 5, 9, "http://media/voice/c.webm", bad); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("SendVoice(%v) err = %v, want ErrValidation", bad, err)
		}
	}
	if _, err := svc.SendVoice(ctx, 5, 9, " ", 3); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty url err = %v, want ErrValidation", err)
	}
}

func TestZeroDurationVoiceSummary(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SendVoice(ctx, 5, 9, "http://media/voice/a.webm", 0); err != nil {
		t.Fatalf("SendVoice: %v", err)
	}
	summaries, err := svc.Conversations(ctx, 9)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(summaries) != 1 || summaries[0].LastMessage.Duration != nil {
		t.Fatalf("summaries = %+v", summaries)
	}
	if summaries[0].LastMessage.Kind != models.KindVoice {
		t.Fatalf("kind = %s", summaries[0].LastMessage.Kind)
	}
}

func TestConversationScenario(t *testing.T) {
	svc, n, _ := newTestService(t)
	ctx := context.Background()

	for _, step := range []struct {
		from, to int64
		content  string
	}{{5, 9, "a"}, {5, 9, "b"}, {9, 5, "c"}} {
		if _, err := svc.SendText(ctx, step.from, step.to, step.content); err != nil {
			t.Fatalf("SendText(%s): %v", step.content, err)
		}
	}

	summaries, err := svc.Conversations(ctx, 9)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries = %+v", summaries)
	}
	if s := summaries[0]; s.User.ID != 5 || s.LastMessage.Content != "c" || s.UnreadCount != 2 {
		t.Fatalf("summary = %+v, want user 5, last c, unread 2", s)
	}

	updated, err := svc.MarkRead(ctx, 9, 5)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated = %d, want 2", updated)
	}

	summaries, _ = svc.Conversations(ctx, 9)
	if summaries[0].UnreadCount != 0 {
		t.Fatalf("unread after MarkRead = %d", summaries[0].UnreadCount)
	}

	updated, err = svc.MarkRead(ctx, 9, 5)
	if err != nil || updated != 0 {
		t.Fatalf("repeat MarkRead = %d, %v; want 0, nil", updated, err)
	}

	var receipt *emitted
	for i := range n.calls {
		if n.calls[i].event == hub.EventMessagesRead {
			receipt = &n.calls[i]
			break
		}
	}
	if receipt == nil || receipt.room != "user_5" {
		t.Fatalf("read receipt = %+v, want room user_5", receipt)
	}
	if r, ok := receipt.payload.(ReadReceipt); !ok || r.UserID != 9 {
		t.Fatalf("receipt payload = %#v", receipt.payload)
	}
}

func TestUnreadMatchesStoredCount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// deterministic interleaving of sends and reads across three users
	users := []int64{5, 9, 11}
	want := map[[2]int64]int{} // [reader, counterpart] -> unread
	for i := 0; i < 60; i++ {
		from := users[i%3]
		to := users[(i/3+1+i%3)%3]
		if from == to {
			to = users[(i+1)%3]
		}
		if _, err := svc.SendText(ctx, from, to, "m"); err != nil {
			t.Fatalf("SendText: %v", err)
		}
		want[[2]int64{to, from}]++

		if i%7 == 0 {
			if _, err := svc.MarkRead(ctx, to, from); err != nil {
				t.Fatalf("MarkRead: %v", err)
			}
			want[[2]int64{to, from}] = 0
		}
	}

	for _, reader := range users {
		summaries, err := svc.Conversations(ctx, reader)
		if err != nil {
			t.Fatalf("Conversations: %v", err)
		}
		for _, s := range summaries {
			if got, exp := s.UnreadCount, want[[2]int64{reader, s.User.ID}]; got != exp {
				t.Errorf("reader %d counterpart %d unread = %d, want %d", reader, s.User.ID, got, exp)
			}
		}
	}
}

func TestEmitFailureDoesNotFailSend(t *testing.T) {
	svc, n, p := newTestService(t)
	n.err = errors.New("hub closed")
	p.err = errors.New("broker down")

	m, err := svc.SendText(context.Background(), 5, 9, "still stored")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	history, _ := svc.History(context.Background(), 9, 5)
	if len(history) != 1 || history[0].ID != m.ID {
		t.Fatalf("history = %+v", history)
	}
	if _, err := svc.MarkRead(context.Background(), 9, 5); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
}

func TestNewMessageReachesRecipientSession(t *testing.T) {
	h := hub.New(zerolog.Nop())
	svc := NewMessageService(newTestRepo(t, alice, bob), h, nil, zerolog.Nop())
	ctx := context.Background()

	online, err := h.Connect(9)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	gone, err := h.Connect(9)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	h.Disconnect(gone)

	if _, err := svc.SendText(ctx, 5, 9, "ping"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case raw := <-online.Frames():
		var f hub.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode: %v", err)
		}
		var m models.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if f.Event != hub.EventNewMessage || f.Room != "user_9" || m.Content != "ping" || m.Sender == nil || m.Sender.ID != 5 {
			t.Fatalf("unexpected frame %+v / %+v", f, m)
		}
	case <-time.After(time.Second):
		t.Fatal("recipient session got nothing")
	}

	if _, ok := <-gone.Frames(); ok {
		t.Fatal("disconnected session received a frame")
	}
}

func TestHistoryAndLookups(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.History(ctx, 5, 404); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("History unknown err = %v", err)
	}
	if _, err := svc.History(ctx, 5, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("History zero err = %v", err)
	}
	h, err := svc.History(ctx, 5, 9)
	if err != nil || h == nil || len(h) != 0 {
		t.Fatalf("empty history = %v, %v", h, err)
	}

	svc.SendText(ctx, 5, 9, "one")
	svc.SendText(ctx, 9, 5, "two")
	svc.SendText(ctx, 5, 11, "three")

	sent, err := svc.Sent(ctx, 5)
	if err != nil {
		t.Fatalf("Sent: %v", err)
	}
	if len(sent) != 2 || sent[0].Content != "three" || sent[1].Content != "one" {
		t.Fatalf("sent = %+v", sent)
	}

	users, err := svc.Users(ctx)
	if err != nil || len(users) != 3 {
		t.Fatalf("Users = %v, %v", users, err)
	}

	u, err := svc.User(ctx, 9)
	if err != nil || u.Username != "bob" {
		t.Fatalf("User = %+v, %v", u, err)
	}
	if _, err := svc.User(ctx, 404); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("User unknown err = %v", err)
	}
}

func TestSyncProfileMakesUserResolvable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SendText(ctx, 5, 21, "hello?"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := svc.SyncProfile(ctx, models.User{ID: 21, Username: "dave"}); err != nil {
		t.Fatalf("SyncProfile: %v", err)
	}
	m, err := svc.SendText(ctx, 5, 21, "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if m.Recipient == nil || m.Recipient.Username != "dave" {
		t.Fatalf("recipient = %+v", m.Recipient)
	}
	if err := svc.SyncProfile(ctx, models.User{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
