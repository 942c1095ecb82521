// Package service implements the direct-messaging operations on top of the
// store, the realtime hub and the event stream.
package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/apperr"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/conversation"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/events"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/hub"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/metrics"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/models"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/store"
)

var tracer = otel.Tracer("github.com/mohamed-arshad-ch/chato-strapi-api/internal/service")

// Notifier pushes an event to every realtime session in a room. Both
// *hub.Hub and *hub.Bridge satisfy it.
type Notifier interface {
	Emit(ctx context.Context, room, event string, payload any) error
}

// ReadReceipt is the payload of a messages_read event.
type ReadReceipt struct {
	UserID int64 `json:"userId"`
}

// MessageService sends, lists and acknowledges direct messages.
type MessageService struct {
	repo     store.Repository
	index    *conversation.Index
	notifier Notifier
	events   events.Publisher
	logger   zerolog.Logger
}

// NewMessageService wires the service. A nil publisher disables domain events.
func NewMessageService(repo store.Repository, notifier Notifier, publisher events.Publisher, logger zerolog.Logger) *MessageService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &MessageService{
		repo:     repo,
		index:    conversation.NewIndex(repo),
		notifier: notifier,
		events:   publisher,
		logger:   logger.With().Str("component", "messages").Logger(),
	}
}

// SendText stores a text message and pushes it to both participants.
func (s *MessageService) SendText(ctx context.Context, senderID, recipientID int64, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("content is required")
	}
	return s.send(ctx, "send_text", &models.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		Kind:        models.KindText,
	})
}

// SendVoice stores a voice message pointing at mediaURL. A zero duration
// means the length is unknown and is stored as absent.
func (s *MessageService) SendVoice(ctx context.Context, senderID, recipientID int64, mediaURL string, duration float64) (*models.Message, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return nil, apperr.Validation("media url is required")
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return nil, apperr.Validation("duration must be a non-negative number of seconds")
	}
	m := &models.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     mediaURL,
		Kind:        models.KindVoice,
	}
	if duration > 0 {
		m.Duration = &duration
	}
	return s.send(ctx, "send_voice", m)
}

func (s *MessageService) send(ctx context.Context, op string, m *models.Message) (_ *models.Message, err error) {
	ctx, span := tracer.Start(ctx, "messages."+op, trace.WithAttributes(
		attribute.Int64("chato.sender_id", m.SenderID),
		attribute.Int64("chato.recipient_id", m.RecipientID),
		attribute.String("chato.kind", string(m.Kind)),
	))
	defer func() { endSpan(span, err) }()

	if err := s.checkPair(m.SenderID, m.RecipientID); err != nil {
		return nil, err
	}

	recipient, err := s.repo.FindUser(ctx, m.RecipientID)
	if err != nil {
		return nil, s.internal(op, m.SenderID, err)
	}
	if recipient == nil {
		return nil, apperr.NotFound("user %d", m.RecipientID)
	}
	sender, err := s.repo.FindUser(ctx, m.SenderID)
	if err != nil {
		return nil, s.internal(op, m.SenderID, err)
	}

	created, err := s.repo.CreateMessage(ctx, m)
	if err != nil {
		if apperr.IsClientError(err) {
			return nil, err
		}
		return nil, s.internal(op, m.SenderID, err)
	}
	created.Sender = sender.Profile()
	if created.Sender == nil {
		created.Sender = &models.UserProfile{ID: m.SenderID}
	}
	created.Recipient = recipient.Profile()
	metrics.MessagesSent.WithLabelValues(string(created.Kind)).Inc()

	s.emit(ctx, op, m.SenderID, conversation.Key(m.SenderID, m.RecipientID), hub.EventNewMessage, created)
	s.emit(ctx, op, m.SenderID, conversation.UserChannel(m.RecipientID), hub.EventNewMessage, created)
	s.publish(ctx, op, m.SenderID, events.Event{
		Type:       events.TypeMessageCreated,
		Key:        conversation.Key(m.SenderID, m.RecipientID),
		OccurredAt: created.CreatedAt,
		Payload:    created,
	})

	return created, nil
}

// MarkRead marks everything counterpartID sent to readerID as read and tells
// the counterpart. Calling it with nothing unread succeeds and reports zero.
func (s *MessageService) MarkRead(ctx context.Context, readerID, counterpartID int64) (_ int64, err error) {
	ctx, span := tracer.Start(ctx, "messages.mark_read", trace.WithAttributes(
		attribute.Int64("chato.reader_id", readerID),
		attribute.Int64("chato.counterpart_id", counterpartID),
	))
	defer func() { endSpan(span, err) }()

	if err := s.checkPair(readerID, counterpartID); err != nil {
		return 0, err
	}

	updated, err := s.repo.MarkReadBulk(ctx, counterpartID, readerID)
	if err != nil {
		return 0, s.internal("mark_read", readerID, err)
	}
	metrics.MessagesMarkedRead.Add(float64(updated))
	span.SetAttributes(attribute.Int64("chato.updated", updated))

	s.emit(ctx, "mark_read", readerID, conversation.UserChannel(counterpartID), hub.EventMessagesRead, ReadReceipt{UserID: readerID})
	if updated > 0 {
		s.publish(ctx, "mark_read", readerID, events.Event{
			Type:       events.TypeMessagesRead,
			Key:        conversation.Key(readerID, counterpartID),
			OccurredAt: time.Now().UTC(),
			Payload: map[string]int64{
				"readerId":      readerID,
				"counterpartId": counterpartID,
				"updated":       updated,
			},
		})
	}
	return updated, nil
}

// History returns the conversation between userID and otherID, oldest first.
func (s *MessageService) History(ctx context.Context, userID, otherID int64) ([]models.Message, error) {
	if otherID <= 0 {
		return nil, apperr.Validation("invalid user id")
	}
	other, err := s.repo.FindUser(ctx, otherID)
	if err != nil {
		return nil, s.internal("history", userID, err)
	}
	if other == nil {
		return nil, apperr.NotFound("user %d", otherID)
	}

	messages, err := s.repo.FindMessagesBetween(ctx, userID, otherID)
	if err != nil {
		return nil, s.internal("history", userID, err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// Conversations returns the caller's conversation summaries.
func (s *MessageService) Conversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	summaries, err := s.index.List(ctx, userID)
	if err != nil {
		return nil, s.internal("conversations", userID, err)
	}
	return summaries, nil
}

// Sent returns the messages userID authored, newest first.
func (s *MessageService) Sent(ctx context.Context, userID int64) ([]models.Message, error) {
	all, err := s.repo.FindMessagesByUser(ctx, userID)
	if err != nil {
		return nil, s.internal("sent", userID, err)
	}
	sent := make([]models.Message, 0, len(all))
	for _, m := range all {
		if m.SenderID == userID {
			sent = append(sent, m)
		}
	}
	return sent, nil
}

// Users lists the directory.
func (s *MessageService) Users(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, s.internal("users", 0, err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// User returns one directory entry.
func (s *MessageService) User(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, apperr.Validation("invalid user id")
	}
	u, err := s.repo.FindUser(ctx, id)
	if err != nil {
		return nil, s.internal("user", id, err)
	}
	if u == nil {
		return nil, apperr.NotFound("user %d", id)
	}
	return u, nil
}

// SyncProfile records the caller's identity claims in the directory so
// other users can resolve them.
func (s *MessageService) SyncProfile(ctx context.Context, u models.User) error {
	if u.ID <= 0 {
		return apperr.Validation("invalid user id")
	}
	if err := s.repo.UpsertUser(ctx, u); err != nil {
		return s.internal("sync_profile", u.ID, err)
	}
	return nil
}

func (s *MessageService) checkPair(actor, other int64) error {
	if actor <= 0 {
		return apperr.Auth("missing caller identity")
	}
	if other <= 0 {
		return apperr.Validation("recipient user id is required")
	}
	if actor == other {
		return apperr.Validation("cannot message yourself")
	}
	return nil
}

// emit never fails the caller; the write already happened.
func (s *MessageService) emit(ctx context.Context, op string, actor int64, room, event string, payload any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Emit(ctx, room, event, payload); err != nil {
		metrics.EmitFailures.WithLabelValues("realtime").Inc()
		s.logger.Warn().Err(err).
			Str("op", op).
			Int64("actor", actor).
			Str("room", room).
			Str("event", event).
			Msg("realtime emit failed")
	}
}

// publish hands the event to the publisher, which must not wait on its
// broker.
func (s *MessageService) publish(ctx context.Context, op string, actor int64, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		metrics.EmitFailures.WithLabelValues("events").Inc()
		s.logger.Warn().Err(err).
			Str("op", op).
			Int64("actor", actor).
			Str("type", e.Type).
			Msg("event publish failed")
	}
}

func (s *MessageService) internal(op string, actor int64, err error) error {
	s.logger.Error().Err(err).Str("op", op).Int64("actor", actor).Msg("store failure")
	return apperr.Internal(op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
