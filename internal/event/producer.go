package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/VideoTube/internal/domain"
	pkgkafka "github.com/utafrali/VideoTube/pkg/kafka"
	"github.com/utafrali/VideoTube/pkg/logger"
)

// Event types published on the users topic.
const (
	TypeUserRegistered      = "user.registered"
	TypeUserUpdated         = "user.updated"
	TypeUserPasswordChanged = "user.password_changed"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// SourceAccounts identifies events originating from this service.
const SourceAccounts = "videotube-accounts"

// UserData is the payload for user.registered and user.updated events.
type UserData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Avatar   string `json:"avatar"`
}

// PasswordChangedData is the payload for a user.password_changed event.
type PasswordChangedData struct {
	UserID string `json:"user_id"`
}

// Publisher emits user domain events.
type Publisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishUserUpdated(ctx context.Context, user *domain.User) error
	PublishPasswordChanged(ctx context.Context, userID string) error
}

type eventSink interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes user domain events to Kafka.
type Producer struct {
	kafka  eventSink
	topic  string
	logger *slog.Logger
}

// NewProducer creates a producer that writes every user event to topic.
func NewProducer(kafka *pkgkafka.Producer, topic string, logger *slog.Logger) *Producer {
	return newProducer(kafka, topic, logger)
}

func newProducer(sink eventSink, topic string, logger *slog.Logger) *Producer {
	return &Producer{kafka: sink, topic: topic, logger: logger}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TypeUserRegistered, user.ID, userData(user))
}

// PublishUserUpdated publishes a user.updated event.
func (p *Producer) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TypeUserUpdated, user.ID, userData(user))
}

// PublishPasswordChanged publishes a user.password_changed event.
func (p *Producer) PublishPasswordChanged(ctx context.Context, userID string) error {
	return p.publish(ctx, TypeUserPasswordChanged, userID, PasswordChangedData{UserID: userID})
}

func (p *Producer) publish(ctx context.Context, eventType, userID string, data any) error {
	event, err := pkgkafka.NewEvent(eventType, pkgkafka.Aggregate{Type: AggregateTypeUser, ID: userID}, SourceAccounts, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, p.topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published user event",
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
	)
	return nil
}

func userData(u *domain.User) UserData {
	return UserData{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Avatar:   u.Avatar,
	}
}

// Noop discards every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) PublishUserRegistered(context.Context, *domain.User) error { return nil }
func (Noop) PublishUserUpdated(context.Context, *domain.User) error { return nil }
func (Noop) PublishPasswordChanged(context.Context, string) error { return nil }

var (
	_ Publisher = (*Producer)(nil)
	_ Publisher = Noop{}
)
