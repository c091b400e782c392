package service

import (
	"context"

	"workhub/server/chat/domain"
)

type UserRepository interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByID(ctx context.Context, userID string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateProfile(ctx context.Context, u domain.User) error
	UpdateUserStatus(ctx context.Context, userID string, status domain.UserStatus) error
}

type ChannelRepository interface {
	CreateChannel(ctx context.Context, ch domain.Channel) error
	ListChannels(ctx context.Context) ([]domain.Channel, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, m domain.Message) error
	ListMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error)
	ToggleReaction(ctx context.Context, messageID, emoji, userID string) error
}

type Repository interface {
	UserRepository
	ChannelRepository
	MessageRepository
}

// EventPublisher forwards committed changes to an outside collaborator: the
// AMQP bus or the cross-instance relay.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type TokenIssuer interface {
	GenerateToken(userID, email, role string) (string, error)
}
