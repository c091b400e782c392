package domain

import "time"

const (
	EventMessageCreated  = "message.created"
	EventReactionToggled = "reaction.toggled"
	EventUserStatus      = "user.status"
	EventChannelCreated  = "channel.created"
	EventChannelRead     = "channel.read"
	EventUserUpdated     = "user.updated"
)

// Event is the envelope published to the message bus and pushed to realtime
// subscribers.
type Event struct {
	Origin    string    `json:"origin,omitempty"`
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

type ReactionPayload struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"user_id"`
}

type StatusPayload struct {
	UserID string     `json:"user_id"`
	Status UserStatus `json:"status"`
}
