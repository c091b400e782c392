package service

import (
	"slices"

	"workhub/server/chat/domain"
)

const (
	UpdateMessageCreated = "message.created"
	UpdateMessageUpdated = "message.updated"
	UpdateChannelCreated = "channel.created"
	UpdateChannelUpdated = "channel.updated"
	UpdateChannelOpened  = "channel.opened"
	UpdateUserUpdated    = "user.updated"
)

// RealtimeUpdate is one change between two snapshots of a user's store, as
// pushed to that user's websocket sessions.
type RealtimeUpdate struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id,omitempty"`
	Message   *domain.Message `json:"message,omitempty"`
	Channel   *domain.Channel `json:"channel,omitempty"`
	User      *domain.User    `json:"user,omitempty"`
}

// DiffStates lists what changed from prev to next. It relies on the store
// sharing untouched slices between snapshots, so unchanged parts cost one
// pointer comparison.
func DiffStates(prev, next *domain.ChatState) []RealtimeUpdate {
	if prev == nil || next == nil {
		return nil
	}
	var out []RealtimeUpdate

	if !sameSlice(prev.Channels, next.Channels) {
		for i := range next.Channels {
			ch := next.Channels[i]
			idx := slices.IndexFunc(prev.Channels, func(p domain.Channel) bool { return p.ID == ch.ID })
			switch {
			case idx < 0:
				out = append(out, RealtimeUpdate{Type: UpdateChannelCreated, ChannelID: ch.ID, Channel: &ch})
			case channelDiffers(prev.Channels[idx], ch):
				out = append(out, RealtimeUpdate{Type: UpdateChannelUpdated, ChannelID: ch.ID, Channel: &ch})
			}
		}
	}

	for channelID, nl := range next.Messages {
		pl := prev.Messages[channelID]
		if sameSlice(pl, nl) {
			continue
		}
		shared := min(len(pl), len(nl))
		for i := 0; i < shared; i++ {
			if pl[i].ID != nl[i].ID || !sameSlice(pl[i].Reactions, nl[i].Reactions) {
				m := nl[i]
				out = append(out, RealtimeUpdate{Type: UpdateMessageUpdated, ChannelID: channelID, Message: &m})
			}
		}
		for i := shared; i < len(nl); i++ {
			m := nl[i]
			out = append(out, RealtimeUpdate{Type: UpdateMessageCreated, ChannelID: channelID, Message: &m})
		}
	}

	if !sameSlice(prev.Users, next.Users) {
		for i := range next.Users {
			u := next.Users[i]
			idx := slices.IndexFunc(prev.Users, func(p domain.User) bool { return p.ID == u.ID })
			if idx < 0 || userDiffers(prev.Users[idx], u) {
				out = append(out, RealtimeUpdate{Type: UpdateUserUpdated, User: &u})
			}
		}
	}

	if next.CurrentChannel != nil && (prev.CurrentChannel == nil || *prev.CurrentChannel != *next.CurrentChannel) {
		out = append(out, RealtimeUpdate{Type: UpdateChannelOpened, ChannelID: *next.CurrentChannel})
	}
	return out
}

func sameSlice[T any](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}

func channelDiffers(a, b domain.Channel) bool {
	return a.Name != b.Name ||
		a.IsPrivate != b.IsPrivate ||
		a.UnreadCount != b.UnreadCount ||
		a.MentionsCount != b.MentionsCount ||
		!a.LastActivity.Equal(b.LastActivity) ||
		!slices.Equal(a.Members, b.Members) ||
		stringDiffers(a.Description, b.Description)
}

func userDiffers(a, b domain.User) bool {
	return a.Status != b.Status ||
		a.Name != b.Name ||
		a.Avatar != b.Avatar ||
		a.Title != b.Title ||
		a.Department != b.Department ||
		a.Location != b.Location ||
		a.Bio != b.Bio ||
		a.Timezone != b.Timezone ||
		!slices.Equal(a.Skills, b.Skills) ||
		stringDiffers(a.GithubUsername, b.GithubUsername) ||
		stringDiffers(a.LinkedinURL, b.LinkedinURL)
}

// stringDiffers compares optional strings by value; nil and "" differ.
func stringDiffers(a, b *string) bool {
	if a == nil || b == nil {
		return a != b
	}
	return *a != *b
}
