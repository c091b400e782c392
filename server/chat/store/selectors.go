package store

import (
	"slices"

	"workhub/server/chat/domain"
)

// CurrentChannelMessages returns the message list of the selected channel, or
// nil when no channel is selected.
func CurrentChannelMessages(st *domain.ChatState) []domain.Message {
	if st == nil || st.CurrentChannel == nil {
		return nil
	}
	return st.Messages[*st.CurrentChannel]
}

func IsActiveChannel(st *domain.ChatState, channelID string) bool {
	return st != nil && st.CurrentChannel != nil && *st.CurrentChannel == channelID
}

func ChannelByID(st *domain.ChatState, channelID string) (domain.Channel, bool) {
	if st == nil {
		return domain.Channel{}, false
	}
	idx := slices.IndexFunc(st.Channels, func(ch domain.Channel) bool { return ch.ID == channelID })
	if idx < 0 {
		return domain.Channel{}, false
	}
	return st.Channels[idx], true
}

func UserByID(st *domain.ChatState, userID string) (domain.User, bool) {
	if st == nil {
		return domain.User{}, false
	}
	idx := slices.IndexFunc(st.Users, func(u domain.User) bool { return u.ID == userID })
	if idx < 0 {
		return domain.User{}, false
	}
	return st.Users[idx], true
}

func MessageByID(st *domain.ChatState, channelID, messageID string) (domain.Message, bool) {
	if st == nil {
		return domain.Message{}, false
	}
	list := st.Messages[channelID]
	idx := slices.IndexFunc(list, func(m domain.Message) bool { return m.ID == messageID })
	if idx < 0 {
		return domain.Message{}, false
	}
	return list[idx], true
}

func TotalUnread(st *domain.ChatState) int {
	total := 0
	if st == nil {
		return total
	}
	for _, ch := range st.Channels {
		total += ch.UnreadCount
	}
	return total
}

func TotalMentions(st *domain.ChatState) int {
	total := 0
	if st == nil {
		return total
	}
	for _, ch := range st.Channels {
		total += ch.MentionsCount
	}
	return total
}

// ChannelChanged reports whether the channel list or the message list of
// channelID differs between two snapshots.
func ChannelChanged(prev, next *domain.ChatState, channelID string) bool {
	if prev == nil || next == nil {
		return prev != next
	}
	pl, nl := prev.Messages[channelID], next.Messages[channelID]
	if len(pl) != len(nl) || (len(pl) > 0 && &pl[0] != &nl[0]) {
		return true
	}
	pc, pok := ChannelByID(prev, channelID)
	nc, nok := ChannelByID(next, channelID)
	if pok != nok {
		return true
	}
	return pc.UnreadCount != nc.UnreadCount || pc.MentionsCount != nc.MentionsCount || !pc.LastActivity.Equal(nc.LastActivity)
}
