// Package store holds the chat view model of a single user: channels, users,
// per-channel message lists and the current channel/user selectors.
//
// Every applied mutation replaces the whole ChatState with a new value that
// shares all untouched substructures with the previous one, so observers can
// detect changes by comparing slices and pointers.
package store

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"workhub/server/chat/domain"
)

// Listener receives the state before and after an applied mutation. Listeners
// run synchronously on the mutating goroutine. They may call State and
// Subscribe but must not call back into the store's mutation methods.
type Listener func(prev, next *domain.ChatState)

type subscription struct {
	id uint64
	fn Listener
}

// ChatStore lock order: mu (writers) before notifyMu (listener delivery).
// subsMu guards the listener list only and is never held while calling out.
type ChatStore struct {
	mu       sync.Mutex
	notifyMu sync.Mutex
	state    atomic.Pointer[domain.ChatState]

	subsMu sync.Mutex
	subs   []subscription
	nextID uint64
}

// New creates a store. A nil initial state starts from an empty ChatState.
// Initial messages are normalized the same way AddMessage does.
func New(initial *domain.ChatState) *ChatStore {
	if initial == nil {
		initial = domain.NewChatState()
	}
	messages := make(map[string][]domain.Message, len(initial.Messages))
	for channelID, list := range initial.Messages {
		out := make([]domain.Message, 0, len(list))
		for _, m := range list {
			out = append(out, normalizeMessage(m))
		}
		messages[channelID] = out
	}
	initial.Messages = messages
	s := &ChatStore{}
	s.state.Store(initial)
	return s
}

// State returns the current snapshot. Callers must treat it as read-only.
func (s *ChatStore) State() *domain.ChatState {
	return s.state.Load()
}

// Subscribe registers l and returns a function that removes it.
func (s *ChatStore) Subscribe(l Listener) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.nextID++
	id := s.nextID
	subs := slices.Clip(s.subs)
	s.subs = append(subs, subscription{id: id, fn: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			s.subs = slices.DeleteFunc(slices.Clone(s.subs), func(sub subscription) bool { return sub.id == id })
		})
	}
}

func (s *ChatStore) listeners() []subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return s.subs
}

// commit runs fn against the current state under the write lock. fn returns
// nil to signal a no-op. The new state is published only once the previous
// mutation's listeners have returned, so notifications follow mutation order
// and a listener reading State sees the snapshot it was handed.
func (s *ChatStore) commit(fn func(cur *domain.ChatState) *domain.ChatState) bool {
	s.mu.Lock()
	prev := s.state.Load()
	next := fn(prev)
	if next == nil {
		s.mu.Unlock()
		return false
	}

	s.notifyMu.Lock()
	s.state.Store(next)
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, sub := range s.listeners() {
		sub.fn(prev, next)
	}
	return true
}

// SetCurrentChannel replaces the current channel selector. The id is not
// checked against the known channels.
func (s *ChatStore) SetCurrentChannel(channelID string) {
	s.commit(func(cur *domain.ChatState) *domain.ChatState {
		next := shallowCopy(cur)
		id := channelID
		next.CurrentChannel = &id
		return next
	})
}

// AddMessage appends msg to its channel and bumps that channel's activity,
// unread and mention counters in the same step. Message ids are not
// deduplicated.
func (s *ChatStore) AddMessage(msg domain.Message) {
	msg = normalizeMessage(msg)
	s.commit(func(cur *domain.ChatState) *domain.ChatState {
		next := shallowCopy(cur)
		next.Messages = maps.Clone(cur.Messages)
		next.Messages[msg.ChannelID] = append(slices.Clip(cur.Messages[msg.ChannelID]), msg)

		mentioned := strings.Contains(msg.Content, "@")
		if channels, ok := updateChannel(cur.Channels, msg.ChannelID, func(ch *domain.Channel) {
			ch.LastActivity = msg.Timestamp
			ch.UnreadCount++
			if mentioned {
				ch.MentionsCount++
			}
		}); ok {
			next.Channels = channels
		}
		return next
	})
}

// AddReaction toggles userID's emoji reaction on a message. It reports false
// and leaves the state untouched when the message is not in the channel.
func (s *ChatStore) AddReaction(messageID, channelID, emoji, userID string) bool {
	return s.commit(func(cur *domain.ChatState) *domain.ChatState {
		list := cur.Messages[channelID]
		idx := slices.IndexFunc(list, func(m domain.Message) bool { return m.ID == messageID })
		if idx < 0 {
			return nil
		}

		updated := list[idx]
		updated.Reactions = toggleReaction(updated.Reactions, emoji, userID)

		nextList := slices.Clone(list)
		nextList[idx] = updated

		next := shallowCopy(cur)
		next.Messages = maps.Clone(cur.Messages)
		next.Messages[channelID] = nextList
		return next
	})
}

// SetUserStatus updates one user's presence. Unknown users are ignored.
func (s *ChatStore) SetUserStatus(userID string, status domain.UserStatus) bool {
	return s.commit(func(cur *domain.ChatState) *domain.ChatState {
		idx := slices.IndexFunc(cur.Users, func(u domain.User) bool { return u.ID == userID })
		if idx < 0 {
			return nil
		}
		users := slices.Clone(cur.Users)
		users[idx].Status = status

		next := shallowCopy(cur)
		next.Users = users
		if cur.CurrentUser != nil && cur.CurrentUser.ID == userID {
			me := *cur.CurrentUser
			me.Status = status
			next.CurrentUser = &me
		}
		return next
	})
}

// MarkChannelAsRead zeroes the unread and mention counters of a channel.
func (s *ChatStore) MarkChannelAsRead(channelID string) bool {
	return s.commit(func(cur *domain.ChatState) *domain.ChatState {
		channels, ok := updateChannel(cur.Channels, channelID, func(ch *domain.Channel) {
			ch.UnreadCount = 0
			ch.MentionsCount = 0
		})
		if !ok {
			return nil
		}
		next := shallowCopy(cur)
		next.Channels = channels
		return next
	})
}

// SetCurrentUser assigns the signed-in user supplied by the identity provider.
func (s *ChatStore) SetCurrentUser(user *domain.User) {
	s.commit(func(cur *domain.ChatState) *domain.ChatState {
		next := shallowCopy(cur)
		if user == nil {
			next.CurrentUser = nil
			return next
		}
		me := *user
		next.CurrentUser = &me
		return next
	})
}

// UpsertChannel replaces the channel with the same id or appends it.
func (s *ChatStore) UpsertChannel(channel domain.Channel) {
	channel.UnreadCount = max(channel.UnreadCount, 0)
	channel.MentionsCount = max(channel.MentionsCount, 0)
	s.commit(func(cur *domain.ChatState) *domain.ChatState {
		next := shallowCopy(cur)
		channels, ok := updateChannel(cur.Channels, channel.ID, func(ch *domain.Channel) { *ch = channel })
		if !ok {
			channels = append(slices.Clip(cur.Channels), channel)
		}
		next.Channels = channels
		return next
	})
}

// UpsertUser replaces the user with the same id or appends it.
func (s *ChatStore) UpsertUser(user domain.User) {
	s.commit(func(cur *domain.ChatState) *domain.ChatState {
		next := shallowCopy(cur)
		idx := slices.IndexFunc(cur.Users, func(u domain.User) bool { return u.ID == user.ID })
		if idx < 0 {
			next.Users = append(slices.Clip(cur.Users), user)
		} else {
			users := slices.Clone(cur.Users)
			users[idx] = user
			next.Users = users
		}
		if cur.CurrentUser != nil && cur.CurrentUser.ID == user.ID {
			me := user
			next.CurrentUser = &me
		}
		return next
	})
}

// LoadMessages replaces a channel's history without touching its counters.
// Used when hydrating a store from persistence.
func (s *ChatStore) LoadMessages(channelID string, messages []domain.Message) {
	list := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		list = append(list, normalizeMessage(m))
	}
	s.commit(func(cur *domain.ChatState) *domain.ChatState {
		next := shallowCopy(cur)
		next.Messages = maps.Clone(cur.Messages)
		next.Messages[channelID] = list
		return next
	})
}

func (s *ChatStore) SetLoading(loading bool) {
	s.commit(func(cur *domain.ChatState) *domain.ChatState {
		if cur.IsLoading == loading {
			return nil
		}
		next := shallowCopy(cur)
		next.IsLoading = loading
		return next
	})
}

// SetError records a failure reported by an external fetch. An empty message
// clears it.
func (s *ChatStore) SetError(message string) {
	s.commit(func(cur *domain.ChatState) *domain.ChatState {
		next := shallowCopy(cur)
		if message == "" {
			next.Error = nil
			return next
		}
		next.Error = &message
		return next
	})
}

func shallowCopy(cur *domain.ChatState) *domain.ChatState {
	next := *cur
	return &next
}

// updateChannel returns a copy of channels with fn applied to the matching
// entry, or the original slice and false when there is none.
func updateChannel(channels []domain.Channel, channelID string, fn func(ch *domain.Channel)) ([]domain.Channel, bool) {
	idx := slices.IndexFunc(channels, func(ch domain.Channel) bool { return ch.ID == channelID })
	if idx < 0 {
		return channels, false
	}
	out := slices.Clone(channels)
	fn(&out[idx])
	out[idx].UnreadCount = max(out[idx].UnreadCount, 0)
	out[idx].MentionsCount = max(out[idx].MentionsCount, 0)
	return out, true
}

func toggleReaction(reactions []domain.Reaction, emoji, userID string) []domain.Reaction {
	out := make([]domain.Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		if r.Emoji != emoji {
			out = append(out, r)
			continue
		}
		found = true
		users := make([]string, 0, len(r.Users)+1)
		removed := false
		for _, u := range r.Users {
			if u == userID {
				removed = true
				continue
			}
			users = append(users, u)
		}
		if !removed {
			users = append(users, userID)
		}
		if len(users) == 0 {
			continue
		}
		out = append(out, domain.Reaction{Emoji: emoji, Count: len(users), Users: users})
	}
	if !found {
		out = append(out, domain.Reaction{Emoji: emoji, Count: 1, Users: []string{userID}})
	}
	return out
}

// normalizeMessage detaches msg from caller-owned slices and restores the
// reaction invariants: one entry per emoji, each user at most once per entry,
// count equal to the number of users and no empty entry. First-seen order of
// emojis and users is kept.
func normalizeMessage(msg domain.Message) domain.Message {
	reactions := make([]domain.Reaction, 0, len(msg.Reactions))
	for _, r := range msg.Reactions {
		idx := slices.IndexFunc(reactions, func(e domain.Reaction) bool { return e.Emoji == r.Emoji })
		if idx < 0 {
			reactions = append(reactions, domain.Reaction{Emoji: r.Emoji, Users: []string{}})
			idx = len(reactions) - 1
		}
		for _, u := range r.Users {
			if !slices.Contains(reactions[idx].Users, u) {
				reactions[idx].Users = append(reactions[idx].Users, u)
			}
		}
	}
	reactions = slices.DeleteFunc(reactions, func(r domain.Reaction) bool { return len(r.Users) == 0 })
	for i := range reactions {
		reactions[i].Count = len(reactions[i].Users)
	}
	msg.Reactions = reactions
	if msg.Attachments != nil {
		msg.Attachments = slices.Clone(msg.Attachments)
	}
	if msg.Mentions != nil {
		msg.Mentions = slices.Clone(msg.Mentions)
	}
	return msg
}
