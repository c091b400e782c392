package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"workhub/server/chat/domain"
)

// MemoryRepository keeps everything in process. It backs the server when
// Postgres is disabled and is used by the service tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	users    []domain.User
	channels []domain.Channel
	messages map[string][]domain.Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{messages: map[string][]domain.Message{}}
}

func (r *MemoryRepository) CreateUser(_ context.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.ID == u.ID || strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email %s: %w", u.Email, domain.ErrConflict)
		}
	}
	u.Skills = slices.Clone(u.Skills)
	r.users = append(r.users, u)
	return nil
}

func (r *MemoryRepository) GetUserByID(_ context.Context, userID string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *MemoryRepository) ListUsers(context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.users), nil
}

func (r *MemoryRepository) UpdateProfile(_ context.Context, u domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.IndexFunc(r.users, func(existing domain.User) bool { return existing.ID == u.ID })
	if idx < 0 {
		return domain.ErrNotFound
	}
	cur := r.users[idx]
	cur.Name, cur.Title, cur.Department, cur.Location = u.Name, u.Title, u.Department, u.Location
	cur.Bio, cur.Skills, cur.Avatar, cur.Timezone = u.Bio, slices.Clone(u.Skills), u.Avatar, u.Timezone
	cur.GithubUsername, cur.LinkedinURL = u.GithubUsername, u.LinkedinURL
	r.users[idx] = cur
	return nil
}

func (r *MemoryRepository) UpdateUserStatus(_ context.Context, userID string, status domain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := slices.IndexFunc(r.users, func(u domain.User) bool { return u.ID == userID })
	if idx < 0 {
		return domain.ErrNotFound
	}
	r.users[idx].Status = status
	return nil
}

func (r *MemoryRepository) CreateChannel(_ context.Context, ch domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.ContainsFunc(r.channels, func(c domain.Channel) bool { return c.ID == ch.ID }) {
		return fmt.Errorf("channel %s: %w", ch.ID, domain.ErrConflict)
	}
	ch.Members = slices.Clone(ch.Members)
	r.channels = append(r.channels, ch)
	return nil
}

func (r *MemoryRepository) ListChannels(context.Context) ([]domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.channels), nil
}

func (r *MemoryRepository) CreateMessage(_ context.Context, m domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.Reactions = []domain.Reaction{}
	r.messages[m.ChannelID] = append(r.messages[m.ChannelID], m)
	if idx := slices.IndexFunc(r.channels, func(c domain.Channel) bool { return c.ID == m.ChannelID }); idx >= 0 {
		r.channels[idx].LastActivity = m.Timestamp
	}
	return nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, channelID string, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.messages[channelID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]domain.Message, len(list))
	for i, m := range list {
		m.Reactions = cloneReactions(m.Reactions)
		out[i] = m
	}
	return out, nil
}

func (r *MemoryRepository) ToggleReaction(_ context.Context, messageID, emoji, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for channelID, list := range r.messages {
		idx := slices.IndexFunc(list, func(m domain.Message) bool { return m.ID == messageID })
		if idx < 0 {
			continue
		}
		list[idx].Reactions = toggleUser(list[idx].Reactions, emoji, userID)
		r.messages[channelID] = list
		return nil
	}
	return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
}

func toggleUser(reactions []domain.Reaction, emoji, userID string) []domain.Reaction {
	out := cloneReactions(reactions)
	for i := range out {
		if out[i].Emoji != emoji {
			continue
		}
		if j := slices.Index(out[i].Users, userID); j >= 0 {
			out[i].Users = slices.Delete(out[i].Users, j, j+1)
		} else {
			out[i].Users = append(out[i].Users, userID)
		}
		out[i].Count = len(out[i].Users)
		if out[i].Count == 0 {
			out = slices.Delete(out, i, i+1)
		}
		return out
	}
	return appendReactionUser(out, emoji, userID)
}

func cloneReactions(reactions []domain.Reaction) []domain.Reaction {
	out := make([]domain.Reaction, len(reactions))
	for i, r := range reactions {
		out[i] = domain.Reaction{Emoji: r.Emoji, Count: r.Count, Users: slices.Clone(r.Users)}
	}
	return out
}
