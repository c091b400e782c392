package service

import (
	"context"
	"fmt"
	"sync"

	"workhub/server/chat/domain"
	"workhub/server/chat/store"
	commonlog "workhub/server/common/log"
	"workhub/server/common/metrics"
)

const defaultHistoryLimit = 200

// Workspace owns one ChatStore per signed-in user. Stores are hydrated from the
// repository on first use. All fan-out operations hold the workspace lock so
// every store receives changes in the same order.
type Workspace struct {
	repo         Repository
	historyLimit int

	mu     sync.Mutex
	stores map[string]*store.ChatStore
}

func NewWorkspace(repo Repository, historyLimit int) *Workspace {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Workspace{repo: repo, historyLimit: historyLimit, stores: map[string]*store.ChatStore{}}
}

// StoreFor returns userID's store, creating and hydrating it when needed.
func (w *Workspace) StoreFor(ctx context.Context, userID string) (*store.ChatStore, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.stores[userID]; ok {
		return s, nil
	}

	s, err := w.hydrate(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.Subscribe(func(prev, next *domain.ChatState) { metrics.StoreNotifications.Inc() })
	w.stores[userID] = s
	metrics.ActiveStores.Set(float64(len(w.stores)))
	commonlog.Infof("event=workspace_store action=hydrate status=ok user_id=%s channels=%d", userID, len(s.State().Channels))
	return s, nil
}

func (w *Workspace) hydrate(ctx context.Context, userID string) (*store.ChatStore, error) {
	me, err := w.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	users, err := w.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	channels, err := w.repo.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}

	st := domain.NewChatState()
	st.CurrentUser = &me
	st.Users = users
	for _, ch := range channels {
		if !canSee(ch, userID) {
			continue
		}
		history, err := w.repo.ListMessages(ctx, ch.ID, w.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("load history of %s: %w", ch.ID, err)
		}
		st.Channels = append(st.Channels, ch)
		st.Messages[ch.ID] = history
	}
	return store.New(st), nil
}

// Lookup returns an existing store without hydrating one.
func (w *Workspace) Lookup(userID string) (*store.ChatStore, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.stores[userID]
	return s, ok
}

func (w *Workspace) Evict(userID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.stores, userID)
	metrics.ActiveStores.Set(float64(len(w.stores)))
}

// Commit runs persist and, when it succeeds, apply as one step under the
// workspace lock. No store can be hydrated between the repository write and
// the fan-out, so a fresh store never receives a change twice. apply must use
// the unlocked fan-out helpers.
func (w *Workspace) Commit(persist func() error, apply func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := persist(); err != nil {
		return err
	}
	apply()
	return nil
}

// AddMessage appends msg to every store that can see its channel.
func (w *Workspace) AddMessage(msg domain.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addMessage(msg)
}

// addMessage skips stores that already hold msg.ID: a store hydrated after a
// remote instance persisted the message has it in its history.
func (w *Workspace) addMessage(msg domain.Message) {
	for _, s := range w.stores {
		st := s.State()
		if _, ok := store.ChannelByID(st, msg.ChannelID); !ok {
			continue
		}
		if _, dup := store.MessageByID(st, msg.ChannelID, msg.ID); dup {
			continue
		}
		s.AddMessage(msg)
	}
}

// ToggleReaction applies the toggle to every store holding the message and
// reports whether any store did.
func (w *Workspace) ToggleReaction(channelID, messageID, emoji, userID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.toggleReaction(channelID, messageID, emoji, userID)
}

func (w *Workspace) toggleReaction(channelID, messageID, emoji, userID string) bool {
	applied := false
	for _, s := range w.stores {
		if s.AddReaction(messageID, channelID, emoji, userID) {
			applied = true
		}
	}
	return applied
}

func (w *Workspace) SetUserStatus(userID string, status domain.UserStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setUserStatus(userID, status)
}

func (w *Workspace) setUserStatus(userID string, status domain.UserStatus) {
	for _, s := range w.stores {
		s.SetUserStatus(userID, status)
	}
}

func (w *Workspace) UpsertUser(u domain.User) {
	w.each(func(_ string, s *store.ChatStore) {
		s.UpsertUser(u)
	})
}

// UpsertChannel adds or refreshes ch in the stores of users allowed to see it.
func (w *Workspace) UpsertChannel(ch domain.Channel) {
	w.each(func(userID string, s *store.ChatStore) {
		if !canSee(ch, userID) {
			return
		}
		if existing, ok := store.ChannelByID(s.State(), ch.ID); ok {
			ch.UnreadCount = existing.UnreadCount
			ch.MentionsCount = existing.MentionsCount
		} else {
			ch.UnreadCount, ch.MentionsCount = 0, 0
		}
		s.UpsertChannel(ch)
	})
}

// MarkRead clears a channel's counters in userID's store if it is loaded.
func (w *Workspace) MarkRead(userID, channelID string) bool {
	s, ok := w.Lookup(userID)
	if !ok {
		return false
	}
	return s.MarkChannelAsRead(channelID)
}

func (w *Workspace) each(fn func(userID string, s *store.ChatStore)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for userID, s := range w.stores {
		fn(userID, s)
	}
}

func canSee(ch domain.Channel, userID string) bool {
	return !ch.IsPrivate || ch.HasMember(userID)
}
