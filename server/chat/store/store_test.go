package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/server/chat/domain"
)

func newTestStore(t *testing.T) *ChatStore {
	t.Helper()
	s := New(nil)
	s.UpsertChannel(domain.Channel{ID: "general", Name: "general", Members: []string{"u1", "u2"}})
	s.UpsertChannel(domain.Channel{ID: "random", Name: "random"})
	s.UpsertUser(domain.User{ID: "u1", Name: "Ann", Status: domain.UserStatusOnline})
	s.UpsertUser(domain.User{ID: "u2", Name: "Bob", Status: domain.UserStatusOffline})
	return s
}

func msg(id, channelID, content string) domain.Message {
	return domain.Message{
		ID:        id,
		Content:   content,
		UserID:    "u1",
		ChannelID: channelID,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func mustChannel(t *testing.T, s *ChatStore, id string) domain.Channel {
	t.Helper()
	ch, ok := ChannelByID(s.State(), id)
	require.True(t, ok, "channel %s should exist", id)
	return ch
}

func assertReactionInvariant(t *testing.T, st *domain.ChatState) {
	t.Helper()
	for channelID, list := range st.Messages {
		for _, m := range list {
			seen := map[string]bool{}
			for _, r := range m.Reactions {
				assert.Equal(t, len(r.Users), r.Count, "channel %s message %s emoji %s", channelID, m.ID, r.Emoji)
				assert.Positive(t, r.Count)
				assert.False(t, seen[r.Emoji], "duplicate emoji entry %s", r.Emoji)
				seen[r.Emoji] = true
			}
		}
	}
}

// --- AddMessage ---

func TestAddMessage_AppendsOnceAtEnd(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("m1", "general", "hello"))
	s.AddMessage(msg("m2", "general", "world"))

	list := s.State().Messages["general"]
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].ID)
	assert.Equal(t, "m2", list[1].ID)
}

func TestAddMessage_CreatesListForUnknownChannel(t *testing.T) {
	s := newTestStore(t)
	before := s.State().Channels

	s.AddMessage(msg("m1", "nowhere", "hi"))

	st := s.State()
	require.Len(t, st.Messages["nowhere"], 1)
	assert.Equal(t, before, st.Channels)
}

func TestAddMessage_UpdatesChannelCounters(t *testing.T) {
	s := newTestStore(t)
	m := msg("m1", "general", "hello")
	m.Timestamp = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	s.AddMessage(m)

	ch := mustChannel(t, s, "general")
	assert.Equal(t, 1, ch.UnreadCount)
	assert.Equal(t, 0, ch.MentionsCount)
	assert.True(t, ch.LastActivity.Equal(m.Timestamp))

	other := mustChannel(t, s, "random")
	assert.Equal(t, 0, other.UnreadCount)
}

func TestAddMessage_MentionHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{name: "mention", content: "hi @bob", want: 1},
		{name: "no mention", content: "hi bob", want: 0},
		{name: "bare at sign", content: "meet @ noon", want: 1},
		{name: "empty", content: "", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			s.AddMessage(msg("m1", "general", tt.content))
			assert.Equal(t, tt.want, mustChannel(t, s, "general").MentionsCount)
		})
	}
}

func TestAddMessage_NoDeduplication(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("m1", "general", "a"))
	s.AddMessage(msg("m1", "general", "b"))

	assert.Len(t, s.State().Messages["general"], 2)
	assert.Equal(t, 2, mustChannel(t, s, "general").UnreadCount)
}

func TestAddMessage_DetachesCallerSlices(t *testing.T) {
	s := newTestStore(t)
	m := msg("m1", "general", "hi")
	m.Reactions = []domain.Reaction{{Emoji: "👍", Count: 1, Users: []string{"u2"}}}
	s.AddMessage(m)

	m.Reactions[0].Users[0] = "mutated"

	stored := s.State().Messages["general"][0]
	assert.Equal(t, []string{"u2"}, stored.Reactions[0].Users)
}

func TestAddMessage_NormalizesReactions(t *testing.T) {
	s := newTestStore(t)
	m := msg("m1", "general", "hi")
	m.Reactions = []domain.Reaction{
		{Emoji: "👍", Count: 7, Users: []string{"u1", "u2"}},
		{Emoji: "🎉", Count: 3},
	}
	s.AddMessage(m)

	stored := s.State().Messages["general"][0]
	require.Len(t, stored.Reactions, 1)
	assert.Equal(t, 2, stored.Reactions[0].Count)
	assertReactionInvariant(t, s.State())
}

func TestAddMessage_MergesDuplicateReactionEntries(t *testing.T) {
	s := newTestStore(t)
	m := msg("m1", "general", "hi")
	m.Reactions = []domain.Reaction{
		{Emoji: "👍", Count: 2, Users: []string{"u1", "u1"}},
		{Emoji: "🎉", Count: 1, Users: []string{"u3"}},
		{Emoji: "👍", Count: 1, Users: []string{"u2"}},
	}
	s.AddMessage(m)

	stored := s.State().Messages["general"][0]
	assert.Equal(t, []domain.Reaction{
		{Emoji: "👍", Count: 2, Users: []string{"u1", "u2"}},
		{Emoji: "🎉", Count: 1, Users: []string{"u3"}},
	}, stored.Reactions)
	assertReactionInvariant(t, s.State())

	// toggling afterwards removes the user instead of leaving a duplicate behind
	s.AddReaction("m1", "general", "👍", "u1")
	stored = s.State().Messages["general"][0]
	assert.Equal(t, []string{"u2"}, stored.Reactions[0].Users)
}

func TestLoadMessages_NormalizesReactions(t *testing.T) {
	s := newTestStore(t)
	m := msg("m1", "general", "hi")
	m.Reactions = []domain.Reaction{{Emoji: "🎉", Users: []string{"u2", "u2"}}, {Emoji: "🎉", Users: []string{"u1"}}}
	s.LoadMessages("general", []domain.Message{m})

	stored := s.State().Messages["general"][0]
	require.Len(t, stored.Reactions, 1)
	assert.Equal(t, []string{"u2", "u1"}, stored.Reactions[0].Users)
	assertReactionInvariant(t, s.State())
}

func TestNew_NormalizesInitialMessages(t *testing.T) {
	st := domain.NewChatState()
	m := msg("m1", "general", "hi")
	m.Reactions = []domain.Reaction{{Emoji: "👍", Count: 5, Users: []string{"u1", "u1", "u2"}}}
	st.Messages["general"] = []domain.Message{m}

	s := New(st)
	stored := s.State().Messages["general"][0]
	require.Len(t, stored.Reactions, 1)
	assert.Equal(t, []string{"u1", "u2"}, stored.Reactions[0].Users)
	assertReactionInvariant(t, s.State())
}

func TestAddMessage_LeavesOtherChannelsShared(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("r1", "random", "x"))
	prev := s.State()

	s.AddMessage(msg("g1", "general", "y"))
	next := s.State()

	assert.Same(t, &prev.Messages["random"][0], &next.Messages["random"][0])
	assert.Len(t, prev.Messages["general"], 0)
}

// --- AddReaction ---

func TestAddReaction_Scenario(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("m1", "general", "launch"))

	reactions := func() []domain.Reaction {
		m, ok := MessageByID(s.State(), "general", "m1")
		require.True(t, ok)
		return m.Reactions
	}

	require.True(t, s.AddReaction("m1", "general", "🚀", "u1"))
	assert.Equal(t, []domain.Reaction{{Emoji: "🚀", Count: 1, Users: []string{"u1"}}}, reactions())

	require.True(t, s.AddReaction("m1", "general", "🚀", "u2"))
	assert.Equal(t, []domain.Reaction{{Emoji: "🚀", Count: 2, Users: []string{"u1", "u2"}}}, reactions())

	require.True(t, s.AddReaction("m1", "general", "🚀", "u1"))
	assert.Equal(t, []domain.Reaction{{Emoji: "🚀", Count: 1, Users: []string{"u2"}}}, reactions())

	require.True(t, s.AddReaction("m1", "general", "🚀", "u2"))
	assert.Empty(t, reactions())
	assertReactionInvariant(t, s.State())
}

func TestAddReaction_ToggleTwiceRestores(t *testing.T) {
	s := newTestStore(t)
	m := msg("m1", "general", "hi")
	m.Reactions = []domain.Reaction{{Emoji: "🎉", Count: 1, Users: []string{"u2"}}}
	s.AddMessage(m)
	before, _ := MessageByID(s.State(), "general", "m1")

	s.AddReaction("m1", "general", "👍", "u1")
	s.AddReaction("m1", "general", "👍", "u1")

	after, _ := MessageByID(s.State(), "general", "m1")
	assert.Equal(t, before.Reactions, after.Reactions)
}

func TestAddReaction_SeparateEmojiEntries(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("m1", "general", "hi"))

	s.AddReaction("m1", "general", "👍", "u1")
	s.AddReaction("m1", "general", "🎉", "u1")
	s.AddReaction("m1", "general", "👍", "u2")

	m, _ := MessageByID(s.State(), "general", "m1")
	require.Len(t, m.Reactions, 2)
	assert.Equal(t, "👍", m.Reactions[0].Emoji)
	assert.Equal(t, 2, m.Reactions[0].Count)
	assert.Equal(t, "🎉", m.Reactions[1].Emoji)
	assertReactionInvariant(t, s.State())
}

func TestAddReaction_MissingMessageIsNoop(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("m1", "general", "hi"))
	before := s.State()

	notified := false
	unsubscribe := s.Subscribe(func(prev, next *domain.ChatState) { notified = true })
	defer unsubscribe()

	assert.False(t, s.AddReaction("missing", "general", "👍", "u1"))
	assert.False(t, s.AddReaction("m1", "random", "👍", "u1"))
	assert.False(t, s.AddReaction("m1", "nowhere", "👍", "u1"))

	assert.Same(t, before, s.State())
	assert.False(t, notified)
}

func TestAddReaction_ReplacesOnlyAffectedMessage(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("m1", "general", "a"))
	s.AddMessage(msg("m2", "general", "b"))
	s.AddMessage(msg("r1", "random", "c"))
	prev := s.State()

	s.AddReaction("m2", "general", "👍", "u1")
	next := s.State()

	assert.Same(t, &prev.Messages["random"][0], &next.Messages["random"][0])
	assert.Equal(t, prev.Messages["general"][0], next.Messages["general"][0])
	assert.Empty(t, prev.Messages["general"][1].Reactions)
	assert.Len(t, next.Messages["general"][1].Reactions, 1)
	assert.Equal(t, prev.Channels, next.Channels)
}

// --- SetUserStatus ---

func TestSetUserStatus(t *testing.T) {
	s := newTestStore(t)
	s.SetCurrentUser(&domain.User{ID: "u1", Name: "Ann", Status: domain.UserStatusOnline})

	require.True(t, s.SetUserStatus("u1", domain.UserStatusInMeeting))

	u1, _ := UserByID(s.State(), "u1")
	u2, _ := UserByID(s.State(), "u2")
	assert.Equal(t, domain.UserStatusInMeeting, u1.Status)
	assert.Equal(t, domain.UserStatusOffline, u2.Status)
	assert.Equal(t, domain.UserStatusInMeeting, s.State().CurrentUser.Status)
}

func TestSetUserStatus_UnknownUserIsNoop(t *testing.T) {
	s := newTestStore(t)
	before := s.State()

	assert.False(t, s.SetUserStatus("ghost", domain.UserStatusAway))
	assert.Same(t, before, s.State())
}

// --- MarkChannelAsRead ---

func TestMarkChannelAsRead_Scenario(t *testing.T) {
	s := newTestStore(t)

	ch := mustChannel(t, s, "general")
	assert.Equal(t, 0, ch.UnreadCount)
	assert.Equal(t, 0, ch.MentionsCount)

	s.AddMessage(msg("m1", "general", "hello"))
	ch = mustChannel(t, s, "general")
	assert.Equal(t, 1, ch.UnreadCount)
	assert.Equal(t, 0, ch.MentionsCount)

	s.AddMessage(msg("m2", "general", "hi @u2"))
	ch = mustChannel(t, s, "general")
	assert.Equal(t, 2, ch.UnreadCount)
	assert.Equal(t, 1, ch.MentionsCount)

	require.True(t, s.MarkChannelAsRead("general"))
	ch = mustChannel(t, s, "general")
	assert.Equal(t, 0, ch.UnreadCount)
	assert.Equal(t, 0, ch.MentionsCount)
}

func TestMarkChannelAsRead_Idempotent(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("m1", "general", "@all"))
	s.AddMessage(msg("r1", "random", "x"))

	s.MarkChannelAsRead("general")
	once := s.State()
	s.MarkChannelAsRead("general")
	twice := s.State()

	assert.Equal(t, once.Channels, twice.Channels)
	assert.Equal(t, 1, mustChannel(t, s, "random").UnreadCount)
}

func TestMarkChannelAsRead_UnknownChannelIsNoop(t *testing.T) {
	s := newTestStore(t)
	before := s.State()
	assert.False(t, s.MarkChannelAsRead("nowhere"))
	assert.Same(t, before, s.State())
}

// --- SetCurrentChannel ---

func TestSetCurrentChannel_NoValidation(t *testing.T) {
	s := newTestStore(t)

	s.SetCurrentChannel("general")
	assert.True(t, IsActiveChannel(s.State(), "general"))

	s.SetCurrentChannel("does-not-exist")
	require.NotNil(t, s.State().CurrentChannel)
	assert.Equal(t, "does-not-exist", *s.State().CurrentChannel)
	assert.False(t, IsActiveChannel(s.State(), "general"))
}

// --- Observers ---

func TestSubscribe_NotifiedAfterEachMutation(t *testing.T) {
	s := newTestStore(t)

	var seen []*domain.ChatState
	unsubscribe := s.Subscribe(func(prev, next *domain.ChatState) {
		assert.NotSame(t, prev, next)
		seen = append(seen, next)
	})

	s.SetCurrentChannel("general")
	s.AddMessage(msg("m1", "general", "hi @u2"))
	s.AddReaction("m1", "general", "👍", "u2")
	s.SetUserStatus("u2", domain.UserStatusAway)
	s.MarkChannelAsRead("general")

	require.Len(t, seen, 5)
	addState := seen[1]
	ch, _ := ChannelByID(addState, "general")
	assert.Len(t, addState.Messages["general"], 1)
	assert.Equal(t, 1, ch.UnreadCount)
	assert.Equal(t, 1, ch.MentionsCount)

	unsubscribe()
	unsubscribe()
	s.SetCurrentChannel("random")
	assert.Len(t, seen, 5)
}

func TestSubscribe_PublishedSnapshotsAreImmutable(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("m1", "general", "hi"))
	snapshot := s.State()

	s.AddReaction("m1", "general", "👍", "u1")
	s.AddMessage(msg("m2", "general", "again"))
	s.MarkChannelAsRead("general")

	assert.Len(t, snapshot.Messages["general"], 1)
	assert.Empty(t, snapshot.Messages["general"][0].Reactions)
	ch, _ := ChannelByID(snapshot, "general")
	assert.Equal(t, 1, ch.UnreadCount)
}

func TestConcurrentReactions_NoLostUpdates(t *testing.T) {
	s := newTestStore(t)
	s.AddMessage(msg("m1", "general", "hi"))

	const users = 50
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddReaction("m1", "general", "👍", string(rune('A'+i)))
		}(i)
	}
	wg.Wait()

	m, _ := MessageByID(s.State(), "general", "m1")
	require.Len(t, m.Reactions, 1)
	assert.Equal(t, users, m.Reactions[0].Count)
	assertReactionInvariant(t, s.State())
}

func TestConcurrentMutations_NotificationsInOrder(t *testing.T) {
	s := newTestStore(t)

	var (
		mu   sync.Mutex
		lens []int
	)
	s.Subscribe(func(prev, next *domain.ChatState) {
		mu.Lock()
		lens = append(lens, len(next.Messages["general"]))
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddMessage(msg(string(rune('a'+i)), "general", "x"))
		}(i)
	}
	wg.Wait()

	require.Len(t, lens, 40)
	for i, n := range lens {
		assert.Equal(t, i+1, n)
	}
}

func TestListenerMayReadStateDuringConcurrentMutation(t *testing.T) {
	s := newTestStore(t)

	entered := make(chan struct{})
	var once sync.Once
	s.Subscribe(func(prev, next *domain.ChatState) {
		once.Do(func() {
			close(entered)
			time.Sleep(20 * time.Millisecond)
		})
		assert.Same(t, next, s.State())
		unsubscribe := s.Subscribe(func(prev, next *domain.ChatState) {})
		unsubscribe()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.SetCurrentChannel("general")
	}()
	<-entered
	go s.SetCurrentChannel("random")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener reading State blocked a concurrent mutation")
	}
	require.Eventually(t, func() bool {
		st := s.State()
		return st.CurrentChannel != nil && *st.CurrentChannel == "random"
	}, 2*time.Second, 5*time.Millisecond)
}

// --- Seeding ---

func TestSetLoadingAndError(t *testing.T) {
	s := New(nil)
	s.SetLoading(true)
	assert.True(t, s.State().IsLoading)

	before := s.State()
	s.SetLoading(true)
	assert.Same(t, before, s.State())

	s.SetError("fetch failed")
	require.NotNil(t, s.State().Error)
	assert.Equal(t, "fetch failed", *s.State().Error)

	s.SetError("")
	assert.Nil(t, s.State().Error)
}

func TestLoadMessages_KeepsCounters(t *testing.T) {
	s := newTestStore(t)
	s.LoadMessages("general", []domain.Message{msg("h1", "general", "@old"), msg("h2", "general", "older")})

	assert.Len(t, s.State().Messages["general"], 2)
	assert.Equal(t, 0, mustChannel(t, s, "general").UnreadCount)
	assert.Equal(t, 0, mustChannel(t, s, "general").MentionsCount)
}

func TestUpsertChannel_ClampsCounters(t *testing.T) {
	s := New(nil)
	s.UpsertChannel(domain.Channel{ID: "c", UnreadCount: -3, MentionsCount: -1})
	ch := mustChannel(t, s, "c")
	assert.Equal(t, 0, ch.UnreadCount)
	assert.Equal(t, 0, ch.MentionsCount)

	s.UpsertChannel(domain.Channel{ID: "c", Name: "renamed", UnreadCount: 2})
	require.Len(t, s.State().Channels, 1)
	assert.Equal(t, "renamed", mustChannel(t, s, "c").Name)
}
