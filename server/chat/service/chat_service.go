package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workhub/server/chat/domain"
	"workhub/server/chat/store"
	commonlog "workhub/server/common/log"
	"workhub/server/common/metrics"
)

type ChatService struct {
	repo       Repository
	workspace  *Workspace
	publishers []EventPublisher
	origin     string
	now        func() time.Time
	newID      func() string
}

func NewChatService(repo Repository, workspace *Workspace, publishers ...EventPublisher) *ChatService {
	return &ChatService{
		repo:       repo,
		workspace:  workspace,
		publishers: publishers,
		origin:     uuid.NewString(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Origin identifies this process on the cross-instance relay.
func (s *ChatService) Origin() string {
	return s.origin
}

type SendMessageInput struct {
	Content     string              `json:"content"`
	Attachments []domain.Attachment `json:"attachments"`
}

type CreateChannelInput struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	IsPrivate   bool     `json:"is_private"`
	Members     []string `json:"members"`
}

func (s *ChatService) State(ctx context.Context, actorID string) (*domain.ChatState, error) {
	st, err := s.workspace.StoreFor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return st.State(), nil
}

func (s *ChatService) ChannelMessages(ctx context.Context, actorID, channelID string) ([]domain.Message, error) {
	st, _, err := s.visibleChannel(ctx, actorID, channelID)
	if err != nil {
		return nil, err
	}
	return st.State().Messages[channelID], nil
}

// visibleChannel resolves the actor's store and checks that channelID is a
// channel the actor may read.
func (s *ChatService) visibleChannel(ctx context.Context, actorID, channelID string) (*store.ChatStore, domain.Channel, error) {
	st, err := s.workspace.StoreFor(ctx, actorID)
	if err != nil {
		return nil, domain.Channel{}, err
	}
	ch, ok := store.ChannelByID(st.State(), channelID)
	if !ok {
		return nil, domain.Channel{}, fmt.Errorf("channel %s: %w", channelID, domain.ErrNotFound)
	}
	if !canSee(ch, actorID) {
		return nil, domain.Channel{}, fmt.Errorf("channel %s: %w", channelID, domain.ErrForbidden)
	}
	return st, ch, nil
}

func (s *ChatService) SendMessage(ctx context.Context, actorID, channelID string, in SendMessageInput) (domain.Message, error) {
	startedAt := time.Now()
	st, _, err := s.visibleChannel(ctx, actorID, channelID)
	if err != nil {
		return domain.Message{}, err
	}

	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Attachments) == 0 {
		return domain.Message{}, fmt.Errorf("message needs content or attachments: %w", domain.ErrInvalidInput)
	}
	attachments, err := s.normalizeAttachments(in.Attachments)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:          s.newID(),
		Content:     content,
		UserID:      actorID,
		ChannelID:   channelID,
		Timestamp:   s.now().UTC(),
		Reactions:   []domain.Reaction{},
		Attachments: attachments,
		Mentions:    ExtractMentions(content),
	}
	err = s.workspace.Commit(
		func() error { return s.repo.CreateMessage(ctx, msg) },
		func() { s.workspace.addMessage(msg) },
	)
	if err != nil {
		metrics.ObserveResult(metrics.MessagesSent, err)
		commonlog.Errorf("event=chat_message_persist action=create status=failed channel_id=%s user_id=%s latency_ms=%d error=%v", channelID, actorID, time.Since(startedAt).Milliseconds(), err)
		return domain.Message{}, fmt.Errorf("persist message: %w", err)
	}
	if store.IsActiveChannel(st.State(), channelID) {
		st.MarkChannelAsRead(channelID)
	}
	metrics.ObserveResult(metrics.MessagesSent, nil)
	commonlog.Infof("event=chat_message_persist action=create status=ok channel_id=%s user_id=%s message_id=%s latency_ms=%d", channelID, actorID, msg.ID, time.Since(startedAt).Milliseconds())

	s.publish(ctx, domain.Event{Type: domain.EventMessageCreated, ChannelID: channelID, UserID: actorID, Payload: msg})
	return msg, nil
}

func (s *ChatService) normalizeAttachments(in []domain.Attachment) ([]domain.Attachment, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		a.URL = strings.TrimSpace(a.URL)
		if a.URL == "" {
			return nil, fmt.Errorf("attachment url is required: %w", domain.ErrInvalidInput)
		}
		switch a.Kind {
		case domain.AttachmentImage, domain.AttachmentFile, domain.AttachmentLink:
		case "":
			a.Kind = domain.AttachmentFile
		default:
			return nil, fmt.Errorf("attachment type %q: %w", a.Kind, domain.ErrInvalidInput)
		}
		if a.ID == "" {
			a.ID = s.newID()
		}
		if a.Name == "" {
			a.Name = a.URL
		}
		out = append(out, a)
	}
	return out, nil
}

// ToggleReaction adds or removes actorID's emoji on a message and returns the
// message as the actor now sees it.
func (s *ChatService) ToggleReaction(ctx context.Context, actorID, channelID, messageID, emoji string) (domain.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return domain.Message{}, fmt.Errorf("emoji is required: %w", domain.ErrInvalidInput)
	}
	st, _, err := s.visibleChannel(ctx, actorID, channelID)
	if err != nil {
		return domain.Message{}, err
	}
	if _, ok := store.MessageByID(st.State(), channelID, messageID); !ok {
		return domain.Message{}, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}

	err = s.workspace.Commit(
		func() error { return s.repo.ToggleReaction(ctx, messageID, emoji, actorID) },
		func() { s.workspace.toggleReaction(channelID, messageID, emoji, actorID) },
	)
	if err != nil {
		metrics.ObserveResult(metrics.ReactionsToggled, err)
		return domain.Message{}, fmt.Errorf("persist reaction: %w", err)
	}
	metrics.ObserveResult(metrics.ReactionsToggled, nil)

	s.publish(ctx, domain.Event{
		Type:      domain.EventReactionToggled,
		ChannelID: channelID,
		UserID:    actorID,
		Payload:   domain.ReactionPayload{MessageID: messageID, ChannelID: channelID, Emoji: emoji, UserID: actorID},
	})

	updated, _ := store.MessageByID(st.State(), channelID, messageID)
	return updated, nil
}

// OpenChannel makes channelID the actor's current channel and marks it read,
// which is what a view does once per transition into a channel.
func (s *ChatService) OpenChannel(ctx context.Context, actorID, channelID string) ([]domain.Message, error) {
	st, _, err := s.visibleChannel(ctx, actorID, channelID)
	if err != nil {
		return nil, err
	}
	st.SetCurrentChannel(channelID)
	st.MarkChannelAsRead(channelID)
	s.publish(ctx, domain.Event{Type: domain.EventChannelRead, ChannelID: channelID, UserID: actorID})
	return store.CurrentChannelMessages(st.State()), nil
}

func (s *ChatService) MarkRead(ctx context.Context, actorID, channelID string) error {
	st, err := s.workspace.StoreFor(ctx, actorID)
	if err != nil {
		return err
	}
	if !st.MarkChannelAsRead(channelID) {
		return fmt.Errorf("channel %s: %w", channelID, domain.ErrNotFound)
	}
	s.publish(ctx, domain.Event{Type: domain.EventChannelRead, ChannelID: channelID, UserID: actorID})
	return nil
}

func (s *ChatService) SetStatus(ctx context.Context, actorID string, status domain.UserStatus) error {
	if !status.Valid() {
		return fmt.Errorf("status %q: %w", status, domain.ErrInvalidInput)
	}
	err := s.workspace.Commit(
		func() error { return s.repo.UpdateUserStatus(ctx, actorID, status) },
		func() { s.workspace.setUserStatus(actorID, status) },
	)
	if err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	commonlog.Infof("event=user_status action=update status=ok user_id=%s presence=%s", actorID, status)
	s.publish(ctx, domain.Event{Type: domain.EventUserStatus, UserID: actorID, Payload: domain.StatusPayload{UserID: actorID, Status: status}})
	return nil
}

func (s *ChatService) CreateChannel(ctx context.Context, actorID string, in CreateChannelInput) (domain.Channel, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Channel{}, fmt.Errorf("channel name is required: %w", domain.ErrInvalidInput)
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = s.newID()
	}
	members := dedupeAndTrim(append([]string{actorID}, in.Members...))

	now := s.now().UTC()
	ch := domain.Channel{
		ID:           id,
		Name:         name,
		Description:  in.Description,
		IsPrivate:    in.IsPrivate,
		Members:      members,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.repo.CreateChannel(ctx, ch); err != nil {
		return domain.Channel{}, fmt.Errorf("persist channel: %w", err)
	}
	s.workspace.UpsertChannel(ch)
	commonlog.Infof("event=chat_channel action=create status=ok channel_id=%s user_id=%s private=%t", ch.ID, actorID, ch.IsPrivate)
	s.publish(ctx, domain.Event{Type: domain.EventChannelCreated, ChannelID: ch.ID, UserID: actorID, Payload: ch})
	return ch, nil
}

// EnsureChannels creates the named public channels when they do not exist yet.
func (s *ChatService) EnsureChannels(ctx context.Context, names []string) error {
	existing, err := s.repo.ListChannels(ctx)
	if err != nil {
		return err
	}
	have := map[string]struct{}{}
	for _, ch := range existing {
		have[ch.ID] = struct{}{}
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := have[name]; ok {
			continue
		}
		now := s.now().UTC()
		ch := domain.Channel{ID: name, Name: name, Members: []string{}, CreatedAt: now, LastActivity: now}
		if err := s.repo.CreateChannel(ctx, ch); err != nil {
			return fmt.Errorf("seed channel %s: %w", name, err)
		}
		s.workspace.UpsertChannel(ch)
	}
	return nil
}

func (s *ChatService) publish(ctx context.Context, event domain.Event) {
	event.Origin = s.origin
	if event.At.IsZero() {
		event.At = s.now().UTC()
	}
	for _, p := range s.publishers {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			commonlog.Warnf("event=chat_event_publish action=%s status=failed channel_id=%s error=%v", event.Type, event.ChannelID, err)
		}
	}
}

// CanSeeAttachment reports whether url is attached, as file or preview, to a
// message in one of the actor's visible channels.
func (s *ChatService) CanSeeAttachment(ctx context.Context, actorID, url string) (bool, error) {
	st, err := s.workspace.StoreFor(ctx, actorID)
	if err != nil {
		return false, err
	}
	for _, list := range st.State().Messages {
		for _, m := range list {
			for _, a := range m.Attachments {
				if a.URL == url || (a.PreviewURL != nil && *a.PreviewURL == url) {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// ApplyRemote replays an event committed by another instance onto the local
// workspace. Payloads must already be decoded to their domain types.
func (s *ChatService) ApplyRemote(event domain.Event) error {
	if event.Origin == s.origin {
		return nil
	}
	switch event.Type {
	case domain.EventMessageCreated:
		msg, ok := event.Payload.(domain.Message)
		if !ok {
			return fmt.Errorf("%s payload %T: %w", event.Type, event.Payload, domain.ErrInvalidInput)
		}
		s.workspace.AddMessage(msg)
	case domain.EventReactionToggled:
		p, ok := event.Payload.(domain.ReactionPayload)
		if !ok {
			return fmt.Errorf("%s payload %T: %w", event.Type, event.Payload, domain.ErrInvalidInput)
		}
		s.workspace.ToggleReaction(p.ChannelID, p.MessageID, p.Emoji, p.UserID)
	case domain.EventUserStatus:
		p, ok := event.Payload.(domain.StatusPayload)
		if !ok {
			return fmt.Errorf("%s payload %T: %w", event.Type, event.Payload, domain.ErrInvalidInput)
		}
		s.workspace.SetUserStatus(p.UserID, p.Status)
	case domain.EventChannelCreated:
		ch, ok := event.Payload.(domain.Channel)
		if !ok {
			return fmt.Errorf("%s payload %T: %w", event.Type, event.Payload, domain.ErrInvalidInput)
		}
		s.workspace.UpsertChannel(ch)
	case domain.EventUserUpdated:
		u, ok := event.Payload.(domain.User)
		if !ok {
			return fmt.Errorf("%s payload %T: %w", event.Type, event.Payload, domain.ErrInvalidInput)
		}
		s.workspace.UpsertUser(u)
	case domain.EventChannelRead:
		s.workspace.MarkRead(event.UserID, event.ChannelID)
	default:
		return fmt.Errorf("event type %q: %w", event.Type, domain.ErrInvalidInput)
	}
	return nil
}
