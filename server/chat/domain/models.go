package domain

import "time"

type UserStatus string
type UserRole string
type AttachmentKind string

const (
	UserStatusOnline    UserStatus = "online"
	UserStatusAway      UserStatus = "away"
	UserStatusOffline   UserStatus = "offline"
	UserStatusInMeeting UserStatus = "in-meeting"
)

const (
	UserRoleAdmin  UserRole = "admin"
	UserRoleMember UserRole = "member"
)

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
	AttachmentLink  AttachmentKind = "link"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusOnline, UserStatusAway, UserStatusOffline, UserStatusInMeeting:
		return true
	}
	return false
}

func (r UserRole) Valid() bool {
	return r == UserRoleAdmin || r == UserRoleMember
}

type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Avatar         string     `json:"avatar"`
	Status         UserStatus `json:"status"`
	Timezone       string     `json:"timezone"`
	Role           UserRole   `json:"role"`
	Title          string     `json:"title"`
	Department     string     `json:"department"`
	Location       string     `json:"location"`
	JoinDate       time.Time  `json:"join_date"`
	Bio            string     `json:"bio"`
	Skills         []string   `json:"skills"`
	GithubUsername *string    `json:"github_username,omitempty"`
	LinkedinURL    *string    `json:"linkedin_url,omitempty"`
	PasswordHash   string     `json:"-"`
}

type Channel struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	IsPrivate     bool      `json:"is_private"`
	Members       []string  `json:"members"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	UnreadCount   int       `json:"unread_count"`
	MentionsCount int       `json:"mentions_count"`
}

// HasMember reports whether userID is listed in the channel members.
func (c Channel) HasMember(userID string) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}

type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

type Attachment struct {
	ID         string         `json:"id"`
	Kind       AttachmentKind `json:"type"`
	URL        string         `json:"url"`
	Name       string         `json:"name"`
	Size       *int64         `json:"size,omitempty"`
	PreviewURL *string        `json:"preview_url,omitempty"`
}

type Message struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	UserID      string       `json:"user_id"`
	ChannelID   string       `json:"channel_id"`
	Timestamp   time.Time    `json:"timestamp"`
	Reactions   []Reaction   `json:"reactions"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Mentions    []string     `json:"mentions,omitempty"`
	IsEdited    bool         `json:"is_edited,omitempty"`
}

// ChatState is the view model owned by a store. A published ChatState is
// never modified; readers may share it freely.
type ChatState struct {
	Messages       map[string][]Message `json:"messages"`
	Channels       []Channel            `json:"channels"`
	Users          []User               `json:"users"`
	CurrentChannel *string              `json:"current_channel"`
	CurrentUser    *User                `json:"current_user"`
	IsLoading      bool                 `json:"is_loading"`
	Error          *string              `json:"error"`
}

func NewChatState() *ChatState {
	return &ChatState{
		Messages: map[string][]Message{},
		Channels: []Channel{},
		Users:    []User{},
	}
}
