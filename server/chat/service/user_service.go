package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"workhub/server/chat/domain"
	"workhub/server/common/auth"
	commonlog "workhub/server/common/log"
)

const minPasswordLength = 8

type UserService struct {
	repo      Repository
	workspace *Workspace
	tokens    TokenIssuer
	chat      *ChatService
	now       func() time.Time
	newID     func() string
}

func NewUserService(repo Repository, workspace *Workspace, tokens TokenIssuer, chat *ChatService) *UserService {
	return &UserService{
		repo:      repo,
		workspace: workspace,
		tokens:    tokens,
		chat:      chat,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

type RegisterInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Timezone   string `json:"timezone"`
	Title      string `json:"title"`
	Department string `json:"department"`
	Location   string `json:"location"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfilePatch updates only the fields that are set.
type ProfilePatch struct {
	Name           *string   `json:"name"`
	Avatar         *string   `json:"avatar"`
	Timezone       *string   `json:"timezone"`
	Title          *string   `json:"title"`
	Department     *string   `json:"department"`
	Location       *string   `json:"location"`
	Bio            *string   `json:"bio"`
	Skills         *[]string `json:"skills"`
	GithubUsername *string   `json:"github_username"`
	LinkedinURL    *string   `json:"linkedin_url"`
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (string, domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return "", domain.User{}, fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return "", domain.User{}, fmt.Errorf("email is invalid: %w", domain.ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return "", domain.User{}, fmt.Errorf("password must have at least %d characters: %w", minPasswordLength, domain.ErrInvalidInput)
	}
	timezone := strings.TrimSpace(in.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return "", domain.User{}, fmt.Errorf("timezone %q: %w", timezone, domain.ErrInvalidInput)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return "", domain.User{}, err
	}
	u := domain.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		Status:       domain.UserStatusOnline,
		Timezone:     timezone,
		Role:         domain.UserRoleMember,
		Title:        strings.TrimSpace(in.Title),
		Department:   strings.TrimSpace(in.Department),
		Location:     strings.TrimSpace(in.Location),
		JoinDate:     s.now().UTC(),
		Skills:       []string{},
		PasswordHash: hash,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return "", domain.User{}, err
	}
	commonlog.Infof("event=user_register action=create status=ok user_id=%s", u.ID)
	s.announce(ctx, u)

	token, err := s.tokens.GenerateToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return "", domain.User{}, err
	}
	return token, u, nil
}

func (s *UserService) Login(ctx context.Context, in LoginInput) (string, domain.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return "", domain.User{}, fmt.Errorf("email and password are required: %w", domain.ErrInvalidInput)
	}
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.User{}, domain.ErrUnauthorized
		}
		return "", domain.User{}, err
	}
	if !auth.VerifyPassword(in.Password, u.PasswordHash) {
		commonlog.Warnf("event=user_login action=verify status=failed user_id=%s", u.ID)
		return "", domain.User{}, domain.ErrUnauthorized
	}
	token, err := s.tokens.GenerateToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return "", domain.User{}, err
	}
	return token, u, nil
}

func (s *UserService) Me(ctx context.Context, actorID string) (domain.User, error) {
	return s.repo.GetUserByID(ctx, actorID)
}

func (s *UserService) UpdateProfile(ctx context.Context, actorID string, patch ProfilePatch) (domain.User, error) {
	u, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return domain.User{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.User{}, fmt.Errorf("name is required: %w", domain.ErrInvalidInput)
		}
		u.Name = name
	}
	if patch.Timezone != nil {
		tz := strings.TrimSpace(*patch.Timezone)
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			return domain.User{}, fmt.Errorf("timezone %q: %w", tz, domain.ErrInvalidInput)
		}
		u.Timezone = tz
	}
	setString(&u.Avatar, patch.Avatar)
	setString(&u.Title, patch.Title)
	setString(&u.Department, patch.Department)
	setString(&u.Location, patch.Location)
	setString(&u.Bio, patch.Bio)
	if patch.Skills != nil {
		u.Skills = dedupeAndTrim(*patch.Skills)
	}
	if patch.GithubUsername != nil {
		u.GithubUsername = optionalString(*patch.GithubUsername)
	}
	if patch.LinkedinURL != nil {
		u.LinkedinURL = optionalString(*patch.LinkedinURL)
	}

	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return domain.User{}, err
	}
	s.announce(ctx, u)
	return u, nil
}

// announce pushes u into loaded stores and to the event publishers.
func (s *UserService) announce(ctx context.Context, u domain.User) {
	s.workspace.UpsertUser(u)
	if s.chat != nil {
		s.chat.publish(ctx, domain.Event{Type: domain.EventUserUpdated, UserID: u.ID, Payload: u})
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
