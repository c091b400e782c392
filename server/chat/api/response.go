package api

import (
	"workhub/server/chat/domain"
	"workhub/server/common/transport/httpresp"
)

type ErrorResponse = httpresp.ErrorResponse
type OKResponse = httpresp.OKResponse
type AuthResponse = httpresp.TokenResponse[domain.User]

type HealthResponse struct {
	Status string `json:"status"`
}

type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}

// StateResponse is the signed-in user's view model with the derived totals a
// client shows in its sidebar.
type StateResponse struct {
	*domain.ChatState
	TotalUnread   int `json:"total_unread"`
	TotalMentions int `json:"total_mentions"`
}

func NewErrorResponse(message string) ErrorResponse {
	return httpresp.NewErrorResponse(message)
}

func NewOKResponse() OKResponse {
	return httpresp.NewOKResponse()
}

func NewAuthResponse(token string, user domain.User) AuthResponse {
	return httpresp.NewTokenResponse(token, user)
}

func NewHealthResponse(status string) HealthResponse {
	return HealthResponse{Status: status}
}

func NewItemsResponse[T any](items []T) ItemsResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ItemsResponse[T]{Items: items}
}
