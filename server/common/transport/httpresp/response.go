package httpresp

const (
	ErrUnauthorized       = "unauthorized"
	ErrInvalidCredentials = "invalid credentials"
	ErrMissingBearerToken = "bearer token is required"
	ErrInvalidToken       = "invalid token"
	ErrForbidden          = "forbidden"
	ErrInsufficientRole   = "insufficient permissions"
	ErrNotFound           = "not found"
	ErrInternal           = "internal error"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type IDResponse struct {
	ID string `json:"id"`
}

type TokenResponse[T any] struct {
	Token string `json:"token"`
	User  T      `json:"user"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewOKResponse() OKResponse {
	return OKResponse{OK: true}
}

func NewIDResponse(id string) IDResponse {
	return IDResponse{ID: id}
}

func NewTokenResponse[T any](token string, user T) TokenResponse[T] {
	return TokenResponse[T]{Token: token, User: user}
}
