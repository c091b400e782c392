package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"workhub/server/chat/domain"
	"workhub/server/chat/service"
	"workhub/server/chat/store"
	commonauth "workhub/server/common/auth"
	commonlog "workhub/server/common/log"
	"workhub/server/common/middleware"
	"workhub/server/common/transport/httpresp"
)

type Handler struct {
	chat        *service.ChatService
	users       *service.UserService
	attachments *service.AttachmentService
	ws          *service.RealtimeService
	auth        *commonauth.Service
}

// NewHandler wires the HTTP surface. attachments may be nil when object
// storage is disabled; the attachment routes then answer 503.
func NewHandler(chat *service.ChatService, users *service.UserService, attachments *service.AttachmentService, ws *service.RealtimeService, auth *commonauth.Service) *Handler {
	return &Handler{chat: chat, users: users, attachments: attachments, ws: ws, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, NewHealthResponse("ok")) })

	public := r.Group("/api/v1/auth")
	{
		public.POST("/register", h.register)
		public.POST("/login", h.login)
	}

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.GET("/state", h.getState)
		api.GET("/channels", h.listChannels)
		api.POST("/channels", middleware.RequireRoles(string(domain.UserRoleAdmin)), h.createChannel)
		api.POST("/channels/:id/open", h.openChannel)
		api.POST("/channels/:id/read", h.markRead)
		api.GET("/channels/:id/messages", h.listMessages)
		api.POST("/channels/:id/messages", h.sendMessage)
		api.POST("/channels/:id/messages/:messageId/reactions", h.toggleReaction)
		api.GET("/users", h.listUsers)
		api.GET("/users/me", h.me)
		api.PATCH("/users/me", h.updateMe)
		api.PUT("/users/me/status", h.setStatus)
		api.POST("/attachments/presign", h.presignAttachment)
		api.POST("/attachments", h.registerAttachment)
		api.GET("/attachments/*key", h.downloadAttachment)
		api.GET("/ws", h.ws.HandleWS)
	}
}

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	token, user, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewAuthResponse(token, user))
}

func (h *Handler) login(c *gin.Context) {
	var req service.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	token, user, err := h.users.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(httpresp.ErrInvalidCredentials))
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewAuthResponse(token, user))
}

func (h *Handler) getState(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	st, err := h.chat.State(c.Request.Context(), actorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StateResponse{ChatState: st, TotalUnread: store.TotalUnread(st), TotalMentions: store.TotalMentions(st)})
}

func (h *Handler) listChannels(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	st, err := h.chat.State(c.Request.Context(), actorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewItemsResponse(st.Channels))
}

func (h *Handler) createChannel(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateChannelInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	ch, err := h.chat.CreateChannel(c.Request.Context(), actorID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *Handler) openChannel(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	msgs, err := h.chat.OpenChannel(c.Request.Context(), actorID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewItemsResponse(msgs))
}

func (h *Handler) markRead(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.chat.MarkRead(c.Request.Context(), actorID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOKResponse())
}

func (h *Handler) listMessages(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	msgs, err := h.chat.ChannelMessages(c.Request.Context(), actorID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewItemsResponse(msgs))
}

func (h *Handler) sendMessage(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req service.SendMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	msg, err := h.chat.SendMessage(c.Request.Context(), actorID, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) toggleReaction(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	msg, err := h.chat.ToggleReaction(c.Request.Context(), actorID, c.Param("id"), c.Param("messageId"), req.Emoji)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) listUsers(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	st, err := h.chat.State(c.Request.Context(), actorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewItemsResponse(st.Users))
}

func (h *Handler) me(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	u, err := h.users.Me(c.Request.Context(), actorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) updateMe(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req service.ProfilePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), actorID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) setStatus(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Status domain.UserStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	if err := h.chat.SetStatus(c.Request.Context(), actorID, req.Status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewOKResponse())
}

func (h *Handler) presignAttachment(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok || !h.attachmentsEnabled(c) {
		return
	}
	var req service.PresignInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	out, err := h.attachments.PresignUpload(c.Request.Context(), actorID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) registerAttachment(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok || !h.attachmentsEnabled(c) {
		return
	}
	var req service.RegisterAttachmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	att, err := h.attachments.Register(c.Request.Context(), actorID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, att)
}

func (h *Handler) downloadAttachment(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok || !h.attachmentsEnabled(c) {
		return
	}
	u, err := h.attachments.DownloadURL(c.Request.Context(), actorID, strings.TrimPrefix(c.Param("key"), "/"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, u)
}

func (h *Handler) attachmentsEnabled(c *gin.Context) bool {
	if h.attachments == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse("attachments are disabled"))
		return false
	}
	return true
}

func actor(c *gin.Context) (string, bool) {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(httpresp.ErrUnauthorized))
	}
	return actorID, ok
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, NewErrorResponse(err.Error()))
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, NewErrorResponse(err.Error()))
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(httpresp.ErrUnauthorized))
	default:
		commonlog.Errorf("event=http_request action=%s status=failed path=%s error=%v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(httpresp.ErrInternal))
	}
}
