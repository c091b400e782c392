package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"workhub/server/chat/domain"
	commonlog "workhub/server/common/log"
	"workhub/server/common/metrics"
	"workhub/server/common/middleware"
)

const (
	wsWriteWait   = 5 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = 50 * time.Second
	wsSendBuffer  = 256
	wsMaxReadSize = 64 << 10
)

// wsCommand is what a client sends over the socket.
type wsCommand struct {
	Type      string            `json:"type"`
	RequestID string            `json:"request_id,omitempty"`
	ChannelID string            `json:"channel_id"`
	MessageID string            `json:"message_id"`
	Emoji     string            `json:"emoji"`
	Status    domain.UserStatus `json:"status"`
	SendMessageInput
}

type wsReply struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// RealtimeService streams a user's store changes over websocket and accepts
// chat commands on the same connection.
type RealtimeService struct {
	chat      *ChatService
	workspace *Workspace
	upgrader  websocket.Upgrader
}

func NewRealtimeService(chat *ChatService, workspace *Workspace) *RealtimeService {
	return &RealtimeService{
		chat:      chat,
		workspace: workspace,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

type wsSession struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
}

func (s *RealtimeService) HandleWS(c *gin.Context) {
	userID, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	st, err := s.workspace.StoreFor(c.Request.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		commonlog.Warnf("event=chat_ws action=upgrade status=failed user_id=%s error=%v", userID, err)
		return
	}
	sess := &wsSession{userID: userID, conn: conn, send: make(chan []byte, wsSendBuffer), done: make(chan struct{})}
	metrics.RealtimeConnections.Inc()
	commonlog.Infof("event=chat_ws action=connect status=ok user_id=%s", userID)

	// Listeners run under the store's notify lock, so they only enqueue.
	unsubscribe := st.Subscribe(func(prev, next *domain.ChatState) {
		for _, update := range DiffStates(prev, next) {
			b, err := json.Marshal(update)
			if err != nil {
				continue
			}
			select {
			case sess.send <- b:
			default:
				commonlog.Warnf("event=chat_ws action=enqueue status=dropped user_id=%s type=%s", userID, update.Type)
			}
		}
	})

	go s.writeLoop(sess)
	sess.reply(wsReply{Type: "state", Payload: st.State()})
	s.readLoop(c.Request.Context(), sess)

	unsubscribe()
	close(sess.done)
	metrics.RealtimeConnections.Dec()
	commonlog.Infof("event=chat_ws action=disconnect status=ok user_id=%s", userID)
}

func (s *RealtimeService) writeLoop(sess *wsSession) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = sess.conn.Close()
	}()
	for {
		select {
		case <-sess.done:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = sess.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case b := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *RealtimeService) readLoop(ctx context.Context, sess *wsSession) {
	sess.conn.SetReadLimit(wsMaxReadSize)
	_ = sess.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			sess.reply(wsReply{Type: "error", Error: "invalid command"})
			continue
		}
		payload, err := s.dispatch(ctx, sess.userID, cmd)
		if err != nil {
			sess.reply(wsReply{Type: "error", RequestID: cmd.RequestID, Error: err.Error()})
			continue
		}
		sess.reply(wsReply{Type: "ack", RequestID: cmd.RequestID, Payload: payload})
	}
}

func (s *RealtimeService) dispatch(ctx context.Context, userID string, cmd wsCommand) (any, error) {
	channelID := strings.TrimSpace(cmd.ChannelID)
	switch cmd.Type {
	case "message":
		return s.chat.SendMessage(ctx, userID, channelID, cmd.SendMessageInput)
	case "reaction":
		return s.chat.ToggleReaction(ctx, userID, channelID, cmd.MessageID, cmd.Emoji)
	case "open_channel":
		return s.chat.OpenChannel(ctx, userID, channelID)
	case "read":
		return nil, s.chat.MarkRead(ctx, userID, channelID)
	case "status":
		return nil, s.chat.SetStatus(ctx, userID, cmd.Status)
	case "state":
		st, ok := s.workspace.Lookup(userID)
		if !ok {
			return nil, domain.ErrNotFound
		}
		return st.State(), nil
	}
	return nil, errors.New("unknown command type")
}

// reply enqueues a direct response, dropping it when the session is backed up.
func (sess *wsSession) reply(r wsReply) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case sess.send <- b:
	case <-sess.done:
	default:
		commonlog.Warnf("event=chat_ws action=reply status=dropped user_id=%s type=%s", sess.userID, r.Type)
	}
}
