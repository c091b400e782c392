package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/server/chat/domain"
	"workhub/server/common/metrics"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Error     string          `json:"error"`
	ChannelID string          `json:"channel_id"`
	Message   *domain.Message `json:"message"`
	User      *domain.User    `json:"user"`
	Payload   json.RawMessage `json:"payload"`
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil collects frames until one satisfies done.
func readUntil(t *testing.T, conn *websocket.Conn, done func(wsFrame) bool) []wsFrame {
	t.Helper()
	var frames []wsFrame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if done(f) {
			return frames
		}
	}
}

func replyTo(requestID string) func(wsFrame) bool {
	return func(f wsFrame) bool {
		return (f.Type == "ack" || f.Type == "error") && f.RequestID == requestID
	}
}

func frameTypes(frames []wsFrame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return out
}

func command(t *testing.T, conn *websocket.Conn, cmd map[string]any) []wsFrame {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
	return readUntil(t, conn, replyTo(cmd["request_id"].(string)))
}

func TestRealtime_SessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	annToken, ann := s.register(t, "Ann", "ann@example.com")
	bobToken, _ := s.register(t, "Bob", "bob@example.com")
	baseline := testutil.ToFloat64(metrics.RealtimeConnections)

	conn := dialWS(t, srv, annToken)
	first := readUntil(t, conn, func(wsFrame) bool { return true })
	require.Equal(t, "state", first[0].Type)
	var st domain.ChatState
	require.NoError(t, json.Unmarshal(first[0].Payload, &st))
	require.NotNil(t, st.CurrentUser)
	assert.Equal(t, ann.ID, st.CurrentUser.ID)
	assert.Equal(t, baseline+1, testutil.ToFloat64(metrics.RealtimeConnections))

	// a message from another user is pushed as a store diff
	rec := s.do(t, http.MethodPost, "/api/v1/channels/general/messages", bobToken, map[string]any{"content": "hello @Ann"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pushed := readUntil(t, conn, func(f wsFrame) bool { return f.Type == "message.created" })
	created := pushed[len(pushed)-1]
	require.NotNil(t, created.Message)
	assert.Equal(t, "hello @Ann", created.Message.Content)
	assert.Equal(t, "general", created.ChannelID)

	frames := command(t, conn, map[string]any{"type": "message", "request_id": "m", "channel_id": "general", "content": "hi back"})
	assert.Contains(t, frameTypes(frames), "message.created")
	assert.Equal(t, "ack", frames[len(frames)-1].Type)
	var sent domain.Message
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Payload, &sent))
	assert.Equal(t, "hi back", sent.Content)

	frames = command(t, conn, map[string]any{"type": "reaction", "request_id": "r", "channel_id": "general", "message_id": created.Message.ID, "emoji": "👍"})
	assert.Contains(t, frameTypes(frames), "message.updated")
	assert.Equal(t, "ack", frames[len(frames)-1].Type)

	frames = command(t, conn, map[string]any{"type": "open_channel", "request_id": "o", "channel_id": "general"})
	assert.Contains(t, frameTypes(frames), "channel.opened")
	assert.Equal(t, "ack", frames[len(frames)-1].Type)

	frames = command(t, conn, map[string]any{"type": "read", "request_id": "rd", "channel_id": "general"})
	assert.Equal(t, "ack", frames[len(frames)-1].Type)

	frames = command(t, conn, map[string]any{"type": "status", "request_id": "s", "status": "away"})
	assert.Contains(t, frameTypes(frames), "user.updated")
	assert.Equal(t, "ack", frames[len(frames)-1].Type)

	frames = command(t, conn, map[string]any{"type": "state", "request_id": "st"})
	last := frames[len(frames)-1]
	require.Equal(t, "ack", last.Type)
	require.NoError(t, json.Unmarshal(last.Payload, &st))
	require.NotNil(t, st.CurrentChannel)
	assert.Equal(t, "general", *st.CurrentChannel)
	assert.Len(t, st.Messages["general"], 2)

	// closing the socket unsubscribes the session
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.RealtimeConnections) == baseline
	}, 2*time.Second, 10*time.Millisecond)

	rec = s.do(t, http.MethodPost, "/api/v1/channels/general/messages", bobToken, map[string]any{"content": "anyone there?"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRealtime_CommandErrors(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token, _ := s.register(t, "Ann", "ann@example.com")
	conn := dialWS(t, srv, token)
	readUntil(t, conn, func(f wsFrame) bool { return f.Type == "state" })

	frames := command(t, conn, map[string]any{"type": "teleport", "request_id": "x"})
	last := frames[len(frames)-1]
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, "unknown command type", last.Error)

	frames = command(t, conn, map[string]any{"type": "message", "request_id": "e", "channel_id": "general", "content": "  "})
	assert.Equal(t, "error", frames[len(frames)-1].Type)

	frames = command(t, conn, map[string]any{"type": "read", "request_id": "n", "channel_id": "nowhere"})
	assert.Equal(t, "error", frames[len(frames)-1].Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frames = readUntil(t, conn, func(f wsFrame) bool { return f.Type == "error" })
	assert.Equal(t, "invalid command", frames[len(frames)-1].Error)
}

func TestRealtime_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
