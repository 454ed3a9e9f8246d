package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"dmchat/internal/chat"
)

func (e *testEnv) dialWS(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(e.server.URL, "http", "ws", 1) + "/ws?token=" + e.tokens[username]
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if res != nil {
		res.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	// Give the server a moment to register its subscriptions before events
	// start flowing.
	time.Sleep(100 * time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (chat.Topic, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f struct {
		Type    chat.Topic      `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &f))
	return f.Type, f.Payload
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", raw)
}

func TestWS_MessageDeliveredToParticipantsOnly(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "Ray", "ray")
	nikoID := env.signUp(t, "Niko", "niko")
	env.signUp(t, "Bystander", "bystander")

	res := env.do(t, http.MethodPost, "/api/chats", "ray", map[string]int64{"recipientId": nikoID})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var created chatView
	decode(t, res, &created)

	nikoConn := env.dialWS(t, "niko")
	bystanderConn := env.dialWS(t, "bystander")

	res = env.do(t, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", created.ID),
		"ray", map[string]string{"content": "hi"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	res.Body.Close()

	topic, payload := readFrame(t, nikoConn)
	require.Equal(t, chat.TopicMessageAdded, topic)
	var evt chat.MessageAdded
	require.NoError(t, json.Unmarshal(payload, &evt))
	require.Equal(t, created.ID, evt.Message.ChatID)
	require.Equal(t, "hi", evt.Message.Content)

	expectSilence(t, bystanderConn)
}

func TestWS_ChatLifecycleEvents(t *testing.T) {
	env := newTestEnv(t)
	rayID := env.signUp(t, "Ray", "ray")
	nikoID := env.signUp(t, "Niko", "niko")
	env.signUp(t, "Bystander", "bystander")

	nikoConn := env.dialWS(t, "niko")
	bystanderConn := env.dialWS(t, "bystander")

	res := env.do(t, http.MethodPost, "/api/chats", "ray", map[string]int64{"recipientId": nikoID})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var created chatView
	decode(t, res, &created)

	topic, payload := readFrame(t, nikoConn)
	require.Equal(t, chat.TopicChatAdded, topic)
	var added chat.ChatAdded
	require.NoError(t, json.Unmarshal(payload, &added))
	require.Equal(t, created.ID, added.Chat.ID)
	require.ElementsMatch(t, []int64{rayID, nikoID}, added.Chat.ParticipantIDs)

	res = env.do(t, http.MethodDelete, fmt.Sprintf("/api/chats/%d", created.ID), "ray", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	topic, payload = readFrame(t, nikoConn)
	require.Equal(t, chat.TopicChatRemoved, topic)
	var removed chat.ChatRemoved
	require.NoError(t, json.Unmarshal(payload, &removed))
	require.Equal(t, created.ID, removed.ChatID)

	expectSilence(t, bystanderConn)
}
