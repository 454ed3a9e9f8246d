package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"dmchat/internal/bus"
	"dmchat/internal/chat"
	"dmchat/internal/middleware"
	"dmchat/internal/user"
)

type testEnv struct {
	server *httptest.Server
	users  *user.Service
	tokens map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	repo := user.NewMemoryRepository()
	eventBus := bus.NewMemory(logger)
	store := chat.NewMemoryStore(repo, eventBus)
	users := user.NewService(repo, "test-secret")

	handler := NewHandler(store, eventBus, users, logger)
	userHandler := user.NewHandler(users)
	auth := middleware.NewAuth(users)

	r := chi.NewRouter()
	r.Post("/sign-up", userHandler.SignUp)
	r.Post("/sign-in", userHandler.SignIn)
	r.Group(func(r chi.Router) {
		r.Use(auth.Resolve)
		r.Use(middleware.RequireUser)
		r.Get("/api/me", handler.Me)
		r.Get("/api/users/search", handler.SearchUsers)
		r.Get("/api/chats", handler.ListChats)
		r.Post("/api/chats", handler.CreateChat)
		r.Get("/api/chats/{chatID}", handler.GetChat)
		r.Delete("/api/chats/{chatID}", handler.DeleteChat)
		r.Get("/api/chats/{chatID}/messages", handler.ListMessages)
		r.Post("/api/chats/{chatID}/messages", handler.CreateMessage)
		r.Get("/ws", handler.ServeWS)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &testEnv{server: server, users: users, tokens: make(map[string]string)}
}

// signUp registers a user over HTTP and remembers their token.
func (e *testEnv) signUp(t *testing.T, name, username string) int64 {
	t.Helper()
	res := e.do(t, http.MethodPost, "/sign-up", "", map[string]string{
		"name": name, "username": username, "password": "1234567a",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var u user.User
	decode(t, res, &u)

	res = e.do(t, http.MethodPost, "/sign-in", "", map[string]string{
		"username": username, "password": "1234567a",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var authRes user.AuthResponse
	decode(t, res, &authRes)
	e.tokens[username] = authRes.AccessToken
	return u.ID
}

func (e *testEnv) do(t *testing.T, method, path, username string, body any) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, buf)
	require.NoError(t, err)
	if username != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[username])
	}
	res, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return res
}

func decode(t *testing.T, res *http.Response, v any) {
	t.Helper()
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/chats", "/api/me"} {
		res := env.do(t, http.MethodGet, path, "", nil)
		res.Body.Close()
		require.Equal(t, http.StatusUnauthorized, res.StatusCode, path)
	}
}

func TestAPI_SignUpValidationAndConflict(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/sign-up", "", map[string]string{
		"name": "Ray", "username": "r!", "password": "1234567a",
	})
	res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	env.signUp(t, "Ray", "ray")
	res = env.do(t, http.MethodPost, "/sign-up", "", map[string]string{
		"name": "Other", "username": "ray", "password": "7654321b",
	})
	res.Body.Close()
	require.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestAPI_ChatLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "Ray Edwards", "ray")
	nikoID := env.signUp(t, "Niko Bellic", "niko")

	// First contact creates the chat.
	res := env.do(t, http.MethodPost, "/api/chats", "ray", map[string]int64{"recipientId": nikoID})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var created chatView
	decode(t, res, &created)
	require.Equal(t, "Niko Bellic", created.Name)

	// Second call returns the same chat untouched.
	res = env.do(t, http.MethodPost, "/api/chats", "ray", map[string]int64{"recipientId": nikoID})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var again chatView
	decode(t, res, &again)
	require.Equal(t, created.ID, again.ID)

	// Both sides list it, each seeing the other's name.
	res = env.do(t, http.MethodGet, "/api/chats", "niko", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var chats []chatView
	decode(t, res, &chats)
	require.Len(t, chats, 1)
	require.Equal(t, "Ray Edwards", chats[0].Name)

	// Messages flow, oldest first.
	for _, content := range []string{"hi", "how are you"} {
		res = env.do(t, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", created.ID),
			"ray", map[string]string{"content": content})
		require.Equal(t, http.StatusCreated, res.StatusCode)
		res.Body.Close()
	}
	res = env.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages", created.ID), "niko", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var page chat.MessagePage
	decode(t, res, &page)
	require.Len(t, page.Messages, 2)
	require.Equal(t, "hi", page.Messages[0].Content)
	require.False(t, page.HasMore)

	// Removal, then the chat is gone for its participant.
	res = env.do(t, http.MethodDelete, fmt.Sprintf("/api/chats/%d", created.ID), "ray", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = env.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%d", created.ID), "ray", nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()
}

func TestAPI_NonParticipantSeesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "Ray", "ray")
	nikoID := env.signUp(t, "Niko", "niko")
	env.signUp(t, "Intruder", "intruder")

	res := env.do(t, http.MethodPost, "/api/chats", "ray", map[string]int64{"recipientId": nikoID})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var created chatView
	decode(t, res, &created)

	chatPath := fmt.Sprintf("/api/chats/%d", created.ID)
	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, chatPath, nil},
		{http.MethodDelete, chatPath, nil},
		{http.MethodGet, chatPath + "/messages", nil},
		{http.MethodPost, chatPath + "/messages", map[string]string{"content": "let me in"}},
	} {
		res := env.do(t, tc.method, tc.path, "intruder", tc.body)
		res.Body.Close()
		require.Equal(t, http.StatusNotFound, res.StatusCode, "%s %s", tc.method, tc.path)
	}

	// The failed attempts deleted nothing.
	res = env.do(t, http.MethodGet, chatPath, "ray", nil)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestAPI_CreateChatEdgeCases(t *testing.T) {
	env := newTestEnv(t)
	rayID := env.signUp(t, "Ray", "ray")

	res := env.do(t, http.MethodPost, "/api/chats", "ray", map[string]int64{"recipientId": 999})
	res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	res = env.do(t, http.MethodPost, "/api/chats", "ray", map[string]int64{"recipientId": rayID})
	res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAPI_SearchExcludesSelf(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "Ray", "ray")
	env.signUp(t, "Raymond", "raymond")

	res := env.do(t, http.MethodGet, "/api/users/search?q=ray", "ray", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var users []user.User
	decode(t, res, &users)
	require.Len(t, users, 1)
	require.Equal(t, "raymond", users[0].Username)
}
