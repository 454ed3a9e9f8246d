package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dmchat/internal/bus"
	"dmchat/internal/chat"
	"dmchat/internal/middleware"
	"dmchat/internal/requestcache"
	"dmchat/internal/user"
)

// Handler serves the authenticated chat API. Every request checks out one
// store session for its lifetime and resolves reads through a request-scoped
// cache; both are torn down on every exit path.
type Handler struct {
	store chat.Store
	bus   bus.Bus
	users *user.Service
	log   *slog.Logger
}

func NewHandler(store chat.Store, b bus.Bus, users *user.Service, log *slog.Logger) *Handler {
	return &Handler{store: store, bus: b, users: users, log: log}
}

// chatView is the wire shape of a chat: the stored row plus the name and
// picture derived from the other participant.
type chatView struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Picture        string  `json:"picture"`
	ParticipantIDs []int64 `json:"participantIds"`
}

func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	u := middleware.CurrentUser(r.Context())
	sess, cache, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	chats, err := cache.ChatsByUser(u.ID)(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	views := make([]chatView, 0, len(chats))
	for _, c := range chats {
		views = append(views, h.view(r.Context(), sess, c, u.ID))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	u := middleware.CurrentUser(r.Context())
	chatID, err := pathID(r, "chatID")
	if err != nil {
		http.Error(w, "bad chat id", http.StatusBadRequest)
		return
	}
	sess, cache, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	c, err := cache.ChatForUser(chatID, u.ID)(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r.Context(), sess, c, u.ID))
}

func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	u := middleware.CurrentUser(r.Context())
	var req struct {
		RecipientID int64 `json:"recipientId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.RecipientID == u.ID {
		http.Error(w, "cannot chat with yourself", http.StatusBadRequest)
		return
	}
	if _, err := h.users.ByID(r.Context(), req.RecipientID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			http.Error(w, "recipient not found", http.StatusNotFound)
			return
		}
		h.fail(w, r, err)
		return
	}

	sess, _, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	c, created, err := sess.GetOrCreateDirectChat(r.Context(), u.ID, req.RecipientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, h.view(r.Context(), sess, c, u.ID))
}

func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	u := middleware.CurrentUser(r.Context())
	chatID, err := pathID(r, "chatID")
	if err != nil {
		http.Error(w, "bad chat id", http.StatusBadRequest)
		return
	}
	sess, _, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	removed, err := sess.RemoveChat(r.Context(), chatID, u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": removed.ID})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	u := middleware.CurrentUser(r.Context())
	chatID, err := pathID(r, "chatID")
	if err != nil {
		http.Error(w, "bad chat id", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sess, cache, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	if _, err := cache.ChatForUser(chatID, u.ID)(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := sess.PaginateMessages(r.Context(), chatID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	u := middleware.CurrentUser(r.Context())
	chatID, err := pathID(r, "chatID")
	if err != nil {
		http.Error(w, "bad chat id", http.StatusBadRequest)
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}

	sess, cache, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer sess.Close()

	// The store appends without a membership check; this is the gate.
	if _, err := cache.ChatForUser(chatID, u.ID)(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	msg, err := sess.AppendMessage(r.Context(), chatID, u.ID, req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.CurrentUser(r.Context()))
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	u := middleware.CurrentUser(r.Context())
	users, err := h.users.Search(r.Context(), r.URL.Query().Get("q"), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []user.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) UpdatePicture(w http.ResponseWriter, r *http.Request) {
	u := middleware.CurrentUser(r.Context())
	var req struct {
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.users.UpdatePicture(r.Context(), u.ID, req.Picture); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// begin checks out the request's session and builds its cache. On failure it
// has already written the response.
func (h *Handler) begin(w http.ResponseWriter, r *http.Request) (chat.Session, *requestcache.Cache, bool) {
	sess, err := h.store.Session(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return nil, nil, false
	}
	return sess, requestcache.New(sess), true
}

func (h *Handler) view(ctx context.Context, sess chat.Session, c *chat.Chat, userID int64) chatView {
	v := chatView{ID: c.ID, ParticipantIDs: c.ParticipantIDs}
	other, err := sess.OtherParticipant(ctx, c.ID, userID)
	if err == nil {
		v.Name = other.Name
		v.Picture = other.Picture
	}
	return v
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, chat.ErrNotFound) || errors.Is(err, user.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
