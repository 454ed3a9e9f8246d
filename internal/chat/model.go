package chat

import "time"

// Chat is a two-person conversation. It has no name or picture of its own;
// clients derive both from the other participant (see Session.OtherParticipant).
type Chat struct {
	ID             int64   `json:"id"`
	ParticipantIDs []int64 `json:"participantIds"`
}

// HasParticipant reports whether userID is in the chat's participant set.
func (c *Chat) HasParticipant(userID int64) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chatId"`
	SenderID  int64     `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member is the participant view exposed by the chat store: just enough of a
// user to render a chat header. The user package owns the full record.
type Member struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Picture  string `json:"picture"`
}

// MessagePage is one pagination window, oldest message first. Cursor is the
// opaque token for the next (older) window; it encodes zero when the page is
// empty.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Cursor   string    `json:"cursor"`
	HasMore  bool      `json:"hasMore"`
}
