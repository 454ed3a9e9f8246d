package chat

import (
	"context"
	"errors"
)

// ErrNotFound covers both a missing row and a row the caller is not allowed
// to see. The API layer maps it to an empty 404 so non-participants cannot
// probe for chat existence.
var ErrNotFound = errors.New("chat: not found")

// Store hands out request-scoped sessions. A session owns one storage
// connection for the lifetime of one inbound request; callers must Close it
// on every exit path.
type Store interface {
	Session(ctx context.Context) (Session, error)
}

// Session is the chat data surface. All mutations are transactional: they
// either fully apply or leave storage untouched.
type Session interface {
	// ChatByID returns the chat or ErrNotFound. No membership gate; callers
	// that act on behalf of a user go through ChatForUser instead.
	ChatByID(ctx context.Context, chatID int64) (*Chat, error)

	// ChatsByUser returns every chat userID participates in.
	ChatsByUser(ctx context.Context, userID int64) ([]*Chat, error)

	// ChatForUser returns the chat only if userID is one of its participants;
	// ErrNotFound otherwise. This is the read authorization gate.
	ChatForUser(ctx context.Context, chatID, userID int64) (*Chat, error)

	// GetOrCreateDirectChat returns the existing chat for the unordered pair
	// {userID, recipientID}, or atomically creates the chat plus both
	// participant rows and publishes a chat.added event. The bool reports
	// whether a new chat was created.
	GetOrCreateDirectChat(ctx context.Context, userID, recipientID int64) (*Chat, bool, error)

	// RemoveChat deletes the chat, its participants and messages in one
	// transaction, publishing chat.removed with the pre-delete snapshot.
	// ErrNotFound if userID is not a participant; nothing is deleted then.
	RemoveChat(ctx context.Context, chatID, userID int64) (*Chat, error)

	// AppendMessage inserts a message with a server-assigned id and
	// timestamp and publishes message.added. Membership is not checked here;
	// that is the caller's gate.
	AppendMessage(ctx context.Context, chatID, senderID int64, content string) (*Message, error)

	// PaginateMessages returns up to limit messages oldest-first, walking
	// backwards in time from the cursor (or from the newest message when the
	// cursor is empty).
	PaginateMessages(ctx context.Context, chatID int64, limit int, cursor string) (*MessagePage, error)

	// OtherParticipant returns the participant of chatID who is not userID,
	// or ErrNotFound when the chat has no such counterpart.
	OtherParticipant(ctx context.Context, chatID, userID int64) (*Member, error)

	// IsParticipant reports membership without loading the chat.
	IsParticipant(ctx context.Context, chatID, userID int64) (bool, error)

	Close() error
}

// Publisher is the write side of the event bus as the store sees it.
// Publishing is fire-and-forget: implementations log failures and move on,
// a lost notification never fails the mutation that caused it.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// NopPublisher discards events. Useful for tests and offline tooling.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
