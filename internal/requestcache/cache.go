// Package requestcache memoizes chat reads for the lifetime of one inbound
// request. Lookups return thunks; keys queue up until the first thunk is
// forced, at which point every pending key dispatches in one pass, one
// physical fetch per distinct key. The cache is discarded with the request
// and never shared across requests.
package requestcache

import (
	"context"
	"sync"

	"dmchat/internal/chat"
)

// ChatThunk yields a single chat once forced. Forcing any thunk dispatches
// the whole pending batch first.
type ChatThunk func(ctx context.Context) (*chat.Chat, error)

// ChatListThunk yields a user's chat list once forced.
type ChatListThunk func(ctx context.Context) ([]*chat.Chat, error)

type Cache struct {
	session chat.Session

	mu         sync.Mutex
	byID       map[int64]*chatEntry
	byChatUser map[pairKey]*chatEntry
	byUser     map[int64]*listEntry
	pending    []resolver
}

type pairKey struct{ chatID, userID int64 }

type resolver interface {
	force(ctx context.Context)
}

func New(session chat.Session) *Cache {
	return &Cache{
		session:    session,
		byID:       make(map[int64]*chatEntry),
		byChatUser: make(map[pairKey]*chatEntry),
		byUser:     make(map[int64]*listEntry),
	}
}

// ChatByID queues a by-id lookup.
func (c *Cache) ChatByID(chatID int64) ChatThunk {
	c.mu.Lock()
	e, ok := c.byID[chatID]
	if !ok {
		e = &chatEntry{fetch: func(ctx context.Context) (*chat.Chat, error) {
			return c.session.ChatByID(ctx, chatID)
		}}
		c.byID[chatID] = e
		c.pending = append(c.pending, e)
	}
	c.mu.Unlock()
	return c.chatThunk(e)
}

// ChatForUser queues a participant-gated lookup. A hit also primes the
// by-id slot for the same chat.
func (c *Cache) ChatForUser(chatID, userID int64) ChatThunk {
	key := pairKey{chatID, userID}
	c.mu.Lock()
	e, ok := c.byChatUser[key]
	if !ok {
		e = &chatEntry{fetch: func(ctx context.Context) (*chat.Chat, error) {
			ch, err := c.session.ChatForUser(ctx, chatID, userID)
			if err == nil {
				c.prime(ch)
			}
			return ch, err
		}}
		c.byChatUser[key] = e
		c.pending = append(c.pending, e)
	}
	c.mu.Unlock()
	return c.chatThunk(e)
}

// ChatsByUser queues a by-user lookup. Every chat in the result is written
// through to the by-id map, so a later ChatByID for one of them needs no
// further fetch.
func (c *Cache) ChatsByUser(userID int64) ChatListThunk {
	c.mu.Lock()
	e, ok := c.byUser[userID]
	if !ok {
		e = &listEntry{fetch: func(ctx context.Context) ([]*chat.Chat, error) {
			chats, err := c.session.ChatsByUser(ctx, userID)
			for _, ch := range chats {
				c.prime(ch)
			}
			return chats, err
		}}
		c.byUser[userID] = e
		c.pending = append(c.pending, e)
	}
	c.mu.Unlock()
	return func(ctx context.Context) ([]*chat.Chat, error) {
		c.dispatch(ctx)
		return e.resolve(ctx)
	}
}

func (c *Cache) chatThunk(e *chatEntry) ChatThunk {
	return func(ctx context.Context) (*chat.Chat, error) {
		c.dispatch(ctx)
		return e.resolve(ctx)
	}
}

// dispatch drains the pending queue and resolves every entry in it. Entries
// primed or resolved by an earlier batch are no-ops here.
func (c *Cache) dispatch(ctx context.Context) {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, e := range batch {
		e.force(ctx)
	}
}

// prime installs an already-fetched chat into the by-id map without a fetch.
// An existing slot wins: it is either resolved or already queued.
func (c *Cache) prime(ch *chat.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[ch.ID]; ok {
		return
	}
	e := &chatEntry{}
	e.once.Do(func() { e.chat = ch })
	c.byID[ch.ID] = e
}

type chatEntry struct {
	once  sync.Once
	fetch func(ctx context.Context) (*chat.Chat, error)
	chat  *chat.Chat
	err   error
}

func (e *chatEntry) force(ctx context.Context) { e.resolve(ctx) }

func (e *chatEntry) resolve(ctx context.Context) (*chat.Chat, error) {
	e.once.Do(func() { e.chat, e.err = e.fetch(ctx) })
	return e.chat, e.err
}

type listEntry struct {
	once  sync.Once
	fetch func(ctx context.Context) ([]*chat.Chat, error)
	chats []*chat.Chat
	err   error
}

func (e *listEntry) force(ctx context.Context) { e.resolve(ctx) }

func (e *listEntry) resolve(ctx context.Context) ([]*chat.Chat, error) {
	e.once.Do(func() { e.chats, e.err = e.fetch(ctx) })
	return e.chats, e.err
}
