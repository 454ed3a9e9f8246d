package requestcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"dmchat/internal/chat"
)

// countingSession records how many physical fetches each operation issues.
type countingSession struct {
	chat.Session
	chatByID    int
	chatForUser int
	chatsByUser int
}

func (c *countingSession) ChatByID(ctx context.Context, chatID int64) (*chat.Chat, error) {
	c.chatByID++
	return c.Session.ChatByID(ctx, chatID)
}

func (c *countingSession) ChatForUser(ctx context.Context, chatID, userID int64) (*chat.Chat, error) {
	c.chatForUser++
	return c.Session.ChatForUser(ctx, chatID, userID)
}

func (c *countingSession) ChatsByUser(ctx context.Context, userID int64) ([]*chat.Chat, error) {
	c.chatsByUser++
	return c.Session.ChatsByUser(ctx, userID)
}

func newFixture(t *testing.T) (*countingSession, *Cache) {
	t.Helper()
	store := chat.NewMemoryStore(nil, chat.NopPublisher{})
	store.SeedChat(1, 1, 2)
	store.SeedChat(2, 1, 3)
	sess, err := store.Session(context.Background())
	require.NoError(t, err)
	counting := &countingSession{Session: sess}
	return counting, New(counting)
}

func TestCache_DeduplicatesSameKey(t *testing.T) {
	counting, cache := newFixture(t)
	ctx := context.Background()

	first := cache.ChatByID(1)
	second := cache.ChatByID(1)

	a, err := first(ctx)
	require.NoError(t, err)
	b, err := second(ctx)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Equal(t, 1, counting.chatByID, "two logical reads, one physical fetch")
}

func TestCache_BatchDispatchesAllPendingKeys(t *testing.T) {
	counting, cache := newFixture(t)
	ctx := context.Background()

	one := cache.ChatByID(1)
	two := cache.ChatByID(2)

	// Forcing the first thunk resolves the whole pending batch.
	_, err := one(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counting.chatByID)

	_, err = two(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counting.chatByID, "second thunk was already resolved")
}

func TestCache_ByUserWritesThroughToByID(t *testing.T) {
	counting, cache := newFixture(t)
	ctx := context.Background()

	chats, err := cache.ChatsByUser(1)(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)

	c, err := cache.ChatByID(chats[0].ID)(ctx)
	require.NoError(t, err)
	require.Equal(t, chats[0].ID, c.ID)

	require.Equal(t, 1, counting.chatsByUser)
	require.Zero(t, counting.chatByID, "write-through must satisfy the by-id lookup")
}

func TestCache_ChatForUserPrimesByID(t *testing.T) {
	counting, cache := newFixture(t)
	ctx := context.Background()

	_, err := cache.ChatForUser(1, 1)(ctx)
	require.NoError(t, err)

	_, err = cache.ChatByID(1)(ctx)
	require.NoError(t, err)

	require.Equal(t, 1, counting.chatForUser)
	require.Zero(t, counting.chatByID)
}

func TestCache_MemoizesNotFound(t *testing.T) {
	counting, cache := newFixture(t)
	ctx := context.Background()

	_, err := cache.ChatForUser(1, 99)(ctx)
	require.ErrorIs(t, err, chat.ErrNotFound)

	_, err = cache.ChatForUser(1, 99)(ctx)
	require.ErrorIs(t, err, chat.ErrNotFound)
	require.Equal(t, 1, counting.chatForUser)
}
