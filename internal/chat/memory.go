package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Directory resolves member records for the in-memory store. The postgres
// store joins the users table directly; here user ownership stays with
// whoever seeded the store.
type Directory interface {
	MemberByID(ctx context.Context, userID int64) (*Member, error)
}

// MemoryStore keeps the whole chat graph in process. It backs the test suite
// and dev-mode runs; it honors the same Session contract as PostgresStore,
// including monotonically increasing message timestamps.
type MemoryStore struct {
	mu         sync.Mutex
	dir        Directory
	pub        Publisher
	chats      map[int64][]int64  // chat id -> participant ids, sorted
	messages   map[int64][]Message // chat id -> messages, append order
	nextChatID int64
	nextMsgID  int64
	lastStamp  time.Time
	now        func() time.Time
}

func NewMemoryStore(dir Directory, pub Publisher) *MemoryStore {
	return &MemoryStore{
		dir:      dir,
		pub:      pub,
		chats:    make(map[int64][]int64),
		messages: make(map[int64][]Message),
		now:      time.Now,
	}
}

// SeedChat registers an existing chat under a fixed id, for fixtures.
func (s *MemoryStore) SeedChat(chatID int64, participantIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]int64(nil), participantIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.chats[chatID] = ids
	if chatID >= s.nextChatID {
		s.nextChatID = chatID
	}
}

func (s *MemoryStore) Session(ctx context.Context) (Session, error) {
	return &memSession{store: s}, nil
}

type memSession struct {
	store *MemoryStore
}

func (m *memSession) Close() error { return nil }

func (m *memSession) ChatByID(ctx context.Context, chatID int64) (*Chat, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatLocked(chatID)
}

func (m *memSession) ChatsByUser(ctx context.Context, userID int64) ([]*Chat, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for chatID, members := range s.chats {
		if containsID(members, userID) {
			ids = append(ids, chatID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	chats := make([]*Chat, 0, len(ids))
	for _, id := range ids {
		c, _ := s.chatLocked(id)
		chats = append(chats, c)
	}
	return chats, nil
}

func (m *memSession) ChatForUser(ctx context.Context, chatID, userID int64) (*Chat, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.chats[chatID]
	if !ok || !containsID(members, userID) {
		return nil, ErrNotFound
	}
	return s.chatLocked(chatID)
}

func (m *memSession) GetOrCreateDirectChat(ctx context.Context, userID, recipientID int64) (*Chat, bool, error) {
	s := m.store
	s.mu.Lock()
	for chatID, members := range s.chats {
		if containsID(members, userID) && containsID(members, recipientID) {
			c, _ := s.chatLocked(chatID)
			s.mu.Unlock()
			return c, false, nil
		}
	}

	s.nextChatID++
	chatID := s.nextChatID
	s.chats[chatID] = orderedPair(userID, recipientID)
	created, _ := s.chatLocked(chatID)
	s.mu.Unlock()

	s.pub.Publish(ctx, ChatAdded{Chat: *created})
	return created, true, nil
}

func (m *memSession) RemoveChat(ctx context.Context, chatID, userID int64) (*Chat, error) {
	s := m.store
	s.mu.Lock()
	members, ok := s.chats[chatID]
	if !ok || !containsID(members, userID) {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	snapshot, _ := s.chatLocked(chatID)
	delete(s.chats, chatID)
	delete(s.messages, chatID)
	s.mu.Unlock()

	s.pub.Publish(ctx, ChatRemoved{ChatID: chatID, Chat: *snapshot})
	return snapshot, nil
}

func (m *memSession) AppendMessage(ctx context.Context, chatID, senderID int64, content string) (*Message, error) {
	s := m.store
	s.mu.Lock()
	if _, ok := s.chats[chatID]; !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	s.nextMsgID++
	msg := Message{
		ID:        s.nextMsgID,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: s.stampLocked(),
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	s.mu.Unlock()

	s.pub.Publish(ctx, MessageAdded{Message: msg})
	return &msg, nil
}

func (m *memSession) PaginateMessages(ctx context.Context, chatID int64, limit int, cursor string) (*MessagePage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	before, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[chatID]
	var desc []Message
	for i := len(all) - 1; i >= 0 && len(desc) < limit; i-- {
		if before > 0 && cursorMillis(all[i].CreatedAt) >= before {
			continue
		}
		desc = append(desc, all[i])
	}

	page := &MessagePage{Messages: reverseMessages(desc)}
	var oldest int64
	if len(page.Messages) > 0 {
		oldest = cursorMillis(page.Messages[0].CreatedAt)
	}
	page.Cursor = EncodeCursor(oldest)
	if oldest > 0 {
		for _, msg := range all {
			if cursorMillis(msg.CreatedAt) < oldest {
				page.HasMore = true
				break
			}
		}
	}
	return page, nil
}

func (m *memSession) OtherParticipant(ctx context.Context, chatID, userID int64) (*Member, error) {
	s := m.store
	s.mu.Lock()
	members, ok := s.chats[chatID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	for _, id := range members {
		if id != userID {
			return s.dir.MemberByID(ctx, id)
		}
	}
	return nil, ErrNotFound
}

func (m *memSession) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsID(s.chats[chatID], userID), nil
}

func (s *MemoryStore) chatLocked(chatID int64) (*Chat, error) {
	members, ok := s.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return &Chat{ID: chatID, ParticipantIDs: append([]int64(nil), members...)}, nil
}

// stampLocked assigns creation times that are strictly increasing at cursor
// precision, the property the paginator's "strictly older" walk relies on.
func (s *MemoryStore) stampLocked() time.Time {
	at := s.now().UTC()
	if !at.After(s.lastStamp) || cursorMillis(at) == cursorMillis(s.lastStamp) {
		at = s.lastStamp.Add(time.Millisecond)
	}
	s.lastStamp = at
	return at
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
