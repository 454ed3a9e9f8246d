package user

import (
	"context"
	"sort"
	"strings"
	"sync"

	"dmchat/internal/chat"
)

// MemoryRepository backs tests and dev-mode runs. It doubles as the chat
// store's member directory.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[int64]*User)}
}

func (r *MemoryRepository) Create(ctx context.Context, u *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Username == u.Username {
			return nil, ErrUsernameTaken
		}
	}
	r.nextID++
	u.ID = r.nextID
	clone := *u
	r.byID[u.ID] = &clone
	return u, nil
}

func (r *MemoryRepository) ByID(ctx context.Context, id int64) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *MemoryRepository) ByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) Search(ctx context.Context, query string, excludeID int64) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var users []User
	for _, u := range r.byID {
		if u.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	if len(users) > 10 {
		users = users[:10]
	}
	return users, nil
}

func (r *MemoryRepository) UpdatePicture(ctx context.Context, id int64, picture string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.Picture = picture
	return nil
}

// MemberByID satisfies chat.Directory so the in-memory chat store can
// derive chat headers from this repository's users.
func (r *MemoryRepository) MemberByID(ctx context.Context, id int64) (*chat.Member, error) {
	u, err := r.ByID(ctx, id)
	if err != nil {
		return nil, chat.ErrNotFound
	}
	return &chat.Member{ID: u.ID, Name: u.Name, Username: u.Username, Picture: u.Picture}, nil
}
