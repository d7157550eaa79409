package blog

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// Store persists posts and comments. Implementations return ErrNotFound for
// unknown posts and ErrCommentNotFound for unknown comments.
type Store interface {
	ListPosts(ctx context.Context) ([]Post, error)
	GetPost(ctx context.Context, id string) (*Post, error)
	CreatePost(ctx context.Context, p *Post) error
	UpdatePost(ctx context.Context, p *Post) error
	DeletePost(ctx context.Context, id string) error

	AddComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, postID string) ([]Comment, error)
	GetComment(ctx context.Context, postID, commentID string) (*Comment, error)
	DeleteComment(ctx context.Context, postID, commentID string) error
}

// MemoryStore keeps posts in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	posts    map[string]Post
	comments map[string][]Comment
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:    make(map[string]Post),
		comments: make(map[string][]Comment),
	}
}

func (m *MemoryStore) ListPosts(context.Context) ([]Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	posts := make([]Post, 0, len(m.posts))
	for _, p := range m.posts {
		posts = append(posts, clonePost(p))
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts, nil
}

func (m *MemoryStore) GetPost(_ context.Context, id string) (*Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clonePost(p)
	out.Comments = m.sortedComments(id)
	return &out, nil
}

func (m *MemoryStore) CreatePost(_ context.Context, p *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = clonePost(*p)
	return nil
}

func (m *MemoryStore) UpdatePost(_ context.Context, p *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[p.ID]; !ok {
		return ErrNotFound
	}
	m.posts[p.ID] = clonePost(*p)
	return nil
}

func (m *MemoryStore) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.posts, id)
	delete(m.comments, id)
	return nil
}

func (m *MemoryStore) AddComment(_ context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[c.PostID]; !ok {
		return ErrNotFound
	}
	m.comments[c.PostID] = append(m.comments[c.PostID], *c)
	return nil
}

func (m *MemoryStore) ListComments(_ context.Context, postID string) ([]Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.posts[postID]; !ok {
		return nil, ErrNotFound
	}
	return m.sortedComments(postID), nil
}

func (m *MemoryStore) GetComment(_ context.Context, postID, commentID string) (*Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.comments[postID] {
		if c.ID == commentID {
			return &c, nil
		}
	}
	return nil, ErrCommentNotFound
}

func (m *MemoryStore) DeleteComment(_ context.Context, postID, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.comments[postID]
	for i, c := range list {
		if c.ID == commentID {
			m.comments[postID] = slices.Delete(list, i, i+1)
			return nil
		}
	}
	return ErrCommentNotFound
}

// sortedComments returns a post's comments newest first. Callers hold mu.
func (m *MemoryStore) sortedComments(postID string) []Comment {
	out := slices.Clone(m.comments[postID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if out == nil {
		out = []Comment{}
	}
	return out
}

func clonePost(p Post) Post {
	p.GalleryImages = slices.Clone(p.GalleryImages)
	p.Tags = slices.Clone(p.Tags)
	p.Comments = nil
	return p
}
