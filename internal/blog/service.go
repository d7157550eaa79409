package blog

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mopstar/mopstar-api/internal/contact"
)

// PostInput carries the fields an administrator submits for a post.
// Image fields hold URLs of already uploaded files.
type PostInput struct {
	Title         string
	Content       string
	MainImage     string
	GalleryImages []string
	Tags          []string
	Category      string
}

// CommentInput carries a reader's comment.
type CommentInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Comment string `json:"comment"`
}

// Service applies blog rules on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service over store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// List returns all posts, newest first, without comments.
func (s *Service) List(ctx context.Context) ([]Post, error) {
	return s.store.ListPosts(ctx)
}

// Get returns one post with its comments, newest first.
func (s *Service) Get(ctx context.Context, id string) (*Post, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return s.store.GetPost(ctx, id)
}

// Create validates in and stores a new post. A main image is required.
func (s *Service) Create(ctx context.Context, in PostInput) (*Post, error) {
	if strings.TrimSpace(in.MainImage) == "" {
		return nil, &ValidationError{Message: "Main image is required"}
	}
	category, err := validatePost(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &Post{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(in.Title),
		Content:       in.Content,
		MainImage:     in.MainImage,
		GalleryImages: nonNil(in.GalleryImages),
		Tags:          cleanTags(in.Tags),
		Category:      category,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreatePost(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return p, nil
}

// Update replaces a post's text fields. Empty image fields keep the
// current images.
func (s *Service) Update(ctx context.Context, id string, in PostInput) (*Post, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	category, err := validatePost(in)
	if err != nil {
		return nil, err
	}

	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Title = strings.TrimSpace(in.Title)
	p.Content = in.Content
	p.Tags = cleanTags(in.Tags)
	p.Category = category
	if in.MainImage != "" {
		p.MainImage = in.MainImage
	}
	if len(in.GalleryImages) > 0 {
		p.GalleryImages = in.GalleryImages
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.store.UpdatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a post and its comments.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	return s.store.DeletePost(ctx, id)
}

// AddComment validates in and attaches it to the post. The body is
// tag-stripped and the email normalized like contact submissions.
func (s *Service) AddComment(ctx context.Context, postID string, in CommentInput) (*Comment, error) {
	if !validID(postID) {
		return nil, ErrNotFound
	}

	name := strings.TrimSpace(in.Name)
	email := contact.NormalizeEmail(in.Email)
	if name == "" || email == "" || strings.TrimSpace(in.Comment) == "" {
		return nil, &ValidationError{Message: "All fields are required"}
	}
	if !contact.ValidEmail(email) {
		return nil, &ValidationError{Message: "Please enter a valid email"}
	}
	body := contact.StripTags(in.Comment)
	if body == "" {
		return nil, &ValidationError{Message: "All fields are required"}
	}
	if utf8.RuneCountInString(body) > MaxCommentLen {
		return nil, &ValidationError{Message: fmt.Sprintf("Comment must be less than %d characters", MaxCommentLen)}
	}

	c := &Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		Name:      name,
		Email:     email,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Comments returns a post's comments, newest first.
func (s *Service) Comments(ctx context.Context, postID string) ([]Comment, error) {
	if !validID(postID) {
		return nil, ErrNotFound
	}
	return s.store.ListComments(ctx, postID)
}

// DeleteComment removes a comment if email matches its author.
func (s *Service) DeleteComment(ctx context.Context, postID, commentID, email string) error {
	email = contact.NormalizeEmail(email)
	if email == "" {
		return &ValidationError{Message: "Email is required to delete comment"}
	}
	if !validID(postID) {
		return ErrNotFound
	}
	if !validID(commentID) {
		return ErrCommentNotFound
	}

	c, err := s.store.GetComment(ctx, postID, commentID)
	if err != nil {
		return err
	}
	if c.Email != email {
		return ErrNotOwner
	}
	return s.store.DeleteComment(ctx, postID, commentID)
}

func validatePost(in PostInput) (Category, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		return "", &ValidationError{Message: "Title and content are required"}
	}
	if len(in.GalleryImages) > MaxGalleryImages {
		return "", &ValidationError{Message: fmt.Sprintf("Gallery images cannot exceed %d", MaxGalleryImages)}
	}
	return ParseCategory(in.Category)
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func validID(id string) bool {
	return uuid.Validate(id) == nil
}
