// Package blog manages blog posts and their reader comments.
package blog

import (
	"errors"
	"fmt"
	"time"
)

// Category groups posts on the blog index.
type Category string

const (
	CategoryFeatured   Category = "Featured"
	CategoryAdvice     Category = "Advice"
	CategoryGuidelines Category = "Guidelines"
	CategoryTips       Category = "Tips"
	CategoryOther      Category = "Other"
)

// ParseCategory returns the category named s, or CategoryOther when s is empty.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case "":
		return CategoryOther, nil
	case CategoryFeatured, CategoryAdvice, CategoryGuidelines, CategoryTips, CategoryOther:
		return c, nil
	default:
		return "", &ValidationError{Message: fmt.Sprintf("Invalid category %q", s)}
	}
}

const (
	// MaxGalleryImages caps the gallery of a single post.
	MaxGalleryImages = 5
	// MaxCommentLen caps a comment body, counted after tags are stripped.
	MaxCommentLen = 500
)

// Post is a published blog article.
type Post struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	MainImage     string    `json:"mainImage"`
	GalleryImages []string  `json:"galleryImages"`
	Tags          []string  `json:"tags"`
	Category      Category  `json:"category"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Comments      []Comment `json:"comments,omitempty"`
}

// Comment is a reader comment on a post. Email is stored normalized and
// is the only proof of ownership when deleting, so it is never encoded.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Name      string    `json:"name"`
	Email     string    `json:"-"`
	Body      string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	// ErrNotFound means the post does not exist.
	ErrNotFound = errors.New("blog not found")
	// ErrCommentNotFound means the comment does not exist on the post.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrNotOwner means the email given does not match the comment's author.
	ErrNotOwner = errors.New("comment belongs to another author")
)

// ValidationError is a user-facing input problem.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
