package blog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// foreignKeyViolation is the Postgres SQLSTATE for a missing parent row.
const foreignKeyViolation = "23503"

const schema = `
CREATE TABLE IF NOT EXISTS blog_posts (
	id             UUID PRIMARY KEY,
	title          TEXT NOT NULL,
	content        TEXT NOT NULL,
	main_image     TEXT NOT NULL,
	gallery_images TEXT[] NOT NULL DEFAULT '{}',
	tags           TEXT[] NOT NULL DEFAULT '{}',
	category       TEXT NOT NULL DEFAULT 'Other',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS blog_comments (
	id         UUID PRIMARY KEY,
	post_id    UUID NOT NULL REFERENCES blog_posts(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	email      TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS blog_comments_post_created_idx ON blog_comments (post_id, created_at DESC);
`

const postColumns = `id, title, content, main_image, gallery_images, tags, category, created_at, updated_at`

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens and pings a database using the lib/pq driver.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewPostgresStore creates a PostgresStore over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the blog tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate blog schema: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (Post, error) {
	var p Post
	var category string
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.MainImage,
		pq.Array(&p.GalleryImages), pq.Array(&p.Tags), &category,
		&p.CreatedAt, &p.UpdatedAt)
	p.Category = Category(category)
	return p, err
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM blog_posts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (*Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM blog_posts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	comments, err := s.queryComments(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Comments = comments
	return &p, nil
}

func (s *PostgresStore) CreatePost(ctx context.Context, p *Post) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blog_posts (`+postColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Title, p.Content, p.MainImage,
		pq.Array(p.GalleryImages), pq.Array(p.Tags), string(p.Category),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePost(ctx context.Context, p *Post) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE blog_posts SET title = $2, content = $3, main_image = $4, gallery_images = $5,
			tags = $6, category = $7, updated_at = $8 WHERE id = $1`,
		p.ID, p.Title, p.Content, p.MainImage,
		pq.Array(p.GalleryImages), pq.Array(p.Tags), string(p.Category), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return expectOneRow(res, ErrNotFound)
}

func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blog_posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return expectOneRow(res, ErrNotFound)
}

func (s *PostgresStore) AddComment(ctx context.Context, c *Comment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blog_comments (id, post_id, name, email, body, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.PostID, c.Name, c.Email, c.Body, c.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blog_posts WHERE id = $1)`, postID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check post: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return s.queryComments(ctx, postID)
}

func (s *PostgresStore) GetComment(ctx context.Context, postID, commentID string) (*Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, name, email, body, created_at FROM blog_comments WHERE id = $1 AND post_id = $2`,
		commentID, postID).Scan(&c.ID, &c.PostID, &c.Name, &c.Email, &c.Body, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, postID, commentID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blog_comments WHERE id = $1 AND post_id = $2`, commentID, postID)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return expectOneRow(res, ErrCommentNotFound)
}

func (s *PostgresStore) queryComments(ctx context.Context, postID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, name, email, body, created_at FROM blog_comments
			WHERE post_id = $1 ORDER BY created_at DESC`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.Name, &c.Email, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
