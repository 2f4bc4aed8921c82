package blogservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrUserForeignKey  = errors.New("user_id does not exist")
	ErrForbidden       = errors.New("caller does not own the blog")
)

func newBlogModel(db *sql.DB) *BlogModel {
	return &BlogModel{db: db}
}

// ForeignKeyError is a helper function to check if the error is a foreign key constraint error.
func ForeignKeyError(err error, name string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "23503" && pqErr.Constraint == name {
			return true
		}
	}

	return false
}

// replyDoc and commentDoc are the stored shapes of the embedded collections in blogs.comments.
type replyDoc struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type commentDoc struct {
	ID        string     `json:"id"`
	UserID    int        `json:"user_id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	Replies   []replyDoc `json:"replies"`
}

func encodeComments(comments []Comment) ([]byte, error) {
	docs := make([]commentDoc, len(comments))
	for i, c := range comments {
		replies := make([]replyDoc, len(c.Replies))
		for j, r := range c.Replies {
			replies[j] = replyDoc{ID: r.ID, UserID: r.UserID, Content: r.Content, CreatedAt: r.CreatedAt}
		}
		docs[i] = commentDoc{ID: c.ID, UserID: c.UserID, Content: c.Content, CreatedAt: c.CreatedAt, Replies: replies}
	}

	return json.Marshal(docs)
}

func decodeComments(data []byte) ([]Comment, error) {
	var docs []commentDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("could not decode comments: %w", err)
	}

	comments := make([]Comment, len(docs))
	for i, d := range docs {
		replies := make([]Reply, len(d.Replies))
		for j, r := range d.Replies {
			replies[j] = Reply{ID: r.ID, UserID: r.UserID, Content: r.Content, CreatedAt: r.CreatedAt}
		}
		comments[i] = Comment{ID: d.ID, UserID: d.UserID, Content: d.Content, CreatedAt: d.CreatedAt, Replies: replies}
	}

	return comments, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlog(row rowScanner) (*Blog, error) {
	var (
		blog     Blog
		comments []byte
	)

	err := row.Scan(&blog.ID, &blog.Title, &blog.Description, &blog.Image, &blog.UserID, &comments, &blog.CreatedAt, &blog.UpdatedAt, &blog.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}

	blog.Comments, err = decodeComments(comments)
	if err != nil {
		return nil, err
	}

	return &blog, nil
}

func (m *BlogModel) insert(ctx context.Context, blog *Blog) error {
	query := `
		INSERT INTO blogs (title, description, image, user_id, comments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at, version`

	comments, err := encodeComments(blog.Comments)
	if err != nil {
		return err
	}

	err = m.db.QueryRowContext(ctx, query, blog.Title, blog.Description, blog.Image, blog.UserID, comments).Scan(&blog.ID, &blog.CreatedAt, &blog.UpdatedAt, &blog.Version)
	if err != nil {
		switch {
		case ForeignKeyError(err, "blogs_user_id_fkey"):
			return ErrUserForeignKey
		default:
			return err
		}
	}

	return nil
}

func (m *BlogModel) get(ctx context.Context, id int) (*Blog, error) {
	query := `
		SELECT id, title, description, image, user_id, comments, created_at, updated_at, version
		FROM blogs
		WHERE id = $1`

	return scanBlog(m.db.QueryRowContext(ctx, query, id))
}

// list returns every blog, newest first. There is no paging: the result grows with the table.
func (m *BlogModel) list(ctx context.Context) ([]BlogSummary, error) {
	query := `
		SELECT id, title, description, image, user_id, jsonb_array_length(comments), created_at, updated_at
		FROM blogs
		ORDER BY created_at DESC, id DESC`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blogs := []BlogSummary{}
	for rows.Next() {
		var b BlogSummary
		err := rows.Scan(&b.ID, &b.Title, &b.Description, &b.Image, &b.UserID, &b.CommentCount, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, err
		}
		blogs = append(blogs, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return blogs, nil
}

// lockBlog loads the blog inside tx and holds its row lock until tx ends, so every
// read-check-write on one aggregate is serialized.
func lockBlog(ctx context.Context, tx *sql.Tx, id int) (*Blog, error) {
	query := `
		SELECT id, title, description, image, user_id, comments, created_at, updated_at, version
		FROM blogs
		WHERE id = $1
		FOR UPDATE`

	return scanBlog(tx.QueryRowContext(ctx, query, id))
}

func (m *BlogModel) update(ctx context.Context, id int, fn func(*Blog) error) (*Blog, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	blog, err := lockBlog(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(blog); err != nil {
		return nil, err
	}

	comments, err := encodeComments(blog.Comments)
	if err != nil {
		return nil, err
	}

	// user_id is never written after insert
	query := `
		UPDATE blogs
		SET title = $1, description = $2, image = $3, comments = $4, updated_at = NOW(), version = version + 1
		WHERE id = $5
		RETURNING updated_at, version`

	err = tx.QueryRowContext(ctx, query, blog.Title, blog.Description, blog.Image, comments, blog.ID).Scan(&blog.UpdatedAt, &blog.Version)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return blog, nil
}

func (m *BlogModel) delete(ctx context.Context, id int, fn func(*Blog) error) (*Blog, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	blog, err := lockBlog(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(blog); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM blogs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rows != 1 {
		return nil, fmt.Errorf("expected 1 row to be affected, got %d", rows)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return blog, nil
}
