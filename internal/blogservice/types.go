package blogservice

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/sushihentaime/blogthread/internal/common"
	"github.com/sushihentaime/blogthread/internal/userservice"
)

// Blog is the aggregate root. Comments and their replies are stored with the blog and never on their own.
type Blog struct {
	ID          int                  `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Image       string               `json:"image"`
	UserID      int                  `json:"user_id"`
	User        *userservice.Summary `json:"user"`
	Comments    []Comment            `json:"comments"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Version     int                  `json:"version"`
}

type Comment struct {
	ID        string               `json:"id"`
	UserID    int                  `json:"user_id"`
	User      *userservice.Summary `json:"user"`
	Content   string               `json:"content"`
	CreatedAt time.Time            `json:"created_at"`
	Replies   []Reply              `json:"replies"`
}

type Reply struct {
	ID        string               `json:"id"`
	UserID    int                  `json:"user_id"`
	User      *userservice.Summary `json:"user"`
	Content   string               `json:"content"`
	CreatedAt time.Time            `json:"created_at"`
}

// BlogSummary is the list projection of a blog: the owner is resolved but comments are only counted.
type BlogSummary struct {
	ID           int                  `json:"id"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Image        string               `json:"image"`
	UserID       int                  `json:"user_id"`
	User         *userservice.Summary `json:"user"`
	CommentCount int                  `json:"comment_count"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

type CreateBlogRequest struct {
	Title       string
	Description string
	Image       string
	UserID      int
}

// BlogPatch is a merge patch: nil fields keep their current value.
type BlogPatch struct {
	Title       *string
	Description *string
	Image       *string
}

// UserDirectory resolves user ids to public summaries. Unknown ids are absent from the result.
type UserDirectory interface {
	GetSummaries(ctx context.Context, ids ...int) (map[int]userservice.Summary, error)
}

// FileRemover deletes stored uploads that a blog no longer references.
type FileRemover interface {
	Remove(ref string) error
}

// store persists whole aggregates. update and delete run fn against the locked, freshly loaded
// aggregate and write nothing when fn returns an error.
type store interface {
	insert(ctx context.Context, blog *Blog) error
	get(ctx context.Context, id int) (*Blog, error)
	list(ctx context.Context) ([]BlogSummary, error)
	update(ctx context.Context, id int, fn func(*Blog) error) (*Blog, error)
	delete(ctx context.Context, id int, fn func(*Blog) error) (*Blog, error)
}

type BlogModel struct {
	db *sql.DB
}

type BlogService struct {
	m      store
	users  UserDirectory
	files  FileRemover
	mb     common.MessageProducer
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}
