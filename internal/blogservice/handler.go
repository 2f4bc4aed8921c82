package blogservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sushihentaime/blogthread/internal/common"
	"github.com/sushihentaime/blogthread/internal/userservice"
)

func NewBlogService(db *sql.DB, users UserDirectory, files FileRemover, mb common.MessageProducer, logger *slog.Logger) *BlogService {
	return newBlogService(newBlogModel(db), users, files, mb, logger)
}

func newBlogService(m store, users UserDirectory, files FileRemover, mb common.MessageProducer, logger *slog.Logger) *BlogService {
	return &BlogService{
		m:      m,
		users:  users,
		files:  files,
		mb:     mb,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// CreateBlog creates a new blog owned by req.UserID and returns its detail view.
func (s *BlogService) CreateBlog(ctx context.Context, req *CreateBlogRequest) (*Blog, error) {
	title := sanitizeText(req.Title)
	description := sanitizeText(req.Description)

	v := common.NewValidator()
	validateTitle(v, title)
	validateDescription(v, description)
	validateInt(v, req.UserID, "user_id")
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	blog := &Blog{
		Title:       title,
		Description: description,
		Image:       req.Image,
		UserID:      req.UserID,
		Comments:    []Comment{},
	}

	err := s.m.insert(ctx, blog)
	if err != nil {
		return nil, err
	}

	return s.populate(ctx, blog)
}

// GetBlogs returns the summary view of every blog, newest first.
func (s *BlogService) GetBlogs(ctx context.Context) ([]BlogSummary, error) {
	blogs, err := s.m.list(ctx)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(blogs, func(a, b BlogSummary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return b.ID - a.ID
	})

	ids := make([]int, len(blogs))
	for i := range blogs {
		ids[i] = blogs[i].UserID
	}

	summaries, err := s.users.GetSummaries(ctx, ids...)
	if err != nil {
		return nil, err
	}

	for i := range blogs {
		if u, ok := summaries[blogs[i].UserID]; ok {
			blogs[i].User = &u
		}
	}

	return blogs, nil
}

// GetBlogByID returns the detail view of a blog: owner, comment and reply authors all resolved.
func (s *BlogService) GetBlogByID(ctx context.Context, id int) (*Blog, error) {
	v := common.NewValidator()
	validateInt(v, id, "id")
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	blog, err := s.m.get(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.populate(ctx, blog)
}

// UpdateBlog merge-patches title, description and image. Only the owner may update; anyone else
// gets ErrForbidden and the blog is left untouched.
func (s *BlogService) UpdateBlog(ctx context.Context, callerID, blogID int, patch BlogPatch) (*Blog, error) {
	v := common.NewValidator()
	validateInt(v, callerID, "user_id")
	validateInt(v, blogID, "id")
	if patch.Title != nil {
		title := sanitizeText(*patch.Title)
		validateTitle(v, title)
		patch.Title = &title
	}
	if patch.Description != nil {
		description := sanitizeText(*patch.Description)
		validateDescription(v, description)
		patch.Description = &description
	}
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	var replaced string

	blog, err := s.m.update(ctx, blogID, func(b *Blog) error {
		if b.UserID != callerID {
			return ErrForbidden
		}

		if patch.Title != nil {
			b.Title = *patch.Title
		}
		if patch.Description != nil {
			b.Description = *patch.Description
		}
		if patch.Image != nil && *patch.Image != b.Image {
			replaced = b.Image
			b.Image = *patch.Image
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.removeFile(replaced)

	return s.populate(ctx, blog)
}

// DeleteBlog removes the blog with all of its comments and replies. Only the owner may delete.
func (s *BlogService) DeleteBlog(ctx context.Context, callerID, blogID int) error {
	v := common.NewValidator()
	validateInt(v, callerID, "user_id")
	validateInt(v, blogID, "id")
	if !v.Valid() {
		return v.ValidationError()
	}

	blog, err := s.m.delete(ctx, blogID, func(b *Blog) error {
		if b.UserID != callerID {
			return ErrForbidden
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.removeFile(blog.Image)

	return nil
}

// AddComment appends a comment by callerID to the blog. Any existing user may comment.
// The returned blog is the detail view after the append.
func (s *BlogService) AddComment(ctx context.Context, callerID, blogID int, content string) (*Blog, error) {
	content = sanitizeText(content)

	v := common.NewValidator()
	validateInt(v, callerID, "user_id")
	validateInt(v, blogID, "id")
	validateContent(v, content)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	if err := s.checkAuthor(ctx, callerID); err != nil {
		return nil, err
	}

	blog, err := s.m.update(ctx, blogID, func(b *Blog) error {
		b.Comments = append(b.Comments, Comment{
			ID:        s.uniqueID(func(id string) bool { return b.comment(id) != nil }),
			UserID:    callerID,
			Content:   content,
			CreatedAt: s.now(),
			Replies:   []Reply{},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.populate(ctx, blog)
	if err != nil {
		return nil, err
	}

	s.notifyComment(ctx, detail, callerID, content)

	return detail, nil
}

// AddReply appends a reply by callerID to one comment of the blog. A missing blog yields
// ErrRecordNotFound, a missing comment ErrCommentNotFound; neither writes anything.
func (s *BlogService) AddReply(ctx context.Context, callerID, blogID int, commentID, content string) (*Blog, error) {
	content = sanitizeText(content)

	v := common.NewValidator()
	validateInt(v, callerID, "user_id")
	validateInt(v, blogID, "id")
	validateContent(v, content)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	if commentID == "" {
		return nil, ErrCommentNotFound
	}

	if err := s.checkAuthor(ctx, callerID); err != nil {
		return nil, err
	}

	blog, err := s.m.update(ctx, blogID, func(b *Blog) error {
		c := b.comment(commentID)
		if c == nil {
			return ErrCommentNotFound
		}

		c.Replies = append(c.Replies, Reply{
			ID:        s.uniqueID(func(id string) bool { return c.reply(id) != nil }),
			UserID:    callerID,
			Content:   content,
			CreatedAt: s.now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.populate(ctx, blog)
	if err != nil {
		return nil, err
	}

	s.notifyReply(ctx, detail, commentID, callerID, content)

	return detail, nil
}

// checkAuthor makes sure the author of a new comment or reply exists before anything is written.
func (s *BlogService) checkAuthor(ctx context.Context, userID int) error {
	summaries, err := s.users.GetSummaries(ctx, userID)
	if err != nil {
		return err
	}

	if _, ok := summaries[userID]; !ok {
		return ErrUserForeignKey
	}

	return nil
}

// uniqueID draws identifiers until taken reports false. Ids only need to be unique within their parent.
func (s *BlogService) uniqueID(taken func(string) bool) string {
	for {
		id := s.newID()
		if !taken(id) {
			return id
		}
	}
}

func (s *BlogService) removeFile(ref string) {
	if ref == "" || s.files == nil {
		return
	}

	if err := s.files.Remove(ref); err != nil {
		s.logger.Error("could not remove file", slog.String("file", ref), slog.String("error", err.Error()))
	}
}

// populate resolves every user reference in the blog to its summary with a single directory lookup.
func (s *BlogService) populate(ctx context.Context, blog *Blog) (*Blog, error) {
	ids := []int{blog.UserID}
	for _, c := range blog.Comments {
		ids = append(ids, c.UserID)
		for _, r := range c.Replies {
			ids = append(ids, r.UserID)
		}
	}

	summaries, err := s.users.GetSummaries(ctx, ids...)
	if err != nil {
		return nil, err
	}

	resolve := func(id int) *userservice.Summary {
		u, ok := summaries[id]
		if !ok {
			return nil
		}
		return &u
	}

	blog.User = resolve(blog.UserID)
	for i := range blog.Comments {
		c := &blog.Comments[i]
		c.User = resolve(c.UserID)
		for j := range c.Replies {
			c.Replies[j].User = resolve(c.Replies[j].UserID)
		}
	}

	return blog, nil
}

func (s *BlogService) notifyComment(ctx context.Context, blog *Blog, authorID int, content string) {
	if blog.User == nil || blog.UserID == authorID {
		return
	}

	s.publish(ctx, common.CommentCreatedEvent{
		Kind:      "comment",
		Recipient: blog.User.Email,
		Author:    s.authorEmail(blog, authorID),
		BlogID:    blog.ID,
		BlogTitle: blog.Title,
		Content:   content,
	})
}

func (s *BlogService) notifyReply(ctx context.Context, blog *Blog, commentID string, authorID int, content string) {
	c := blog.comment(commentID)
	if c == nil || c.User == nil || c.UserID == authorID {
		return
	}

	s.publish(ctx, common.CommentCreatedEvent{
		Kind:      "reply",
		Recipient: c.User.Email,
		Author:    s.authorEmail(blog, authorID),
		BlogID:    blog.ID,
		BlogTitle: blog.Title,
		Content:   content,
	})
}

// authorEmail finds the author among the already resolved summaries of the blog.
func (s *BlogService) authorEmail(blog *Blog, authorID int) string {
	if blog.User != nil && blog.UserID == authorID {
		return blog.User.Email
	}
	for _, c := range blog.Comments {
		if c.User != nil && c.UserID == authorID {
			return c.User.Email
		}
		for _, r := range c.Replies {
			if r.User != nil && r.UserID == authorID {
				return r.User.Email
			}
		}
	}
	return ""
}

// publish runs after the write has committed, so failures are only logged.
func (s *BlogService) publish(ctx context.Context, event common.CommentCreatedEvent) {
	if s.mb == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("could not marshal comment event", slog.String("error", err.Error()))
		return
	}

	err = s.mb.Publish(ctx, data, common.CommentCreatedKey, common.BlogExchange)
	if err != nil {
		s.logger.Error("could not publish comment event", slog.Int("blog_id", event.BlogID), slog.String("error", err.Error()))
	}
}

func (b *Blog) comment(id string) *Comment {
	for i := range b.Comments {
		if b.Comments[i].ID == id {
			return &b.Comments[i]
		}
	}
	return nil
}

func (c *Comment) reply(id string) *Reply {
	for i := range c.Replies {
		if c.Replies[i].ID == id {
			return &c.Replies[i]
		}
	}
	return nil
}
