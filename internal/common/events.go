package common

// UserCreatedEvent is published on UserCreatedKey after a registration commits.
type UserCreatedEvent struct {
	Email string `json:"email"`
}

// CommentCreatedEvent is published on CommentCreatedKey after a comment or reply is appended.
// Kind is "comment" or "reply".
type CommentCreatedEvent struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Author    string `json:"author"`
	BlogID    int    `json:"blog_id"`
	BlogTitle string `json:"blog_title"`
	Content   string `json:"content"`
}
