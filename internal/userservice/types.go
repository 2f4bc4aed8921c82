package userservice

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/sushihentaime/blogthread/internal/common"
)

type tokenScope string

const (
	TokenScopeAuthentication tokenScope = "authentication"

	AccessTokenTime time.Duration = 30 * 24 * time.Hour
)

var (
	AnonymousUser = User{}
)

type UserService struct {
	m      *DBModel
	mb     common.MessageProducer
	c      *common.Cache
	logger *slog.Logger
}

type DBModel struct {
	db *sql.DB
}

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Password     Password  `json:"-"`
	ProfileImage string    `json:"profile_image"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"-"`
}

// Summary is the public projection of a user embedded in blog, comment and reply views.
type Summary struct {
	ID           int    `json:"id"`
	Email        string `json:"email"`
	ProfileImage string `json:"profile_image"`
}

type Password struct {
	Plain string `json:"-"`
	hash  []byte `json:"-"`
}

type Token struct {
	Plain  string     `json:"token"`
	Hash   []byte     `json:"-"`
	UserID int        `json:"-"`
	Expiry time.Time  `json:"expiry"`
	Scope  tokenScope `json:"-"`
}

// AuthResult is returned on registration and login.
type AuthResult struct {
	User  *User  `json:"user"`
	Token *Token `json:"authentication_token"`
}
