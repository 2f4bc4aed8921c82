package userservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/sushihentaime/blogthread/internal/common"
)

var (
	ErrAuthenticationFailure = errors.New("invalid authentication credentials")
)

func NewUserService(db *sql.DB, mb common.MessageProducer, c *common.Cache, logger *slog.Logger) *UserService {
	return &UserService{
		m:      newUserModel(db),
		mb:     mb,
		c:      c,
		logger: logger,
	}
}

// CreateUser creates a new user account, signs it in and publishes a user.created event.
// profileImage is an opaque reference to an already stored upload and may be empty.
func (s *UserService) CreateUser(ctx context.Context, email, password, profileImage string) (*AuthResult, error) {
	v := common.NewValidator()
	validateEmail(v, email)
	validatePassword(v, password)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	u := User{
		Email:        email,
		ProfileImage: profileImage,
	}

	err := u.Password.set(password)
	if err != nil {
		return nil, err
	}

	err = s.m.insertUser(ctx, &u)
	if err != nil {
		return nil, err
	}

	token, err := s.m.createToken(ctx, u.ID, AccessTokenTime, TokenScopeAuthentication)
	if err != nil {
		return nil, err
	}

	// the account exists at this point, a lost welcome mail is not worth failing the registration
	s.publishUserCreated(ctx, u.Email)

	return &AuthResult{User: &u, Token: token}, nil
}

func (s *UserService) publishUserCreated(ctx context.Context, email string) {
	data, err := json.Marshal(common.UserCreatedEvent{Email: email})
	if err != nil {
		s.logger.Error("could not marshal user created event", slog.String("error", err.Error()))
		return
	}

	err = s.mb.Publish(ctx, data, common.UserCreatedKey, common.UserExchange)
	if err != nil {
		s.logger.Error("could not publish user created event", slog.String("email", email), slog.String("error", err.Error()))
	}
}

// LoginUser checks the credentials and issues a fresh access token.
func (s *UserService) LoginUser(ctx context.Context, email, password string) (*AuthResult, error) {
	v := common.NewValidator()
	validateEmail(v, email)
	validatePasswordPresent(v, password)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	user, err := s.m.getUserByEmail(ctx, email)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, ErrAuthenticationFailure
		default:
			return nil, err
		}
	}

	ok, err := user.Password.compare(password)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrAuthenticationFailure
	}

	err = s.m.deleteExpiredTokens(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.m.createToken(ctx, user.ID, AccessTokenTime, TokenScopeAuthentication)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByAccessToken resolves a bearer token to its user. Lookups are cached until the cache TTL
// or the token expiry, whichever comes first.
func (s *UserService) GetUserByAccessToken(ctx context.Context, token string) (*User, error) {
	v := common.NewValidator()
	ValidateToken(v, token)
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	hash := hashToken(token)
	key := common.CacheKeyUserByAccessToken(hash)

	if cached, ok := s.c.Get(key); ok {
		u := *cached.(*User)
		return &u, nil
	}

	user, expiry, err := s.m.getUserByToken(ctx, TokenScopeAuthentication, hash)
	if err != nil {
		return nil, err
	}

	// a cached lookup must not outlive the token itself
	cached := *user
	s.c.SetUntil(key, &cached, expiry)

	return user, nil
}

// LogoutUser revokes every access token of the user.
func (s *UserService) LogoutUser(ctx context.Context, userId int) error {
	v := common.NewValidator()
	validateInt(v, userId, "user_id")
	if !v.Valid() {
		return v.ValidationError()
	}

	err := s.m.deleteTokens(ctx, userId, TokenScopeAuthentication)
	if err != nil {
		return err
	}

	s.evictUser(userId)

	return nil
}

func (s *UserService) GetUser(ctx context.Context, id int) (*User, error) {
	v := common.NewValidator()
	validateInt(v, id, "id")
	if !v.Valid() {
		return nil, v.ValidationError()
	}

	return s.m.getUserByID(ctx, id)
}

// UpdateProfileImage replaces the avatar reference. It is the only mutable part of a user.
// The reference it replaced is returned so the caller can remove the old file; it is empty
// when there was none or the reference did not change.
func (s *UserService) UpdateProfileImage(ctx context.Context, id int, profileImage string) (*User, string, error) {
	v := common.NewValidator()
	validateInt(v, id, "id")
	v.Check(profileImage != "", "profile_image", "must be provided")
	if !v.Valid() {
		return nil, "", v.ValidationError()
	}

	user, err := s.m.getUserByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var replaced string
	if user.ProfileImage != profileImage {
		replaced = user.ProfileImage
	}
	user.ProfileImage = profileImage

	// the version check makes a concurrent update fail with ErrEditConflict, so only one caller sees replaced
	err = s.m.updateProfileImage(ctx, user)
	if err != nil {
		return nil, "", err
	}

	s.evictUser(id)

	return user, replaced, nil
}

// GetSummaries resolves user ids to their public summaries. Unknown ids are left out of the result.
func (s *UserService) GetSummaries(ctx context.Context, ids ...int) (map[int]Summary, error) {
	seen := make(map[int]struct{}, len(ids))
	unique := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	if len(unique) == 0 {
		return map[int]Summary{}, nil
	}

	return s.m.getSummaries(ctx, unique)
}

func (s *UserService) evictUser(id int) {
	s.c.DeletePrefix(common.CacheKeyUserByAccessTokenPrefix(), func(v interface{}) bool {
		u, ok := v.(*User)
		return ok && u.ID == id
	})
}

func (u *User) IsAnonymous() bool {
	return u == &AnonymousUser
}

func (u *User) Summary() Summary {
	return Summary{
		ID:           u.ID,
		Email:        u.Email,
		ProfileImage: u.ProfileImage,
	}
}
