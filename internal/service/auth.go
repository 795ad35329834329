// Package service contains application services for authentication, tasks and
// offline-sync reconciliation.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/edrozo/tasksync/internal/crypto"
	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/limiter"
	"github.com/edrozo/tasksync/internal/model"
	"github.com/edrozo/tasksync/internal/repository"
)

// AuthService defines account and token operations.
type AuthService interface {
	// Register creates a new user and issues an access token so the client
	// can start syncing immediately.
	Register(ctx context.Context, username, email, password string) (model.Tokens, model.User, error)
	// LoginWithIP applies rate-limiting and authenticates the user.
	LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// GetUser loads the profile for a verified subject id.
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim}
}

// Register creates a new user record with a per-user salt and returns tokens.
func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (model.Tokens, model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return model.Tokens{}, model.User{}, fmt.Errorf("%w: username, email and password are required", errs.ErrValidation)
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	salt, err := pkgcrypto.NewSalt()
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}

	u := model.User{
		ID:        uid,
		Username:  username,
		Email:     email,
		PwdHash:   pkgcrypto.HashPassword([]byte(password), salt),
		PwdSalt:   salt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, &u); err != nil {
		return model.Tokens{}, model.User{}, err
	}

	tok, err := s.issueAccessToken(uid)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, u, nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	if email == "" || password == "" {
		return model.Tokens{}, model.User{}, fmt.Errorf("%w: email and password are required", errs.ErrValidation)
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.PwdSalt, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// a lookup error is masked the same as a wrong password so the
		// response never reveals whether the account exists
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, email, ipHash)

	tok, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, *u, nil
}

// GetUser loads a user profile by id.
func (s *AuthServiceImpl) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if id == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	return s.users.GetByID(ctx, id)
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (model.Tokens, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}
