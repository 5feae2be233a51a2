// Package service contains the store-backed operations executed by workers:
// authentication, registration and chat workflows.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgcrypto "github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/model"
)

// UserStore is the credential part of the store.
type UserStore interface {
	CheckLogIn(ctx context.Context, username string, tag int) (*model.User, error)
	CreateUser(ctx context.Context, username string, pwdHash, salt, publicKey []byte) (int64, error)
	UserTag(ctx context.Context, userID int64) (int, error)
}

// Auth authenticates and registers users.
type Auth struct {
	users UserStore
}

// NewAuth constructs Auth over a user store.
func NewAuth(users UserStore) *Auth {
	return &Auth{users: users}
}

// Login verifies (username, tag, password). Unknown users and wrong passwords are
// both reported as errs.ErrUnauthorized.
func (s *Auth) Login(ctx context.Context, username string, tag int, password string) (*model.User, error) {
	u, err := s.users.CheckLogIn(ctx, username, tag)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !pkgcrypto.VerifyPassword([]byte(password), u.Salt, u.PwdHash) {
		return nil, errs.ErrUnauthorized
	}
	return u, nil
}

// Register creates a user with a per-user salt and returns the new id.
// The discriminator is assigned by the store; fetch it with UserTag.
func (s *Auth) Register(ctx context.Context, username, password string, publicKey []byte) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(publicKey) == 0 {
		return 0, fmt.Errorf("register: %w", errs.ErrInvalidArgument)
	}
	if !pkgcrypto.IsSecurePassword(password) {
		return 0, errs.ErrWeakPassword
	}
	salt, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return 0, err
	}
	hash := pkgcrypto.HashPassword([]byte(password), salt)
	return s.users.CreateUser(ctx, username, hash, salt, publicKey)
}

// UserTag returns the discriminator of a user.
func (s *Auth) UserTag(ctx context.Context, userID int64) (int, error) {
	return s.users.UserTag(ctx, userID)
}
