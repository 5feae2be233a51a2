package service

import (
	"context"
	"errors"
	"testing"

	pkgcrypto "github.com/and161185/chitchat/internal/crypto"
	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/model"
)

type fakeUsers struct {
	byHandle map[string]*model.User
	nextID   int64

	createID  int64
	createErr error
	getErr    error

	created *model.User
}

var _ UserStore = (*fakeUsers)(nil)

func (f *fakeUsers) CheckLogIn(_ context.Context, username string, tag int) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byHandle[model.User{Username: username, Tag: tag}.Handle()]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) CreateUser(_ context.Context, username string, pwdHash, salt, publicKey []byte) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	if f.createID != 0 {
		return f.createID, nil
	}
	f.nextID++
	f.created = &model.User{ID: f.nextID, Username: username, Tag: 7, PwdHash: pwdHash, Salt: salt, PublicKey: publicKey}
	return f.nextID, nil
}

func (f *fakeUsers) UserTag(_ context.Context, userID int64) (int, error) {
	if f.created != nil && f.created.ID == userID {
		return f.created.Tag, nil
	}
	return 0, errs.ErrNotFound
}

const strong = "Str0ngPassw0rd!"

func TestAuth_Register(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s := NewAuth(users)
	ctx := context.Background()

	if _, err := s.Register(ctx, "  ", strong, []byte("pk")); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument on empty username, got %v", err)
	}
	if _, err := s.Register(ctx, "alice", strong, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument on missing key, got %v", err)
	}
	if _, err := s.Register(ctx, "alice", "short", []byte("pk")); !errors.Is(err, errs.ErrWeakPassword) {
		t.Fatalf("want ErrWeakPassword, got %v", err)
	}

	id, err := s.Register(ctx, "alice", strong, []byte("pk"))
	if err != nil || id <= 0 {
		t.Fatalf("Register: id=%d err=%v", id, err)
	}
	if len(users.created.Salt) != pkgcrypto.SaltLen {
		t.Fatalf("salt len %d", len(users.created.Salt))
	}
	if !pkgcrypto.VerifyPassword([]byte(strong), users.created.Salt, users.created.PwdHash) {
		t.Fatalf("stored hash does not verify")
	}
	if tag, err := s.UserTag(ctx, id); err != nil || tag != 7 {
		t.Fatalf("UserTag: %d %v", tag, err)
	}

	users.createErr = errs.ErrExhausted
	if _, err := s.Register(ctx, "alice", strong, []byte("pk")); !errors.Is(err, errs.ErrExhausted) {
		t.Fatalf("want ErrExhausted, got %v", err)
	}
}

func TestAuth_Login(t *testing.T) {
	t.Parallel()
	salt, _ := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	u := &model.User{ID: 3, Username: "alice", Tag: 7, Salt: salt, PwdHash: pkgcrypto.HashPassword([]byte(strong), salt)}
	users := &fakeUsers{byHandle: map[string]*model.User{u.Handle(): u}}
	s := NewAuth(users)
	ctx := context.Background()

	got, err := s.Login(ctx, "alice", 7, strong)
	if err != nil || got.ID != 3 {
		t.Fatalf("Login: %+v %v", got, err)
	}
	if _, err := s.Login(ctx, "alice", 7, "wrong"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}
	if _, err := s.Login(ctx, "alice", 8, strong); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on unknown handle, got %v", err)
	}

	users.getErr = errs.ErrStoreUnavailable
	if _, err := s.Login(ctx, "alice", 7, strong); !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Fatalf("want store error propagated, got %v", err)
	}
}
