package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cravier/sweetshop/internal/users"
)

type stubUsers struct {
	byID    map[string]*users.User
	byEmail map[string]*users.User
}

func newStubUsers() *stubUsers {
	return &stubUsers{byID: make(map[string]*users.User), byEmail: make(map[string]*users.User)}
}

func (s *stubUsers) Create(ctx context.Context, u *users.User) error {
	if _, ok := s.byEmail[u.Email]; ok {
		return users.ErrAlreadyExist
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byEmail[u.Email] = &cp
	return nil
}

func (s *stubUsers) GetByID(ctx context.Context, id string) (*users.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, users.ErrNotFound
}

func (s *stubUsers) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, users.ErrNotFound
}

func newService() *Service {
	return &Service{
		Repo:       newStubUsers(),
		Tokens:     NewTokens("test-secret", time.Hour),
		AdminEmail: "admin@sweetshop.com",
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestTokens_RoundTrip(t *testing.T) {
	tk := NewTokens("k", time.Hour)
	raw, err := tk.Issue("user-1")
	require.NoError(t, err)

	sub, err := tk.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestTokens_WrongSecret(t *testing.T) {
	raw, err := NewTokens("a", time.Hour).Issue("user-1")
	require.NoError(t, err)

	_, err = NewTokens("b", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokens_Expired(t *testing.T) {
	raw, err := NewTokens("k", -time.Minute).Issue("user-1")
	require.NoError(t, err)

	_, err = NewTokens("k", -time.Minute).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokens_Garbage(t *testing.T) {
	_, err := NewTokens("k", time.Hour).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRegister_Customer(t *testing.T) {
	svc := newService()
	sess, err := svc.Register(context.Background(), "Ada", "Ada@Example.com", "pw")
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, users.RoleCustomer, sess.User.Role)
	assert.NotEmpty(t, sess.Token)

	sub, err := svc.Tokens.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, sub)
}

func TestRegister_AdminEmail(t *testing.T) {
	svc := newService()
	sess, err := svc.Register(context.Background(), "Root", "ADMIN@sweetshop.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, sess.User.Role)
}

func TestRegister_MissingFields(t *testing.T) {
	svc := newService()
	for _, tc := range []struct{ name, email, pw string }{
		{"", "a@b.c", "pw"},
		{"Ada", "", "pw"},
		{"Ada", "a@b.c", ""},
		{"   ", "a@b.c", "pw"},
	} {
		_, err := svc.Register(context.Background(), tc.name, tc.email, tc.pw)
		assert.ErrorIs(t, err, ErrMissingFields)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newService()
	_, err := svc.Register(context.Background(), "Ada", "a@b.c", "pw")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "Other", "A@B.C", "pw2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	svc := newService()
	_, err := svc.Register(context.Background(), "Ada", "a@b.c", "pw")
	require.NoError(t, err)

	sess, err := svc.Login(context.Background(), " A@B.C ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Ada", sess.User.Name)

	_, err = svc.Login(context.Background(), "a@b.c", "nope")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = svc.Login(context.Background(), "ghost@b.c", "pw")
	assert.ErrorIs(t, err, ErrBadCredentials)
}
