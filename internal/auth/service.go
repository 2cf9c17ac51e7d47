package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/cravier/sweetshop/internal/users"
)

var (
	ErrBadCredentials = errors.New("invalid email or password")
	ErrEmailTaken     = errors.New("user already exists")
	ErrMissingFields  = errors.New("name, email and password are required")
)

// Service handles registration and login. Role assignment is deliberately
// dumb: the configured admin email gets the admin role, everyone else is a
// customer.
type Service struct {
	Repo       users.Repository
	Tokens     *Tokens
	AdminEmail string
}

type Session struct {
	User  *users.User
	Token string
}

func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	role := users.RoleCustomer
	if email == strings.ToLower(s.AdminEmail) {
		role = users.RoleAdmin
	}

	u := &users.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		if errors.Is(err, users.ErrAlreadyExist) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return s.session(u)
}

func (s *Service) session(u *users.User) (*Session, error) {
	tok, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: tok}, nil
}
