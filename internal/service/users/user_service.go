package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/repository"
)

type UserUseCase interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, stored string) bool
}

type TokenAuthority interface {
	Issue(user *domain.User) (string, error)
	Verify(token string) (int64, error)
}

type RegisterInput struct {
	Username string
	Password string
	Role     domain.Role
}

type UserService struct {
	users  repository.UserRepository
	hasher PasswordHasher
	tokens TokenAuthority
}

func NewUserService(users repository.UserRepository, hasher PasswordHasher, tokens TokenAuthority) *UserService {
	return &UserService{users: users, hasher: hasher, tokens: tokens}
}

func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, domain.Invalid("username is required")
	}
	if input.Password == "" {
		return nil, domain.Invalid("password is required")
	}
	role := input.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, domain.Invalid("unknown role %q", role)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{Username: username, PasswordHash: hash, Role: role}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.ErrInvalidCredentials
		}
		return "", err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", domain.ErrInvalidCredentials
	}
	return s.tokens.Issue(user)
}

// Authenticate verifies token and resolves it to a live user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnknownUser
		}
		return nil, fmt.Errorf("resolve token user: %w", err)
	}
	return user, nil
}

var _ UserUseCase = (*UserService)(nil)
