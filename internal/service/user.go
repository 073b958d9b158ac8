package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chirp/chirp/internal/model"
	"github.com/chirp/chirp/internal/repository"
)

// User service errors.
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrUserNotFound = errors.New("user not found")
)

// Intentionally loose; the mail exchanger is the real validator.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// UserService handles user registration and administration.
type UserService struct {
	repo *repository.Repository
}

// NewUserService creates a new UserService.
func NewUserService(repo *repository.Repository) *UserService {
	return &UserService{repo: repo}
}

// RegisterUser registers an account by email, get-or-create semantics:
// a duplicate registration returns the existing account rather than an
// error. The created flag reports whether a new account was made.
func (s *UserService) RegisterUser(ctx context.Context, email string) (*model.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(email) {
		return nil, false, ErrInvalidEmail
	}

	user := &model.User{
		ID:        uuid.NewString(),
		Email:     email,
		IsAdmin:   false,
		CreatedAt: time.Now().UTC(),
	}

	stored, err := s.repo.GetOrCreateUser(ctx, user)
	if err != nil {
		return nil, false, fmt.Errorf("failed to register user: %w", err)
	}

	return stored, stored.ID == user.ID, nil
}

// GetUser retrieves a user by ID.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// PromoteAdmin grants admin rights to a user. Only admins may promote.
func (s *UserService) PromoteAdmin(ctx context.Context, actor *model.User, userID string) (*model.User, error) {
	if actor == nil || !actor.IsAdmin {
		return nil, fmt.Errorf("%w: admin rights required", ErrForbidden)
	}

	if err := s.repo.SetUserAdmin(ctx, userID, true); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return s.GetUser(ctx, userID)
}
