package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/auth"
	"github.com/yourusername/stocktester/internal/logger"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/repository"
)

// RegisterInput is the payload of POST /api/v1/auth/register
type RegisterInput struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginInput is the payload of POST /api/v1/auth/login
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// UserService manages accounts and logins
type UserService struct {
	repo       repository.UserRepository
	auth       *auth.Authenticator
	validator  *RequestValidator
	bcryptCost int
	audit      *logger.AuditLogger
}

// NewUserService creates a new user service
func NewUserService(
	repo repository.UserRepository,
	authenticator *auth.Authenticator,
	validator *RequestValidator,
	bcryptCost int,
	log *logrus.Logger,
) *UserService {
	return &UserService{
		repo:       repo,
		auth:       authenticator,
		validator:  validator,
		bcryptCost: bcryptCost,
		audit:      logger.NewAuditLogger(log),
	}
}

// Register creates an account. Duplicate usernames or emails fail with
// models.ErrUsernameTaken or models.ErrEmailTaken.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	verr := &ValidationError{}
	s.validator.structProblems(in, verr)
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.audit.LogUserRegistered(user.ID.String(), user.Username, user.Email)
	return user, nil
}

// Login checks credentials and issues a token. Unknown users and wrong
// passwords both fail with models.ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, in LoginInput, remoteAddr string) (*LoginResponse, error) {
	verr := &ValidationError{}
	s.validator.structProblems(in, verr)
	if err := verr.errOrNil(); err != nil {
		return nil, err
	}

	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if errors.Is(err, models.ErrNotFound) {
		s.audit.LogLogin(in.Username, false, remoteAddr)
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, in.Password); err != nil {
		s.audit.LogLogin(in.Username, false, remoteAddr)
		return nil, err
	}

	token, expires, err := s.auth.IssueToken(user)
	if err != nil {
		return nil, err
	}
	s.audit.LogLogin(user.Username, true, remoteAddr)
	return &LoginResponse{Token: token, ExpiresAt: expires, User: user}, nil
}

// Get returns a user by id
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}
