package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/hubp2p/exchange-service/internal/infrastructure/auth"
	"github.com/hubp2p/exchange-service/internal/infrastructure/redis"
	"github.com/hubp2p/exchange-service/internal/models"
	"github.com/hubp2p/exchange-service/internal/repository"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type AuthService interface {
	Register(ctx context.Context, username, password string) (int64, error)
	Login(ctx context.Context, username, password string) (string, error)
}

type authService struct {
	userRepo  repository.UserRepository
	redis     redis.RedisClient
	jwtSecret string
}

func NewAuthService(userRepo repository.UserRepository, redisClient redis.RedisClient, jwtSecret string) *authService {
	return &authService{userRepo: userRepo, redis: redisClient, jwtSecret: jwtSecret}
}

func (s *authService) Register(ctx context.Context, username, password string) (int64, error) {
	if username == "" || password == "" {
		return 0, fmt.Errorf("%w: username and password are required", pkgerrors.ErrInvalidInput)
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if existing != nil {
		slog.Warn("username already exists", "username", username, "existing_id", existing.ID)
		return 0, pkgerrors.ErrUsernameExists
	}
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		slog.Error("failed to check user existence", "username", username, "error", err)
		return 0, fmt.Errorf("%w: failed to check user existence", pkgerrors.ErrInternal)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "username", username, "error", err)
		return 0, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		slog.Error("failed to create user", "username", username, "error", err)
		return 0, fmt.Errorf("%w: failed to create user", pkgerrors.ErrInternal)
	}

	slog.Info("user registered", "user_id", user.ID, "username", username)
	return user.ID, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		slog.Error("failed to login", "username", username, "error", err)
		return "", pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Error("invalid password", "username", username)
		return "", pkgerrors.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(s.jwtSecret, user)
	if err != nil {
		slog.Error("failed to generate JWT", "error", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.redis.Set(ctx, fmt.Sprintf("user:%d:token", user.ID), token, auth.TokenTTL); err != nil {
		slog.Error("failed to cache JWT", "user_id", user.ID, "error", err)
	}

	slog.Info("user logged in", "username", username, "user_id", user.ID, "role", user.Role)
	return token, nil
}
