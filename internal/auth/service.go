// Package auth manages user accounts, password checks and bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

// MinPasswordLength is the shortest password CreateUser and ResetPassword accept.
const MinPasswordLength = 8

var (
	ErrInvalidUser        = errors.New("invalid user")
	ErrUserExists         = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims are carried by every issued token.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret string
	// TokenTTL defaults to 24h.
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Now        func() time.Time
}

type Service struct {
	storage Storage
	opts    Options
	logger  *zap.Logger
}

func NewService(storage Storage, opts Options, logger *zap.Logger) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: storage, opts: opts, logger: logger}
}

// CreateUser stores a new active user with a hashed password.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: username is required", ErrInvalidUser)
	}
	if role != domain.RoleAdmin && role != domain.RolePharmacist {
		return domain.User{}, fmt.Errorf("%w: role must be %s or %s", ErrInvalidUser, domain.RoleAdmin, domain.RolePharmacist)
	}
	hash, err := s.hash(password)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		Username:  username,
		Password:  hash,
		Role:      role,
		IsActive:  true,
		CreatedAt: domain.NewTimestamp(s.opts.Now()),
	}
	if err := s.storage.InsertUser(ctx, &user); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return domain.User{}, fmt.Errorf("%q: %w", username, ErrUserExists)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", zap.Int64("user_id", user.ID), zap.String("username", username), zap.String("role", role))
	user.Password = ""
	return user, nil
}

// Authenticate checks a username and password. Unknown and inactive users get
// the same error as a wrong password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	user, err := s.storage.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, database.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("authenticate: %w", err)
	}
	if !user.IsActive || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		s.logger.Warn("failed login", zap.String("username", username))
		return domain.User{}, ErrInvalidCredentials
	}
	user.Password = ""
	return user, nil
}

func (s *Service) ResetPassword(ctx context.Context, userID int64, newPassword string) error {
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	ok, err := s.storage.UpdatePassword(ctx, userID, hash)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if !ok {
		return fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	s.logger.Info("password reset", zap.Int64("user_id", userID))
	return nil
}

// EnsureAdmin creates the admin account if no user has that username yet.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" {
		return nil
	}
	_, err := s.storage.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("ensure admin: %w", err)
	}
	if _, err := s.CreateUser(ctx, username, password, domain.RoleAdmin); err != nil && !errors.Is(err, ErrUserExists) {
		return fmt.Errorf("ensure admin: %w", err)
	}
	return nil
}

// IssueToken signs an HS256 token for user.
func (s *Service) IssueToken(user domain.User) (string, error) {
	now := s.opts.Now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.opts.Secret))
}

// ParseToken verifies a token issued by IssueToken.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.opts.Secret), nil
	}, jwt.WithTimeFunc(s.opts.Now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, MinPasswordLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("unable to secure password: %w", err)
	}
	return string(hashed), nil
}
