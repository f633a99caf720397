package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog/internal/config"
	"catalog/internal/models"
	"catalog/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
)

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=6,max=100"`
}

// LoginInput is the payload for Login.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Claims are the custom JWT claims issued at login.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.StandardClaims
}

// AuthService handles registration, login and token validation.
type AuthService struct {
	userRepo repositories.UserRepository
	hasher   PasswordHasher
	jwt      config.JWTConfig
	key      []byte
	now      func() time.Time
	log      *zap.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, hasher PasswordHasher, cfg config.JWTConfig, log *zap.Logger) *AuthService {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &AuthService{
		userRepo: userRepo,
		hasher:   hasher,
		jwt:      cfg,
		key:      []byte(cfg.Key),
		now:      time.Now,
		log:      log,
	}
}

// WithClock replaces the time source used for token issuance and validation.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Register creates a user after checking that neither the username nor the
// email is taken. Surrounding whitespace is trimmed from both.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}

	hash, salt, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		PasswordSalt: salt,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	s.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

func (s *AuthService) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return ErrUserAlreadyExists
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to check username: %w", err)
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return ErrUserAlreadyExists
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}
	return nil
}

// Login verifies the password and issues a signed token. Unknown users and
// wrong passwords both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*models.AuthToken, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash, user.PasswordSalt) {
		s.log.Debug("password mismatch", zap.String("username", in.Username))
		return nil, ErrInvalidCredentials
	}

	return s.issueToken(user)
}

func (s *AuthService) issueToken(user *models.User) (*models.AuthToken, error) {
	now := s.now().UTC()
	expiry := now.Add(s.jwt.TTL)

	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		StandardClaims: jwt.StandardClaims{
			Subject:   fmt.Sprint(user.ID),
			Issuer:    s.jwt.Issuer,
			Audience:  s.jwt.Audience,
			IssuedAt:  now.Unix(),
			ExpiresAt: expiry.Unix(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &models.AuthToken{Token: token, Expiry: time.Unix(expiry.Unix(), 0).UTC()}, nil
}

// ValidateToken parses and validates a JWT token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	parser := jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	now := s.now().Unix()
	switch {
	case !claims.VerifyExpiresAt(now, true):
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	case !claims.VerifyIssuedAt(now, false):
		return nil, fmt.Errorf("%w: token used before issued", ErrInvalidToken)
	case !claims.VerifyIssuer(s.jwt.Issuer, true):
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	case !claims.VerifyAudience(s.jwt.Audience, true):
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	case claims.UserID == 0:
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}
