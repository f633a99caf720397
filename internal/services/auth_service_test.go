package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalog/internal/config"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

var (
	testJWT = config.JWTConfig{
		Key:      "test_jwt_secret_key_0123456789",
		Issuer:   "catalog-test",
		Audience: "catalog-test-clients",
		TTL:      time.Hour,
	}
	fixedNow = time.Date(2025, 6, 9, 7, 37, 18, 0, time.UTC)
)

func newAuthService(repo repositories.UserRepository) *services.AuthService {
	return services.NewAuthService(repo, services.HMACHasher{}, testJWT, zap.NewNop()).
		WithClock(func() time.Time { return fixedNow })
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	authService := newAuthService(repositories.NewMemoryUserRepository())

	user, err := authService.Register(ctx, services.RegisterInput{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Len(t, user.PasswordSalt, 128)
	assert.Len(t, user.PasswordHash, 64)
	assert.NotEqual(t, []byte("password123"), user.PasswordHash)

	token, err := authService.Login(ctx, services.LoginInput{Username: "testuser", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, fixedNow.Add(time.Hour), token.Expiry)

	claims, err := authService.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, testJWT.Issuer, claims.Issuer)
	assert.Equal(t, testJWT.Audience, claims.Audience)
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), claims.ExpiresAt)
}

func TestAuthService_RegisterTrimsIdentity(t *testing.T) {
	ctx := context.Background()
	authService := newAuthService(repositories.NewMemoryUserRepository())

	user, err := authService.Register(ctx, services.RegisterInput{Username: "  alice ", Email: " alice@example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)

	_, err = authService.Register(ctx, services.RegisterInput{Username: "alice", Email: "other@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, services.ErrUserAlreadyExists)

	_, err = authService.Login(ctx, services.LoginInput{Username: " alice ", Password: "secret1"})
	assert.NoError(t, err)
}

func TestAuthService_LoginRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	authService := newAuthService(repositories.NewMemoryUserRepository())

	_, err := authService.Register(ctx, services.RegisterInput{Username: "testuser", Email: "test@example.com", Password: "password123"})
	require.NoError(t, err)

	for _, password := range []string{"password124", "Password123", "password1234", "passwor"} {
		_, err := authService.Login(ctx, services.LoginInput{Username: "testuser", Password: password})
		assert.ErrorIs(t, err, services.ErrInvalidCredentials, password)
	}
}

func TestAuthService_LoginUnknownUserLooksLikeWrongPassword(t *testing.T) {
	ctx := context.Background()
	authService := newAuthService(repositories.NewMemoryUserRepository())

	_, err := authService.Login(ctx, services.LoginInput{Username: "ghost", Password: "password123"})
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestAuthService_RegisterDuplicates(t *testing.T) {
	ctx := context.Background()
	authService := newAuthService(repositories.NewMemoryUserRepository())

	_, err := authService.Register(ctx, services.RegisterInput{Username: "testuser", Email: "test@example.com", Password: "password123"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input services.RegisterInput
	}{
		{"same username", services.RegisterInput{Username: "testuser", Email: "other@example.com", Password: "different"}},
		{"same email", services.RegisterInput{Username: "otheruser", Email: "test@example.com", Password: "password123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authService.Register(ctx, tt.input)
			assert.ErrorIs(t, err, services.ErrUserAlreadyExists)
		})
	}
}

func TestAuthService_RegisterRaceMapsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := newAuthService(mockRepo)

	mockRepo.On("GetByUsername", ctx, "testuser").Return(nil, repositories.ErrNotFound).Once()
	mockRepo.On("GetByEmail", ctx, "test@example.com").Return(nil, repositories.ErrNotFound).Once()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*models.User")).Return(repositories.ErrDuplicateKey).Once()

	_, err := authService.Register(ctx, services.RegisterInput{Username: "testuser", Email: "test@example.com", Password: "password123"})
	assert.ErrorIs(t, err, services.ErrUserAlreadyExists)
	mockRepo.AssertExpectations(t)
}

func TestAuthService_RegisterRepositoryFailure(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := newAuthService(mockRepo)

	mockRepo.On("GetByUsername", ctx, "testuser").Return(nil, errors.New("connection reset")).Once()

	_, err := authService.Register(ctx, services.RegisterInput{Username: "testuser", Email: "test@example.com", Password: "password123"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, services.ErrUserAlreadyExists)
	assert.Contains(t, err.Error(), "connection reset")
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_LoginRepositoryFailure(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := newAuthService(mockRepo)

	mockRepo.On("GetByUsername", ctx, "testuser").Return(nil, errors.New("connection reset")).Once()

	_, err := authService.Login(ctx, services.LoginInput{Username: "testuser", Password: "password123"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	authService := newAuthService(new(MockUserRepository))
	long := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'a'
		}
		return string(b)
	}

	tests := []struct {
		name    string
		input   services.RegisterInput
		wantMsg string
	}{
		{"missing username", services.RegisterInput{Email: "a@example.com", Password: "secret1"}, "Username is required"},
		{"blank username", services.RegisterInput{Username: "   ", Email: "a@example.com", Password: "secret1"}, "Username is required"},
		{"blank email", services.RegisterInput{Username: "alice", Email: " \t ", Password: "secret1"}, "Email is required"},
		{"long username", services.RegisterInput{Username: long(51), Email: "a@example.com", Password: "secret1"}, "Username cannot exceed 50 characters"},
		{"bad email", services.RegisterInput{Username: "alice", Email: "not-an-email", Password: "secret1"}, "Invalid email address"},
		{"short password", services.RegisterInput{Username: "alice", Email: "a@example.com", Password: "12345"}, "Password must be at least 6 characters"},
		{"long password", services.RegisterInput{Username: "alice", Email: "a@example.com", Password: long(101)}, "Password cannot exceed 100 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authService.Register(context.Background(), tt.input)
			var verr *services.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Errors, tt.wantMsg)
		})
	}
}

func TestAuthService_SamePasswordDifferentHashes(t *testing.T) {
	ctx := context.Background()
	authService := newAuthService(repositories.NewMemoryUserRepository())

	a, err := authService.Register(ctx, services.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	b, err := authService.Register(ctx, services.RegisterInput{Username: "bob", Email: "bob@example.com", Password: "password123"})
	require.NoError(t, err)

	assert.NotEqual(t, a.PasswordSalt, b.PasswordSalt)
	assert.NotEqual(t, a.PasswordHash, b.PasswordHash)
}

func TestAuthService_ValidateToken(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemoryUserRepository()
	authService := newAuthService(repo)

	_, err := authService.Register(ctx, services.RegisterInput{Username: "testuser", Email: "test@example.com", Password: "password123"})
	require.NoError(t, err)
	token, err := authService.Login(ctx, services.LoginInput{Username: "testuser", Password: "password123"})
	require.NoError(t, err)

	sign := func(claims services.Claims, key string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	valid := services.Claims{
		UserID:   1,
		Username: "testuser",
		StandardClaims: jwt.StandardClaims{
			Issuer:    testJWT.Issuer,
			Audience:  testJWT.Audience,
			IssuedAt:  fixedNow.Unix(),
			ExpiresAt: fixedNow.Add(time.Hour).Unix(),
		},
	}

	t.Run("expired", func(t *testing.T) {
		later := services.NewAuthService(repo, services.HMACHasher{}, testJWT, zap.NewNop()).
			WithClock(func() time.Time { return fixedNow.Add(61 * time.Minute) })
		_, err := later.ValidateToken(token.Token)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := authService.ValidateToken(sign(valid, "another_secret_key_0123456789"))
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := valid
		c.Issuer = "someone-else"
		_, err := authService.ValidateToken(sign(c, testJWT.Key))
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := valid
		c.Audience = "someone-else"
		_, err := authService.ValidateToken(sign(c, testJWT.Key))
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		s, err := jwt.NewWithClaims(jwt.SigningMethodNone, valid).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = authService.ValidateToken(s)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := authService.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("hand signed valid token", func(t *testing.T) {
		claims, err := authService.ValidateToken(sign(valid, testJWT.Key))
		require.NoError(t, err)
		assert.Equal(t, uint(1), claims.UserID)
	})
}
