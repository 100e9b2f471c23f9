package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/recipesnap/apiserver/internal/store"
	"github.com/recipesnap/apiserver/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTokenTTL = 24 * time.Hour

	// bcrypt rejects longer inputs.
	maxPasswordBytes = 72
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// AuthService handles signup, login and session tokens. Tokens are HS256
// JWTs whose subject is the username; they cannot be revoked before expiry.
type AuthService struct {
	users    UserRepository
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewAuthService(users UserRepository, jwtSecret string, tokenTTL time.Duration, log logrus.FieldLogger) (*AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthService{
		users:    users,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		now:      time.Now,
		log:      log,
	}, nil
}

// TokenTTL is the lifetime of issued tokens.
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

// Signup registers a user and returns it with a fresh token.
func (s *AuthService) Signup(ctx context.Context, username, email, password string) (types.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case username == "":
		return types.User{}, "", invalid("username", "is required")
	case email == "":
		return types.User{}, "", invalid("email", "is required")
	case password == "":
		return types.User{}, "", invalid("password", "is required")
	case len(password) > maxPasswordBytes:
		return types.User{}, "", invalid("password", "must be at most 72 bytes")
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return types.User{}, "", fmt.Errorf("username already registered: %w", ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, "", err
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return types.User{}, "", fmt.Errorf("email already registered: %w", ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, "", fmt.Errorf("username or email already registered: %w", ErrConflict)
		}
		return types.User{}, "", err
	}

	token, err := s.IssueToken(user.Username)
	if err != nil {
		return types.User{}, "", err
	}

	s.log.WithField("user_id", user.ID).Infof("user %q signed up", user.Username)
	return user, token, nil
}

// Login verifies credentials. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (types.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, "", ErrUnauthenticated
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrUnauthenticated
		}
		return types.User{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, "", ErrUnauthenticated
	}

	token, err := s.IssueToken(user.Username)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// Authenticate resolves a token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (types.User, error) {
	subject, err := s.ParseToken(token)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.users.GetByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, err
	}
	return user, nil
}

func (s *AuthService) IssueToken(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature, algorithm and expiry and returns the
// subject. Every failure is ErrUnauthenticated.
func (s *AuthService) ParseToken(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return "", ErrUnauthenticated
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}
