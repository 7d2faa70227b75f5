package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/bnema/mediadesk/internal/domain"
	"github.com/bnema/mediadesk/internal/infrastructure/logger"
	"github.com/bnema/mediadesk/internal/port"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("expired token")
	ErrInvalidCreds    = errors.New("invalid credentials")
	ErrUserExists      = errors.New("user already exists")
	ErrWrongPassword   = errors.New("wrong password")
	ErrWeakPassword    = errors.New("password does not meet requirements")
	ErrInvalidUsername = errors.New("invalid username")
)

// SessionTTL bounds how long a signed session cookie stays valid.
const SessionTTL = 7 * 24 * time.Hour

func validateUsername(username string) error {
	switch {
	case len(username) < 3:
		return fmt.Errorf("must be at least 3 characters")
	case len(username) > 50:
		return fmt.Errorf("must be at most 50 characters")
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return fmt.Errorf("must contain only letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}

func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: must be at least 8 characters", ErrWeakPassword)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if !hasNumber {
		missing = append(missing, "number")
	}
	if !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: must contain at least one %s", ErrWeakPassword, joinRequirements(missing))
	}
	return nil
}

func joinRequirements(missing []string) string {
	switch len(missing) {
	case 1:
		return missing[0]
	case 2:
		return missing[0] + " and " + missing[1]
	}
	return strings.Join(missing[:len(missing)-1], ", ") + ", and " + missing[len(missing)-1]
}

// AuthService guards the UI behind a single operator account. Sessions are
// "unix:userID:hmac" strings signed with the configured secret.
type AuthService struct {
	store     port.UserStore
	secretKey []byte
	now       func() time.Time
	log       zerolog.Logger
}

func NewAuthService(store port.UserStore, secretKey string) *AuthService {
	return &AuthService{
		store:     store,
		secretKey: []byte(secretKey),
		now:       time.Now,
		log:       logger.WithComponent("auth"),
	}
}

func (s *AuthService) HasUser(ctx context.Context) (bool, error) {
	return s.store.HasUser(ctx)
}

// CreateUser registers the operator account. Only the first call succeeds.
func (s *AuthService) CreateUser(ctx context.Context, username, password string) error {
	hasUser, err := s.store.HasUser(ctx)
	if err != nil {
		return err
	}
	if hasUser {
		return ErrUserExists
	}

	if err := validateUsername(username); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidUsername, err)
	}
	if err := validatePasswordStrength(password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.store.CreateUser(ctx, username, string(hash)); err != nil {
		return err
	}
	s.log.Info().Str("username", username).Msg("operator account created")
	return nil
}

func (s *AuthService) ValidatePassword(ctx context.Context, username, password string) error {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// Login checks credentials and returns a fresh session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if err := s.ValidatePassword(ctx, username, password); err != nil {
		return "", err
	}
	return s.GenerateToken(ctx, username)
}

func (s *AuthService) GenerateToken(ctx context.Context, username string) (string, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return "", err
	}

	payload := strconv.FormatInt(s.now().Unix(), 10) + ":" + strconv.FormatInt(user.ID, 10)
	return payload + ":" + s.sign(payload), nil
}

func (s *AuthService) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	payload := parts[0] + ":" + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(s.sign(payload))) {
		return nil, ErrInvalidToken
	}

	issued, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if s.now().After(time.Unix(issued, 0).Add(SessionTTL)) {
		return nil, ErrExpiredToken
	}

	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrWrongPassword
	}
	if err := validatePasswordStrength(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, user.ID, string(hash))
}

func (s *AuthService) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(payload))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}
