package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/ree/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/ree/backend/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates no account matches the lookup.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidCredentials indicates a failed username/password login.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
)

// RegistrationRequest carries the fields accepted by account registration.
type RegistrationRequest struct {
	Username        string `json:"username" validate:"notblank,min=3,max=150"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"min=8,max=128"`
	PasswordConfirm string `json:"password_confirm" validate:"eqfield=Password"`
}

type passwordChange struct {
	NewPassword string `json:"new_password" validate:"min=8,max=128"`
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages local accounts and credential checks.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Register validates and stores a new account.
func (s *Service) Register(ctx context.Context, request RegistrationRequest) (User, error) {
	request.Username = normalize(request.Username)
	request.Email = normalizeEmail(request.Email)
	if err := validation.Struct(request); err != nil {
		return User{}, err
	}

	taken := map[string]string{}
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", request.Username).Count(&count).Error; err != nil {
		return User{}, fmt.Errorf("users: username lookup: %w", err)
	}
	if count > 0 {
		taken["username"] = "A user with that username already exists."
	}
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", request.Email).Count(&count).Error; err != nil {
		return User{}, fmt.Errorf("users: email lookup: %w", err)
	}
	if count > 0 {
		taken["email"] = "This field must be unique."
	}
	if len(taken) > 0 {
		return User{}, &validation.Error{Fields: taken}
	}

	hash, err := auth.HashPassword(request.Password)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	user := User{
		Username:     request.Username,
		Email:        request.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	s.logger.Info("user registered", zap.Uint("user_id", user.ID))
	return user, nil
}

// Authenticate verifies the username/password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.FindByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	return user, nil
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, userID uint) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return user, nil
}

// FindByUsername loads an account by its exact username.
func (s *Service) FindByUsername(ctx context.Context, username string) (User, error) {
	name := normalize(username)
	if name == "" {
		return User{}, ErrUserNotFound
	}
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", name).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: find by username: %w", err)
	}
	return user, nil
}

// SetPassword replaces the password of the account.
func (s *Service) SetPassword(ctx context.Context, userID uint, newPassword string) error {
	if err := validation.Struct(passwordChange{NewPassword: newPassword}); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("password_hash", hash)
	if result.Error != nil {
		return fmt.Errorf("users: set password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the account. Owned notes, history and share links go with it through
// foreign key cascades; memberships the user granted keep existing with a null adder.
func (s *Service) Delete(ctx context.Context, userID uint) error {
	result := s.db.WithContext(ctx).Where("id = ?", userID).Delete(&User{})
	if result.Error != nil {
		s.logger.Error("failed to delete user account", zap.Uint("user_id", userID), zap.Error(result.Error))
		return fmt.Errorf("users: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	s.logger.Info("user deleted", zap.Uint("user_id", userID))
	return nil
}
