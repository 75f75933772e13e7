package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidUser indicates the input failed validation.
	ErrInvalidUser = errors.New("users: invalid user")
	// ErrUnknownRole indicates the referenced role does not exist.
	ErrUnknownRole = errors.New("users: unknown role")
)

// ServiceConfig describes the dependencies required for participant management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages meeting participants and their roles.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	validate *validator.Validate
}

// NewService constructs the participant service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:       cfg.Database,
		now:      clock,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// ListRoles returns every role ordered by id.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// ListUsers returns every participant ordered by id.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser validates the input, hashes the password and stores the participant.
func (s *Service) CreateUser(ctx context.Context, input UserInput) (int64, error) {
	input.Name = normalize(input.Name)
	input.Surname = normalize(input.Surname)
	input.Telephone = normalize(input.Telephone)
	input.Email = normalize(input.Email)
	if input.Patronymic != nil {
		trimmed := normalize(*input.Patronymic)
		if trimmed == "" {
			input.Patronymic = nil
		} else {
			input.Patronymic = &trimmed
		}
	}
	if err := s.validate.Struct(input); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	var role Role
	err := s.db.WithContext(ctx).Where("id = ?", input.RoleID).Take(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownRole, input.RoleID)
	} else if err != nil {
		return 0, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	user := User{
		Name:         input.Name,
		Surname:      input.Surname,
		Patronymic:   input.Patronymic,
		RoleID:       input.RoleID,
		Telephone:    input.Telephone,
		Email:        input.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return 0, err
	}
	return user.ID, nil
}
