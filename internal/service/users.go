// users.go — сервис управления пользователями (техники и администраторы).
// Учётные записи создаются одновременно в Keycloak и локальной БД;
// пароль проверяется на сложность до обращения к Keycloak.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/staffmission/dispatch/internal/domain/model"
	"github.com/staffmission/dispatch/internal/domain/rbac"
	"github.com/staffmission/dispatch/internal/domain/validate"
	"github.com/staffmission/dispatch/internal/idclient"
	"github.com/staffmission/dispatch/internal/repository"
)

// UserInput — данные создания пользователя.
type UserInput struct {
	Name     string
	Role     string
	Email    string
	Phone    *string
	Password string
}

// PasswordCheck — результат проверки сложности пароля для ответа API.
type PasswordCheck struct {
	Score int      `json:"score"`
	Unmet []string `json:"unmet,omitempty"`
}

// IdentityProvider — операции Keycloak, используемые сервисом пользователей.
type IdentityProvider interface {
	CreateUser(ctx context.Context, username, email, firstName, lastName, password string) (string, error)
	UpdateUser(ctx context.Context, id string, user *idclient.KeycloakUser) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	ResetPassword(ctx context.Context, id, password string) error
	DeleteUser(ctx context.Context, id string) error
}

// UserService — сервис управления пользователями.
type UserService struct {
	userRepo repository.UserRepository
	idp      IdentityProvider
	logger   *slog.Logger
}

// NewUserService создаёт сервис управления пользователями.
func NewUserService(userRepo repository.UserRepository, idp IdentityProvider, logger *slog.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		idp:      idp,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// CheckPassword возвращает оценку сложности пароля и список
// невыполненных правил. Чистая проверка, без побочных эффектов.
func (s *UserService) CheckPassword(password string) PasswordCheck {
	result := validate.PasswordStrength(password)
	return PasswordCheck{Score: result.Score, Unmet: result.Unmet}
}

// validateInput проверяет поля нового пользователя.
func (s *UserService) validateInput(input *UserInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: имя обязательно", ErrValidation)
	}
	if !rbac.IsValidRole(input.Role) {
		return fmt.Errorf("%w: недопустимая роль %q", ErrValidation, input.Role)
	}
	if email := validate.Email(input.Email); !email.Valid {
		return fmt.Errorf("%w: %s", ErrValidation, email.Message)
	}
	if input.Phone != nil && *input.Phone != "" {
		if phone := validate.Phone(*input.Phone); !phone.Valid {
			return fmt.Errorf("%w: %s", ErrValidation, phone.Message)
		}
	}
	return nil
}

// Create создаёт пользователя: проверка сложности пароля, учётная запись
// в Keycloak, затем локальная запись. При ошибке локального сохранения
// учётная запись в Keycloak удаляется (компенсация).
func (s *UserService) Create(ctx context.Context, input *UserInput) (*model.User, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	// Пароль должен выполнять все правила — не только набрать балл
	if check := validate.PasswordStrength(input.Password); len(check.Unmet) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(check.Unmet, ", "))
	}

	firstName, lastName := splitName(input.Name)
	username := usernameFromEmail(input.Email)

	keycloakID, err := s.idp.CreateUser(ctx, username, input.Email, firstName, lastName, input.Password)
	if err != nil {
		s.logger.Error("Ошибка создания учётной записи в Keycloak",
			slog.String("email", input.Email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrIDPUnavailable, err)
	}

	user := &model.User{
		ID:         uuid.New().String(),
		KeycloakID: &keycloakID,
		Name:       input.Name,
		Role:       input.Role,
		Email:      input.Email,
		Phone:      input.Phone,
		Validated:  false,
		Status:     model.UserStatusActive,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Компенсация: удаляем созданную учётную запись Keycloak
		if delErr := s.idp.DeleteUser(ctx, keycloakID); delErr != nil {
			s.logger.Error("Ошибка компенсирующего удаления в Keycloak",
				slog.String("keycloak_id", keycloakID),
				slog.String("error", delErr.Error()),
			)
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	s.logger.Info("Пользователь создан",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Get возвращает пользователя по ID.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

// GetByKeycloakID возвращает пользователя по идентификатору Keycloak.
func (s *UserService) GetByKeycloakID(ctx context.Context, keycloakID string) (*model.User, error) {
	user, err := s.userRepo.GetByKeycloakID(ctx, keycloakID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

// List возвращает пользователей с фильтрацией по роли и статусу.
func (s *UserService) List(ctx context.Context, role, status *string, limit, offset int) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx, role, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("список пользователей: %w", err)
	}
	return users, nil
}

// Update обновляет имя, email и телефон пользователя.
// Изменение email синхронизируется в Keycloak.
func (s *UserService) Update(ctx context.Context, id string, name, email string, phone *string) (*model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: имя обязательно", ErrValidation)
	}
	if check := validate.Email(email); !check.Valid {
		return nil, fmt.Errorf("%w: %s", ErrValidation, check.Message)
	}
	if phone != nil && *phone != "" {
		if check := validate.Phone(*phone); !check.Valid {
			return nil, fmt.Errorf("%w: %s", ErrValidation, check.Message)
		}
	}

	if user.Email != email && user.KeycloakID != nil {
		firstName, lastName := splitName(name)
		kcUser := &idclient.KeycloakUser{
			Username:  usernameFromEmail(user.Email),
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
			Enabled:   user.Status == model.UserStatusActive,
		}
		if err := s.idp.UpdateUser(ctx, *user.KeycloakID, kcUser); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIDPUnavailable, err)
		}
	}

	user.Name = name
	user.Email = email
	user.Phone = phone

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("обновление пользователя: %w", err)
	}

	return user, nil
}

// Validate подтверждает аккаунт техника (действие администратора).
func (s *UserService) Validate(ctx context.Context, id string) error {
	if err := s.userRepo.SetValidated(ctx, id, true); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("подтверждение пользователя: %w", err)
	}

	s.logger.Info("Аккаунт подтверждён", slog.String("user_id", id))
	return nil
}

// SetStatus включает или отключает учётную запись.
// Жёсткого удаления нет: отключённая запись сохраняет историю назначений.
// Статус синхронизируется в Keycloak.
func (s *UserService) SetStatus(ctx context.Context, id, status string) error {
	if status != model.UserStatusActive && status != model.UserStatusDisabled {
		return fmt.Errorf("%w: недопустимый статус %q", ErrValidation, status)
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if user.KeycloakID != nil {
		enabled := status == model.UserStatusActive
		if err := s.idp.SetEnabled(ctx, *user.KeycloakID, enabled); err != nil {
			return fmt.Errorf("%w: %v", ErrIDPUnavailable, err)
		}
	}

	if err := s.userRepo.SetStatus(ctx, id, status); err != nil {
		return fmt.Errorf("изменение статуса: %w", err)
	}

	s.logger.Info("Статус пользователя изменён",
		slog.String("user_id", id),
		slog.String("status", status),
	)
	return nil
}

// ResetPassword устанавливает новый пароль (с проверкой сложности).
func (s *UserService) ResetPassword(ctx context.Context, id, password string) error {
	if check := validate.PasswordStrength(password); len(check.Unmet) > 0 {
		return fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(check.Unmet, ", "))
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.KeycloakID == nil {
		return fmt.Errorf("%w: пользователь не связан с Keycloak", ErrValidation)
	}

	if err := s.idp.ResetPassword(ctx, *user.KeycloakID, password); err != nil {
		return fmt.Errorf("%w: %v", ErrIDPUnavailable, err)
	}

	s.logger.Info("Пароль пользователя изменён", slog.String("user_id", id))
	return nil
}

// splitName делит полное имя на имя и фамилию по первому пробелу.
func splitName(full string) (first, last string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	first = parts[0]
	if len(parts) > 1 {
		last = parts[1]
	}
	return first, last
}

// usernameFromEmail формирует username из локальной части email.
func usernameFromEmail(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return strings.ToLower(email[:i])
	}
	return strings.ToLower(email)
}
