package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/staffmission/dispatch/internal/domain/model"
)

// UserRepository — интерфейс CRUD для таблицы users.
// Жёсткого удаления нет: пользователи переводятся в status=disabled.
type UserRepository interface {
	// Create создаёт нового пользователя.
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по UUID.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByKeycloakID возвращает пользователя по UUID в Keycloak.
	GetByKeycloakID(ctx context.Context, keycloakID string) (*model.User, error)
	// List возвращает пользователей с фильтрацией по роли и статусу.
	List(ctx context.Context, role, status *string, limit, offset int) ([]*model.User, error)
	// Update обновляет пользователя.
	Update(ctx context.Context, u *model.User) error
	// SetStatus меняет статус пользователя (active, disabled).
	SetStatus(ctx context.Context, id, status string) error
	// SetValidated меняет флаг подтверждения аккаунта.
	SetValidated(ctx context.Context, id string, validated bool) error
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, keycloak_id, name, role, email, phone, validated, status, created_at, updated_at`

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, keycloak_id, name, role, email, phone, validated, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.KeycloakID, u.Name, u.Role, u.Email, u.Phone, u.Validated, u.Status,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email или keycloak_id уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *userRepo) GetByKeycloakID(ctx context.Context, keycloakID string) (*model.User, error) {
	return r.getBy(ctx, "keycloak_id", keycloakID)
}

func (r *userRepo) getBy(ctx context.Context, column, value string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, userColumns, column)

	u := &model.User{}
	err := r.db.QueryRow(ctx, query, value).Scan(
		&u.ID, &u.KeycloakID, &u.Name, &u.Role, &u.Email, &u.Phone,
		&u.Validated, &u.Status, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) List(ctx context.Context, role, status *string, limit, offset int) ([]*model.User, error) {
	var conditions []string
	var args []any
	argNum := 1

	if role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argNum))
		args = append(args, *role)
		argNum++
	}
	if status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *status)
		argNum++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM users
		%s
		ORDER BY name
		LIMIT $%d OFFSET $%d`, userColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(
			&u.ID, &u.KeycloakID, &u.Name, &u.Role, &u.Email, &u.Phone,
			&u.Validated, &u.Status, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET keycloak_id = $2, name = $3, role = $4, email = $5, phone = $6, validated = $7
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.KeycloakID, u.Name, u.Role, u.Email, u.Phone, u.Validated,
	).Scan(&u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) SetStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) SetValidated(ctx context.Context, id string, validated bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET validated = $2 WHERE id = $1`, id, validated)
	if err != nil {
		return fmt.Errorf("ошибка смены флага подтверждения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
