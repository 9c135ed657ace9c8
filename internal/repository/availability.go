package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/staffmission/dispatch/internal/domain/model"
)

// AvailabilityRepository — интерфейс CRUD для таблицы availabilities.
type AvailabilityRepository interface {
	// Create создаёт интервал доступности.
	Create(ctx context.Context, a *model.Availability) error
	// GetByID возвращает интервал по UUID.
	GetByID(ctx context.Context, id string) (*model.Availability, error)
	// ListByUser возвращает интервалы доступности техника.
	ListByUser(ctx context.Context, userID string) ([]*model.Availability, error)
	// ListAll возвращает все интервалы доступности.
	ListAll(ctx context.Context, limit, offset int) ([]*model.Availability, error)
	// Update обновляет интервал.
	Update(ctx context.Context, a *model.Availability) error
	// Delete удаляет интервал.
	Delete(ctx context.Context, id string) error
}

// availabilityRepo — реализация AvailabilityRepository.
type availabilityRepo struct {
	db DBTX
}

// NewAvailabilityRepository создаёт репозиторий доступности.
func NewAvailabilityRepository(db DBTX) AvailabilityRepository {
	return &availabilityRepo{db: db}
}

func (r *availabilityRepo) Create(ctx context.Context, a *model.Availability) error {
	query := `
		INSERT INTO availabilities (id, user_id, start_time, end_time)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, a.ID, a.UserID, a.StartTime, a.EndTime).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания интервала доступности: %w", err)
	}
	return nil
}

func (r *availabilityRepo) GetByID(ctx context.Context, id string) (*model.Availability, error) {
	query := `
		SELECT id, user_id, start_time, end_time, created_at, updated_at
		FROM availabilities
		WHERE id = $1`

	a := &model.Availability{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.UserID, &a.StartTime, &a.EndTime, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения интервала доступности: %w", err)
	}
	return a, nil
}

func (r *availabilityRepo) ListByUser(ctx context.Context, userID string) ([]*model.Availability, error) {
	query := `
		SELECT id, user_id, start_time, end_time, created_at, updated_at
		FROM availabilities
		WHERE user_id = $1
		ORDER BY start_time`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения доступности техника: %w", err)
	}
	defer rows.Close()

	return scanAvailabilities(rows)
}

func (r *availabilityRepo) ListAll(ctx context.Context, limit, offset int) ([]*model.Availability, error) {
	query := `
		SELECT id, user_id, start_time, end_time, created_at, updated_at
		FROM availabilities
		ORDER BY user_id, start_time
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка доступности: %w", err)
	}
	defer rows.Close()

	return scanAvailabilities(rows)
}

func (r *availabilityRepo) Update(ctx context.Context, a *model.Availability) error {
	query := `
		UPDATE availabilities
		SET start_time = $2, end_time = $3
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, a.ID, a.StartTime, a.EndTime).Scan(&a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления интервала доступности: %w", err)
	}
	return nil
}

func (r *availabilityRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM availabilities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления интервала доступности: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanAvailabilities сканирует строки результата в срез интервалов.
func scanAvailabilities(rows pgx.Rows) ([]*model.Availability, error) {
	var result []*model.Availability
	for rows.Next() {
		a := &model.Availability{}
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.StartTime, &a.EndTime, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования интервала доступности: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
