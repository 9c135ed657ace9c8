package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/staffmission/dispatch/internal/domain/model"
)

// MissionRepository — интерфейс CRUD для таблицы missions.
type MissionRepository interface {
	// Create создаёт новую миссию.
	Create(ctx context.Context, m *model.Mission) error
	// GetByID возвращает миссию по UUID.
	GetByID(ctx context.Context, id string) (*model.Mission, error)
	// List возвращает миссии с фильтрацией по типу и нижней границе начала.
	// Включает количество назначенных техников.
	List(ctx context.Context, missionType *string, from *time.Time, limit, offset int) ([]*model.Mission, error)
	// ListByUser возвращает миссии, на которые назначен указанный техник.
	ListByUser(ctx context.Context, userID string) ([]*model.Mission, error)
	// Update обновляет миссию.
	Update(ctx context.Context, m *model.Mission) error
	// Delete удаляет миссию.
	Delete(ctx context.Context, id string) error
	// Count возвращает количество миссий с фильтрацией.
	Count(ctx context.Context, missionType *string, from *time.Time) (int, error)
}

// missionRepo — реализация MissionRepository.
type missionRepo struct {
	db DBTX
}

// NewMissionRepository создаёт репозиторий миссий.
func NewMissionRepository(db DBTX) MissionRepository {
	return &missionRepo{db: db}
}

func (r *missionRepo) Create(ctx context.Context, m *model.Mission) error {
	query := `
		INSERT INTO missions (id, title, type, location, latitude, longitude,
			start_at, end_at, fee, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		m.ID, m.Title, m.Type, m.Location, m.Latitude, m.Longitude,
		m.StartAt, m.EndAt, m.Fee, m.Description,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания миссии: %w", err)
	}
	return nil
}

func (r *missionRepo) GetByID(ctx context.Context, id string) (*model.Mission, error) {
	query := `
		SELECT m.id, m.title, m.type, m.location, m.latitude, m.longitude,
			m.start_at, m.end_at, m.fee, m.description,
			(SELECT COUNT(*) FROM mission_assignments a WHERE a.mission_id = m.id),
			m.created_at, m.updated_at
		FROM missions m
		WHERE m.id = $1`

	m := &model.Mission{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Title, &m.Type, &m.Location, &m.Latitude, &m.Longitude,
		&m.StartAt, &m.EndAt, &m.Fee, &m.Description,
		&m.AssignedCount, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения миссии: %w", err)
	}
	return m, nil
}

func (r *missionRepo) List(ctx context.Context, missionType *string, from *time.Time, limit, offset int) ([]*model.Mission, error) {
	// Динамическое построение WHERE
	var conditions []string
	var args []any
	argNum := 1

	if missionType != nil {
		conditions = append(conditions, fmt.Sprintf("m.type = $%d", argNum))
		args = append(args, *missionType)
		argNum++
	}
	if from != nil {
		conditions = append(conditions, fmt.Sprintf("m.start_at >= $%d", argNum))
		args = append(args, *from)
		argNum++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.title, m.type, m.location, m.latitude, m.longitude,
			m.start_at, m.end_at, m.fee, m.description,
			(SELECT COUNT(*) FROM mission_assignments a WHERE a.mission_id = m.id),
			m.created_at, m.updated_at
		FROM missions m
		%s
		ORDER BY m.start_at
		LIMIT $%d OFFSET $%d`, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка миссий: %w", err)
	}
	defer rows.Close()

	return scanMissions(rows)
}

func (r *missionRepo) ListByUser(ctx context.Context, userID string) ([]*model.Mission, error) {
	query := `
		SELECT m.id, m.title, m.type, m.location, m.latitude, m.longitude,
			m.start_at, m.end_at, m.fee, m.description,
			(SELECT COUNT(*) FROM mission_assignments c WHERE c.mission_id = m.id),
			m.created_at, m.updated_at
		FROM missions m
		JOIN mission_assignments a ON a.mission_id = m.id
		WHERE a.user_id = $1
		ORDER BY m.start_at`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения миссий техника: %w", err)
	}
	defer rows.Close()

	return scanMissions(rows)
}

func (r *missionRepo) Update(ctx context.Context, m *model.Mission) error {
	query := `
		UPDATE missions
		SET title = $2, type = $3, location = $4, latitude = $5, longitude = $6,
			start_at = $7, end_at = $8, fee = $9, description = $10
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		m.ID, m.Title, m.Type, m.Location, m.Latitude, m.Longitude,
		m.StartAt, m.EndAt, m.Fee, m.Description,
	).Scan(&m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления миссии: %w", err)
	}
	return nil
}

func (r *missionRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM missions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления миссии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *missionRepo) Count(ctx context.Context, missionType *string, from *time.Time) (int, error) {
	var conditions []string
	var args []any
	argNum := 1

	if missionType != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argNum))
		args = append(args, *missionType)
		argNum++
	}
	if from != nil {
		conditions = append(conditions, fmt.Sprintf("start_at >= $%d", argNum))
		args = append(args, *from)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM missions %s`, where)

	var count int
	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта миссий: %w", err)
	}
	return count, nil
}

// scanMissions сканирует строки результата в срез миссий.
func scanMissions(rows pgx.Rows) ([]*model.Mission, error) {
	var result []*model.Mission
	for rows.Next() {
		m := &model.Mission{}
		if err := rows.Scan(
			&m.ID, &m.Title, &m.Type, &m.Location, &m.Latitude, &m.Longitude,
			&m.StartAt, &m.EndAt, &m.Fee, &m.Description,
			&m.AssignedCount, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования миссии: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
