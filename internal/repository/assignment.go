package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/staffmission/dispatch/internal/domain/model"
)

// BookedWindow — окно занятости техника: назначение вместе
// с временным окном его миссии.
type BookedWindow struct {
	// AssignmentID — UUID назначения.
	AssignmentID string
	// MissionID — UUID миссии.
	MissionID string
	// MissionTitle — название миссии (для сообщений о конфликте).
	MissionTitle string
	// StartAt, EndAt — окно миссии.
	StartAt time.Time
	EndAt   time.Time
}

// AssignmentRepository — интерфейс для таблицы mission_assignments.
type AssignmentRepository interface {
	// Create создаёт назначение техника на миссию.
	Create(ctx context.Context, a *model.Assignment) error
	// GetByID возвращает назначение по UUID.
	GetByID(ctx context.Context, id string) (*model.Assignment, error)
	// ListByMission возвращает назначения миссии.
	ListByMission(ctx context.Context, missionID string) ([]*model.Assignment, error)
	// BookedWindows возвращает окна занятости техника (его назначения
	// с временными окнами миссий), за исключением указанной миссии.
	BookedWindows(ctx context.Context, userID, excludeMissionID string) ([]BookedWindow, error)
	// Delete удаляет назначение.
	Delete(ctx context.Context, id string) error
}

// assignmentRepo — реализация AssignmentRepository.
type assignmentRepo struct {
	db DBTX
}

// NewAssignmentRepository создаёт репозиторий назначений.
func NewAssignmentRepository(db DBTX) AssignmentRepository {
	return &assignmentRepo{db: db}
}

func (r *assignmentRepo) Create(ctx context.Context, a *model.Assignment) error {
	query := `
		INSERT INTO mission_assignments (id, mission_id, user_id)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, a.ID, a.MissionID, a.UserID).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: техник уже назначен на эту миссию", ErrConflict)
		}
		return fmt.Errorf("ошибка создания назначения: %w", err)
	}
	return nil
}

func (r *assignmentRepo) GetByID(ctx context.Context, id string) (*model.Assignment, error) {
	query := `
		SELECT id, mission_id, user_id, created_at
		FROM mission_assignments
		WHERE id = $1`

	a := &model.Assignment{}
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.MissionID, &a.UserID, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения назначения: %w", err)
	}
	return a, nil
}

func (r *assignmentRepo) ListByMission(ctx context.Context, missionID string) ([]*model.Assignment, error) {
	query := `
		SELECT id, mission_id, user_id, created_at
		FROM mission_assignments
		WHERE mission_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, missionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения назначений миссии: %w", err)
	}
	defer rows.Close()

	var result []*model.Assignment
	for rows.Next() {
		a := &model.Assignment{}
		if err := rows.Scan(&a.ID, &a.MissionID, &a.UserID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования назначения: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *assignmentRepo) BookedWindows(ctx context.Context, userID, excludeMissionID string) ([]BookedWindow, error) {
	// excludeMissionID пустой — без исключений; отдельный запрос,
	// чтобы не передавать NULL в сравнение UUID.
	query := `
		SELECT a.id, m.id, m.title, m.start_at, m.end_at
		FROM mission_assignments a
		JOIN missions m ON m.id = a.mission_id
		WHERE a.user_id = $1`
	args := []any{userID}

	if excludeMissionID != "" {
		query += ` AND m.id <> $2`
		args = append(args, excludeMissionID)
	}
	query += ` ORDER BY m.start_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения окон занятости: %w", err)
	}
	defer rows.Close()

	var result []BookedWindow
	for rows.Next() {
		var w BookedWindow
		if err := rows.Scan(&w.AssignmentID, &w.MissionID, &w.MissionTitle, &w.StartAt, &w.EndAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования окна занятости: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (r *assignmentRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM mission_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления назначения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
