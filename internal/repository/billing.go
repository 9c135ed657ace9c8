package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/staffmission/dispatch/internal/domain/model"
)

// BillingRepository — интерфейс для таблицы billing_records.
type BillingRepository interface {
	// Create создаёт запись биллинга.
	Create(ctx context.Context, b *model.BillingRecord) error
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, id string) (*model.BillingRecord, error)
	// List возвращает записи с фильтрацией по технику и статусу.
	List(ctx context.Context, userID, status *string, limit, offset int) ([]*model.BillingRecord, error)
	// SetStatus меняет статус записи.
	SetStatus(ctx context.Context, id, status string) error
	// DeleteByAssignment удаляет записи по назначению.
	DeleteByAssignment(ctx context.Context, assignmentID string) error
}

// billingRepo — реализация BillingRepository.
type billingRepo struct {
	db DBTX
}

// NewBillingRepository создаёт репозиторий биллинга.
func NewBillingRepository(db DBTX) BillingRepository {
	return &billingRepo{db: db}
}

const billingColumns = `id, assignment_id, mission_id, user_id, amount, status, created_at, updated_at`

func (r *billingRepo) Create(ctx context.Context, b *model.BillingRecord) error {
	query := `
		INSERT INTO billing_records (id, assignment_id, mission_id, user_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		b.ID, b.AssignmentID, b.MissionID, b.UserID, b.Amount, b.Status,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания записи биллинга: %w", err)
	}
	return nil
}

func (r *billingRepo) GetByID(ctx context.Context, id string) (*model.BillingRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM billing_records WHERE id = $1`, billingColumns)

	b := &model.BillingRecord{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.AssignmentID, &b.MissionID, &b.UserID,
		&b.Amount, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи биллинга: %w", err)
	}
	return b, nil
}

func (r *billingRepo) List(ctx context.Context, userID, status *string, limit, offset int) ([]*model.BillingRecord, error) {
	var conditions []string
	var args []any
	argNum := 1

	if userID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argNum))
		args = append(args, *userID)
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
		SELECT %s FROM billing_records
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, billingColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка биллинга: %w", err)
	}
	defer rows.Close()

	var result []*model.BillingRecord
	for rows.Next() {
		b := &model.BillingRecord{}
		if err := rows.Scan(
			&b.ID, &b.AssignmentID, &b.MissionID, &b.UserID,
			&b.Amount, &b.Status, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи биллинга: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *billingRepo) SetStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE billing_records SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса записи биллинга: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *billingRepo) DeleteByAssignment(ctx context.Context, assignmentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM billing_records WHERE assignment_id = $1`, assignmentID)
	if err != nil {
		return fmt.Errorf("ошибка удаления записей биллинга: %w", err)
	}
	return nil
}
