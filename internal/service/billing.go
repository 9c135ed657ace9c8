// billing.go — сервис биллинга назначений.
// Статусная модель: pending → invoiced → paid, переходы только вперёд.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/staffmission/dispatch/internal/domain/model"
	"github.com/staffmission/dispatch/internal/repository"
)

// Допустимые переходы статусов биллинга.
var billingTransitions = map[string]string{
	model.BillingStatusPending:  model.BillingStatusInvoiced,
	model.BillingStatusInvoiced: model.BillingStatusPaid,
}

// BillingService — сервис биллинга.
type BillingService struct {
	repo   repository.BillingRepository
	logger *slog.Logger
}

// NewBillingService создаёт сервис биллинга.
func NewBillingService(repo repository.BillingRepository, logger *slog.Logger) *BillingService {
	return &BillingService{
		repo:   repo,
		logger: logger.With(slog.String("component", "billing_service")),
	}
}

// Get возвращает запись биллинга по ID.
func (s *BillingService) Get(ctx context.Context, id string) (*model.BillingRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи биллинга: %w", err)
	}
	return record, nil
}

// List возвращает записи биллинга с фильтрацией по технику и статусу.
func (s *BillingService) List(ctx context.Context, userID, status *string, limit, offset int) ([]*model.BillingRecord, error) {
	if status != nil {
		switch *status {
		case model.BillingStatusPending, model.BillingStatusInvoiced, model.BillingStatusPaid:
		default:
			return nil, fmt.Errorf("%w: недопустимый статус биллинга %q", ErrValidation, *status)
		}
	}

	records, err := s.repo.List(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("список биллинга: %w", err)
	}
	return records, nil
}

// Advance переводит запись биллинга в следующий статус.
// Переход назад или через шаг недопустим.
func (s *BillingService) Advance(ctx context.Context, id, target string) (*model.BillingRecord, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, ok := billingTransitions[record.Status]
	if !ok || next != target {
		return nil, fmt.Errorf("%w: переход %s → %s недопустим",
			ErrValidation, record.Status, target)
	}

	if err := s.repo.SetStatus(ctx, id, target); err != nil {
		return nil, fmt.Errorf("изменение статуса биллинга: %w", err)
	}

	record.Status = target
	s.logger.Info("Статус биллинга изменён",
		slog.String("billing_id", id),
		slog.String("status", target),
	)

	return record, nil
}
