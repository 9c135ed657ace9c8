// availability.go — сервис интервалов доступности техников.
// Интервалы — время суток: значения нормализуются к фиксированной дате,
// сравниваются только часы и минуты.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/staffmission/dispatch/internal/domain/model"
	"github.com/staffmission/dispatch/internal/domain/validate"
	"github.com/staffmission/dispatch/internal/repository"
)

// AvailabilityService — сервис интервалов доступности.
type AvailabilityService struct {
	repo   repository.AvailabilityRepository
	logger *slog.Logger
}

// NewAvailabilityService создаёт сервис интервалов доступности.
func NewAvailabilityService(repo repository.AvailabilityRepository, logger *slog.Logger) *AvailabilityService {
	return &AvailabilityService{
		repo:   repo,
		logger: logger.With(slog.String("component", "availability_service")),
	}
}

// Create создаёт интервал доступности техника.
func (s *AvailabilityService) Create(ctx context.Context, userID string, start, end time.Time) (*model.Availability, error) {
	if result := validate.AvailabilityTimes(start, end); !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrValidation, result.Message)
	}

	availability := &model.Availability{
		ID:        uuid.New().String(),
		UserID:    userID,
		StartTime: validate.NormalizeTimeOfDay(start),
		EndTime:   validate.NormalizeTimeOfDay(end),
	}

	if err := s.repo.Create(ctx, availability); err != nil {
		return nil, fmt.Errorf("создание интервала доступности: %w", err)
	}

	s.logger.Info("Интервал доступности создан",
		slog.String("availability_id", availability.ID),
		slog.String("user_id", userID),
	)

	return availability, nil
}

// ListByUser возвращает интервалы доступности техника.
func (s *AvailabilityService) ListByUser(ctx context.Context, userID string) ([]*model.Availability, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("интервалы доступности: %w", err)
	}
	return items, nil
}

// Update обновляет границы интервала доступности.
// owner — владелец может менять только свои интервалы
// (пустая строка — проверка пропускается, админский доступ).
func (s *AvailabilityService) Update(ctx context.Context, id, owner string, start, end time.Time) (*model.Availability, error) {
	availability, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение интервала: %w", err)
	}

	if owner != "" && availability.UserID != owner {
		return nil, ErrNotFound
	}

	if result := validate.AvailabilityTimes(start, end); !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrValidation, result.Message)
	}

	availability.StartTime = validate.NormalizeTimeOfDay(start)
	availability.EndTime = validate.NormalizeTimeOfDay(end)

	if err := s.repo.Update(ctx, availability); err != nil {
		return nil, fmt.Errorf("обновление интервала: %w", err)
	}

	return availability, nil
}

// Delete удаляет интервал доступности.
func (s *AvailabilityService) Delete(ctx context.Context, id, owner string) error {
	if owner != "" {
		availability, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("получение интервала: %w", err)
		}
		if availability.UserID != owner {
			return ErrNotFound
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление интервала: %w", err)
	}

	s.logger.Info("Интервал доступности удалён", slog.String("availability_id", id))
	return nil
}
