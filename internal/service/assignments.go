// assignments.go — сервис назначения техников на миссии.
// Перед назначением проверяется пересечение с остальными назначениями
// техника; при назначении создаётся запись биллинга на сумму гонорара.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/staffmission/dispatch/internal/domain/model"
	"github.com/staffmission/dispatch/internal/domain/validate"
	"github.com/staffmission/dispatch/internal/repository"
)

// AssignmentService — сервис назначений техников.
type AssignmentService struct {
	assignmentRepo repository.AssignmentRepository
	missionRepo    repository.MissionRepository
	userRepo       repository.UserRepository
	billingRepo    repository.BillingRepository
	logger         *slog.Logger
}

// NewAssignmentService создаёт сервис назначений.
func NewAssignmentService(
	assignmentRepo repository.AssignmentRepository,
	missionRepo repository.MissionRepository,
	userRepo repository.UserRepository,
	billingRepo repository.BillingRepository,
	logger *slog.Logger,
) *AssignmentService {
	return &AssignmentService{
		assignmentRepo: assignmentRepo,
		missionRepo:    missionRepo,
		userRepo:       userRepo,
		billingRepo:    billingRepo,
		logger:         logger.With(slog.String("component", "assignment_service")),
	}
}

// Assign назначает техника на миссию.
// Правила: техник активен и подтверждён; окно миссии не пересекается
// с другими назначениями техника (полуоткрытый тест пересечения).
func (s *AssignmentService) Assign(ctx context.Context, missionID, userID string) (*model.Assignment, error) {
	mission, err := s.missionRepo.GetByID(ctx, missionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение миссии: %w", err)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение техника: %w", err)
	}

	if user.Status != model.UserStatusActive {
		return nil, ErrUserDisabled
	}
	if !user.Validated {
		return nil, fmt.Errorf("%w: аккаунт техника не подтверждён", ErrValidation)
	}

	windows, err := s.assignmentRepo.BookedWindows(ctx, userID, missionID)
	if err != nil {
		return nil, fmt.Errorf("занятость техника: %w", err)
	}

	ranges := make([]validate.Range, 0, len(windows))
	for _, w := range windows {
		ranges = append(ranges, validate.Range{ID: w.MissionID, Start: w.StartAt, End: w.EndAt})
	}

	if result := validate.PlanningConflict(mission.StartAt, mission.EndAt, ranges); result.Conflict {
		return nil, fmt.Errorf("%w: пересечение с миссией %s",
			ErrScheduleConflict, result.With.ID)
	}

	assignment := &model.Assignment{
		ID:        uuid.New().String(),
		MissionID: missionID,
		UserID:    userID,
	}

	if err := s.assignmentRepo.Create(ctx, assignment); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("создание назначения: %w", err)
	}

	// Запись биллинга на сумму гонорара миссии
	billing := &model.BillingRecord{
		ID:           uuid.New().String(),
		AssignmentID: assignment.ID,
		MissionID:    missionID,
		UserID:       userID,
		Amount:       mission.Fee,
		Status:       model.BillingStatusPending,
	}
	if err := s.billingRepo.Create(ctx, billing); err != nil {
		s.logger.Error("Ошибка создания записи биллинга",
			slog.String("assignment_id", assignment.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Техник назначен на миссию",
		slog.String("assignment_id", assignment.ID),
		slog.String("mission_id", missionID),
		slog.String("user_id", userID),
	)

	return assignment, nil
}

// ListByMission возвращает назначения миссии.
func (s *AssignmentService) ListByMission(ctx context.Context, missionID string) ([]*model.Assignment, error) {
	items, err := s.assignmentRepo.ListByMission(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("назначения миссии: %w", err)
	}
	return items, nil
}

// Unassign снимает техника с миссии.
// Непогашенный биллинг по назначению удаляется вместе с ним.
func (s *AssignmentService) Unassign(ctx context.Context, assignmentID string) error {
	if _, err := s.assignmentRepo.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("получение назначения: %w", err)
	}

	if err := s.billingRepo.DeleteByAssignment(ctx, assignmentID); err != nil {
		return fmt.Errorf("удаление биллинга назначения: %w", err)
	}

	if err := s.assignmentRepo.Delete(ctx, assignmentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление назначения: %w", err)
	}

	s.logger.Info("Назначение снято", slog.String("assignment_id", assignmentID))
	return nil
}
