// notify.go — сервис отправки писем о назначении.
// Результат отправки передаётся вызывающему без интерпретации:
// решение о повторе принимает администратор.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/staffmission/dispatch/internal/mailer"
	"github.com/staffmission/dispatch/internal/repository"
)

// NotifyService — сервис уведомлений о назначениях.
type NotifyService struct {
	assignmentRepo repository.AssignmentRepository
	missionRepo    repository.MissionRepository
	userRepo       repository.UserRepository
	composer       *mailer.Composer
	sender         *mailer.Sender
	logger         *slog.Logger
}

// NewNotifyService создаёт сервис уведомлений.
func NewNotifyService(
	assignmentRepo repository.AssignmentRepository,
	missionRepo repository.MissionRepository,
	userRepo repository.UserRepository,
	composer *mailer.Composer,
	sender *mailer.Sender,
	logger *slog.Logger,
) *NotifyService {
	return &NotifyService{
		assignmentRepo: assignmentRepo,
		missionRepo:    missionRepo,
		userRepo:       userRepo,
		composer:       composer,
		sender:         sender,
		logger:         logger.With(slog.String("component", "notify_service")),
	}
}

// NotifyAssignment отправляет технику письмо о назначении.
// senderName — имя администратора-инициатора (пустая строка —
// подставляется заглушка на этапе формирования письма).
func (s *NotifyService) NotifyAssignment(ctx context.Context, assignmentID, senderName string) (*mailer.Result, error) {
	assignment, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение назначения: %w", err)
	}

	mission, err := s.missionRepo.GetByID(ctx, assignment.MissionID)
	if err != nil {
		return nil, fmt.Errorf("получение миссии: %w", err)
	}

	user, err := s.userRepo.GetByID(ctx, assignment.UserID)
	if err != nil {
		return nil, fmt.Errorf("получение техника: %w", err)
	}

	msg, err := s.composer.Compose(&mailer.Assignment{
		TechnicianName: user.Name,
		MissionTitle:   mission.Title,
		MissionType:    mission.Type,
		Location:       mission.Location,
		StartAt:        mission.StartAt,
		EndAt:          mission.EndAt,
		Fee:            mission.Fee,
		Description:    mission.Description,
		SenderName:     senderName,
	})
	if err != nil {
		return nil, fmt.Errorf("формирование письма: %w", err)
	}

	result := s.sender.Send(ctx, user.Email, msg)

	s.logger.Info("Уведомление о назначении обработано",
		slog.String("assignment_id", assignmentID),
		slog.String("to", user.Email),
		slog.Bool("success", result.Success),
	)

	return result, nil
}
