// Пакет service — бизнес-логика Dispatch Module.
// missions.go — сервис управления миссиями.
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

// MissionInput — данные создания/обновления миссии.
type MissionInput struct {
	Title       string
	Type        string
	Location    string
	StartAt     time.Time
	EndAt       time.Time
	Fee         float64
	Description *string
}

// MissionService — сервис управления миссиями.
type MissionService struct {
	missionRepo    repository.MissionRepository
	assignmentRepo repository.AssignmentRepository
	geocode        *GeocodeService
	feeCeiling     float64
	logger         *slog.Logger
}

// NewMissionService создаёт сервис управления миссиями.
// feeCeiling — потолок гонорара из конфигурации.
func NewMissionService(
	missionRepo repository.MissionRepository,
	assignmentRepo repository.AssignmentRepository,
	geocode *GeocodeService,
	feeCeiling float64,
	logger *slog.Logger,
) *MissionService {
	return &MissionService{
		missionRepo:    missionRepo,
		assignmentRepo: assignmentRepo,
		geocode:        geocode,
		feeCeiling:     feeCeiling,
		logger:         logger.With(slog.String("component", "mission_service")),
	}
}

// validateInput проверяет поля миссии.
// checkPast — проверять ли начало на прошлое (только при создании:
// существующая миссия со стартом в прошлом остаётся редактируемой).
func (s *MissionService) validateInput(input *MissionInput, checkPast bool) error {
	if input.Title == "" {
		return fmt.Errorf("%w: название миссии обязательно", ErrValidation)
	}
	if !model.ValidMissionTypes[input.Type] {
		return fmt.Errorf("%w: недопустимый тип миссии %q", ErrValidation, input.Type)
	}
	if input.Location == "" {
		return fmt.Errorf("%w: адрес миссии обязателен", ErrValidation)
	}

	now := time.Time{}
	if checkPast {
		now = time.Now().UTC()
	}
	if dates := validate.MissionDates(input.StartAt, input.EndAt, now); !dates.Valid {
		return fmt.Errorf("%w: %s", ErrValidation, dates.Message)
	}

	if fee := validate.Fee(input.Fee, s.feeCeiling); !fee.Valid {
		return fmt.Errorf("%w: %s", ErrValidation, fee.Message)
	}

	return nil
}

// resolveCoordinates дополняет миссию координатами адреса.
// Геокодирование best-effort: ошибка или ненайденный адрес не блокируют
// сохранение миссии, координаты остаются пустыми.
func (s *MissionService) resolveCoordinates(ctx context.Context, m *model.Mission) {
	if s.geocode == nil {
		return
	}

	loc, err := s.geocode.Resolve(ctx, m.Location)
	if err != nil {
		s.logger.Warn("Ошибка геокодирования адреса миссии",
			slog.String("mission_id", m.ID),
			slog.String("location", m.Location),
			slog.String("error", err.Error()),
		)
		return
	}
	if loc == nil {
		s.logger.Debug("Адрес миссии не найден геокодером",
			slog.String("mission_id", m.ID),
			slog.String("location", m.Location),
		)
		return
	}

	m.Latitude = &loc.Latitude
	m.Longitude = &loc.Longitude
}

// Create создаёт миссию.
func (s *MissionService) Create(ctx context.Context, input *MissionInput) (*model.Mission, error) {
	if err := s.validateInput(input, true); err != nil {
		return nil, err
	}

	mission := &model.Mission{
		ID:          uuid.New().String(),
		Title:       input.Title,
		Type:        input.Type,
		Location:    input.Location,
		StartAt:     input.StartAt.UTC(),
		EndAt:       input.EndAt.UTC(),
		Fee:         input.Fee,
		Description: input.Description,
	}

	s.resolveCoordinates(ctx, mission)

	if err := s.missionRepo.Create(ctx, mission); err != nil {
		return nil, fmt.Errorf("создание миссии: %w", err)
	}

	s.logger.Info("Миссия создана",
		slog.String("mission_id", mission.ID),
		slog.String("type", mission.Type),
		slog.String("title", mission.Title),
	)

	return mission, nil
}

// Get возвращает миссию по ID.
func (s *MissionService) Get(ctx context.Context, id string) (*model.Mission, error) {
	mission, err := s.missionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение миссии: %w", err)
	}
	return mission, nil
}

// List возвращает миссии с фильтрацией по типу и нижней границе начала.
func (s *MissionService) List(ctx context.Context, missionType *string, from *time.Time, limit, offset int) ([]*model.Mission, int, error) {
	if missionType != nil && !model.ValidMissionTypes[*missionType] {
		return nil, 0, fmt.Errorf("%w: недопустимый тип миссии %q", ErrValidation, *missionType)
	}

	missions, err := s.missionRepo.List(ctx, missionType, from, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("список миссий: %w", err)
	}

	total, err := s.missionRepo.Count(ctx, missionType, from)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт миссий: %w", err)
	}

	return missions, total, nil
}

// ListByUser возвращает миссии, на которые назначен техник.
func (s *MissionService) ListByUser(ctx context.Context, userID string) ([]*model.Mission, error) {
	missions, err := s.missionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("миссии техника: %w", err)
	}
	return missions, nil
}

// Update обновляет миссию.
// При переносе временного окна проверяются расписания уже назначенных
// техников: новое окно не должно пересекаться с их другими назначениями.
func (s *MissionService) Update(ctx context.Context, id string, input *MissionInput) (*model.Mission, error) {
	mission, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.validateInput(input, false); err != nil {
		return nil, err
	}

	rescheduled := !mission.StartAt.Equal(input.StartAt) || !mission.EndAt.Equal(input.EndAt)
	if rescheduled {
		if err := s.checkReschedule(ctx, id, input.StartAt, input.EndAt); err != nil {
			return nil, err
		}
	}

	locationChanged := mission.Location != input.Location

	mission.Title = input.Title
	mission.Type = input.Type
	mission.Location = input.Location
	mission.StartAt = input.StartAt.UTC()
	mission.EndAt = input.EndAt.UTC()
	mission.Fee = input.Fee
	mission.Description = input.Description

	if locationChanged {
		mission.Latitude = nil
		mission.Longitude = nil
		s.resolveCoordinates(ctx, mission)
	}

	if err := s.missionRepo.Update(ctx, mission); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("обновление миссии: %w", err)
	}

	s.logger.Info("Миссия обновлена",
		slog.String("mission_id", mission.ID),
		slog.Bool("rescheduled", rescheduled),
	)

	return mission, nil
}

// checkReschedule проверяет расписания назначенных техников
// для нового временного окна миссии.
func (s *MissionService) checkReschedule(ctx context.Context, missionID string, start, end time.Time) error {
	assignments, err := s.assignmentRepo.ListByMission(ctx, missionID)
	if err != nil {
		return fmt.Errorf("назначения миссии: %w", err)
	}

	for _, a := range assignments {
		// Остальные назначения техника, без текущей миссии
		windows, err := s.assignmentRepo.BookedWindows(ctx, a.UserID, missionID)
		if err != nil {
			return fmt.Errorf("занятость техника %s: %w", a.UserID, err)
		}

		ranges := make([]validate.Range, 0, len(windows))
		for _, w := range windows {
			ranges = append(ranges, validate.Range{ID: w.MissionID, Start: w.StartAt, End: w.EndAt})
		}

		if result := validate.PlanningConflict(start, end, ranges); result.Conflict {
			return fmt.Errorf("%w: техник %s занят на миссии %s",
				ErrScheduleConflict, a.UserID, result.With.ID)
		}
	}

	return nil
}

// Delete удаляет миссию. Назначения и биллинг удаляются каскадно (FK).
func (s *MissionService) Delete(ctx context.Context, id string) error {
	if err := s.missionRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление миссии: %w", err)
	}

	s.logger.Info("Миссия удалена", slog.String("mission_id", id))
	return nil
}
