package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/staffmission/dispatch/internal/domain/model"
)

// Максимальный размер полной выборки коллекции при перезагрузке стора.
const snapshotLimit = 10000

// MissionLister — выборка полной коллекции миссий.
// Реализуется repository.MissionRepository.
type MissionLister interface {
	List(ctx context.Context, missionType *string, from *time.Time, limit, offset int) ([]*model.Mission, error)
}

// MissionSnapshot — снимок кэша миссий.
type MissionSnapshot struct {
	// Missions — полный список миссий на момент последней перезагрузки.
	Missions []*model.Mission
	// Fresh — был ли стор загружен хотя бы один раз после сброса.
	Fresh bool
	// LoadedAt — время завершения последней перезагрузки.
	LoadedAt time.Time
}

// MissionStore — кэш коллекции миссий.
type MissionStore struct {
	lister MissionLister
	logger *slog.Logger

	mu       sync.RWMutex
	missions []*model.Mission
	fresh    bool
	loadedAt time.Time
}

// NewMissionStore создаёт стор миссий.
func NewMissionStore(lister MissionLister, logger *slog.Logger) *MissionStore {
	return &MissionStore{
		lister: lister,
		logger: logger.With(slog.String("component", "mission_store")),
	}
}

// Refresh выполняет полную перезагрузку коллекции миссий.
// Выборка идёт без удержания мьютекса; при параллельных вызовах
// в кэш попадает результат завершившегося последним (last write wins).
func (s *MissionStore) Refresh(ctx context.Context) error {
	missions, err := s.lister.List(ctx, nil, nil, snapshotLimit, 0)
	if err != nil {
		storeRefreshTotal.WithLabelValues("missions", "error").Inc()
		return fmt.Errorf("перезагрузка стора миссий: %w", err)
	}

	s.mu.Lock()
	s.missions = missions
	s.fresh = true
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()

	storeRefreshTotal.WithLabelValues("missions", "ok").Inc()
	checkTruncated(s.logger, "missions", "missions", len(missions))
	s.logger.Debug("Стор миссий перезагружен", slog.Int("count", len(missions)))
	return nil
}

// Reset сбрасывает кэш: после выхода из аутентифицированного состояния
// данные не должны переживать сессию.
func (s *MissionStore) Reset() {
	s.mu.Lock()
	s.missions = nil
	s.fresh = false
	s.loadedAt = time.Time{}
	s.mu.Unlock()

	storeResetTotal.WithLabelValues("missions").Inc()
	s.logger.Debug("Стор миссий сброшен")
}

// Snapshot возвращает текущий снимок кэша.
func (s *MissionStore) Snapshot() MissionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MissionSnapshot{
		Missions: s.missions,
		Fresh:    s.fresh,
		LoadedAt: s.loadedAt,
	}
}
