package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/staffmission/dispatch/internal/domain/model"
)

// UserLister — выборка полной коллекции пользователей.
type UserLister interface {
	List(ctx context.Context, role, status *string, limit, offset int) ([]*model.User, error)
}

// BillingLister — выборка полной коллекции записей биллинга.
type BillingLister interface {
	List(ctx context.Context, userID, status *string, limit, offset int) ([]*model.BillingRecord, error)
}

// AvailabilityLister — выборка полной коллекции интервалов доступности.
type AvailabilityLister interface {
	ListAll(ctx context.Context, limit, offset int) ([]*model.Availability, error)
}

// AdminSnapshot — снимок административного кэша.
type AdminSnapshot struct {
	// Users — полный список пользователей.
	Users []*model.User
	// Billing — полный список записей биллинга.
	Billing []*model.BillingRecord
	// Availabilities — полный список интервалов доступности.
	Availabilities []*model.Availability
	// Fresh — был ли стор загружен хотя бы один раз после сброса.
	Fresh bool
	// LoadedAt — время завершения последней перезагрузки.
	LoadedAt time.Time
}

// AdminStore — кэш административных коллекций: пользователи,
// биллинг, доступность. Обновляется целиком одной операцией.
type AdminStore struct {
	users          UserLister
	billing        BillingLister
	availabilities AvailabilityLister
	logger         *slog.Logger

	mu       sync.RWMutex
	snapshot AdminSnapshot
}

// NewAdminStore создаёт административный стор.
func NewAdminStore(users UserLister, billing BillingLister, availabilities AvailabilityLister, logger *slog.Logger) *AdminStore {
	return &AdminStore{
		users:          users,
		billing:        billing,
		availabilities: availabilities,
		logger:         logger.With(slog.String("component", "admin_store")),
	}
}

// Refresh выполняет полную перезагрузку всех трёх коллекций.
// Семантика параллельных вызовов та же, что у MissionStore.Refresh:
// побеждает завершившийся последним.
func (s *AdminStore) Refresh(ctx context.Context) error {
	users, err := s.users.List(ctx, nil, nil, snapshotLimit, 0)
	if err != nil {
		storeRefreshTotal.WithLabelValues("admin", "error").Inc()
		return fmt.Errorf("перезагрузка пользователей: %w", err)
	}

	billing, err := s.billing.List(ctx, nil, nil, snapshotLimit, 0)
	if err != nil {
		storeRefreshTotal.WithLabelValues("admin", "error").Inc()
		return fmt.Errorf("перезагрузка биллинга: %w", err)
	}

	availabilities, err := s.availabilities.ListAll(ctx, snapshotLimit, 0)
	if err != nil {
		storeRefreshTotal.WithLabelValues("admin", "error").Inc()
		return fmt.Errorf("перезагрузка доступности: %w", err)
	}

	s.mu.Lock()
	s.snapshot = AdminSnapshot{
		Users:          users,
		Billing:        billing,
		Availabilities: availabilities,
		Fresh:          true,
		LoadedAt:       time.Now().UTC(),
	}
	s.mu.Unlock()

	storeRefreshTotal.WithLabelValues("admin", "ok").Inc()
	checkTruncated(s.logger, "admin", "users", len(users))
	checkTruncated(s.logger, "admin", "billing_records", len(billing))
	checkTruncated(s.logger, "admin", "availabilities", len(availabilities))
	s.logger.Debug("Административный стор перезагружен",
		slog.Int("users", len(users)),
		slog.Int("billing", len(billing)),
		slog.Int("availabilities", len(availabilities)),
	)
	return nil
}

// Reset сбрасывает кэш целиком.
func (s *AdminStore) Reset() {
	s.mu.Lock()
	s.snapshot = AdminSnapshot{}
	s.mu.Unlock()

	storeResetTotal.WithLabelValues("admin").Inc()
	s.logger.Debug("Административный стор сброшен")
}

// Snapshot возвращает текущий снимок кэша.
func (s *AdminStore) Snapshot() AdminSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}
