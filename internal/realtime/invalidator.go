// Пакет realtime — подписка на изменения данных в PostgreSQL
// через LISTEN/NOTIFY и инвалидация хранилищ состояния.
//
// Триггеры БД публикуют уведомление в канал с именем таблицы при каждом
// INSERT/UPDATE/DELETE. Payload уведомления не интерпретируется: любое
// событие канала приводит к полной перезагрузке связанного хранилища.
package realtime

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Каналы уведомлений (совпадают с именами таблиц, см. миграции).
const (
	ChannelMissions       = "missions"
	ChannelAssignments    = "mission_assignments"
	ChannelUsers          = "users"
	ChannelAvailabilities = "availabilities"
	ChannelBilling        = "billing_records"
)

// Channels — все каналы, на которые подписывается Listener.
var Channels = []string{
	ChannelMissions,
	ChannelAssignments,
	ChannelUsers,
	ChannelAvailabilities,
	ChannelBilling,
}

// Prometheus-метрики инвалидатора.
var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_realtime_events_total",
		Help: "Количество обработанных уведомлений об изменении данных по каналам.",
	}, []string{"channel"})

	refreshErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_realtime_refresh_errors_total",
		Help: "Количество ошибок перезагрузки хранилищ после уведомления.",
	}, []string{"channel"})
)

// Store — хранилище состояния, управляемое инвалидатором.
type Store interface {
	Refresh(ctx context.Context) error
	Reset()
}

// Invalidator отображает каналы уведомлений на хранилища.
// Каждое событие канала вызывает ровно одну перезагрузку
// связанного хранилища.
type Invalidator struct {
	missions Store
	admin    Store
	logger   *slog.Logger
}

// NewInvalidator создаёт инвалидатор хранилищ.
// missions обновляется по каналам missions и mission_assignments,
// admin — по каналам users, availabilities и billing_records.
func NewInvalidator(missions, admin Store, logger *slog.Logger) *Invalidator {
	return &Invalidator{
		missions: missions,
		admin:    admin,
		logger:   logger.With(slog.String("component", "invalidator")),
	}
}

// storeFor возвращает хранилище, связанное с каналом.
// Неизвестный канал — nil (событие игнорируется).
func (i *Invalidator) storeFor(channel string) Store {
	switch channel {
	case ChannelMissions, ChannelAssignments:
		return i.missions
	case ChannelUsers, ChannelAvailabilities, ChannelBilling:
		return i.admin
	default:
		return nil
	}
}

// HandleEvent обрабатывает уведомление об изменении данных.
// Payload не разбирается: хранилище перезагружается целиком.
// Ошибка перезагрузки логируется, хранилище сохраняет прежний снимок.
func (i *Invalidator) HandleEvent(ctx context.Context, channel, payload string) {
	store := i.storeFor(channel)
	if store == nil {
		i.logger.Warn("уведомление из неизвестного канала",
			slog.String("channel", channel))
		return
	}

	eventsTotal.WithLabelValues(channel).Inc()
	i.logger.Debug("уведомление об изменении данных",
		slog.String("channel", channel),
		slog.String("payload", payload))

	if err := store.Refresh(ctx); err != nil {
		refreshErrors.WithLabelValues(channel).Inc()
		i.logger.Error("ошибка перезагрузки хранилища",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}

// HandleSignOut сбрасывает оба хранилища при выходе пользователя.
func (i *Invalidator) HandleSignOut() {
	i.missions.Reset()
	i.admin.Reset()
	i.logger.Info("хранилища сброшены после выхода пользователя")
}
