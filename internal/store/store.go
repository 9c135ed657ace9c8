// Пакет store — in-memory снапшоты доменных коллекций для UI-потребителей.
//
// Сторы — явные объекты состояния, передаваемые потребителям через внедрение
// зависимостей (не пакетные синглтоны). Мутация только через определённые
// операции: Refresh (полная перезагрузка коллекций), Reset (сброс).
// Инкрементального слияния по событиям нет: любое изменение — полный re-fetch.
//
// Refresh идемпотентен и безопасен при параллельных вызовах: выборка идёт
// без блокировки, подмена кэша — под мьютексом. Намеренно нет счётчика
// поколений: из двух одновременных обновлений побеждает завершившееся
// последним, независимо от порядка запуска.
package store

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики сторов.
var (
	storeRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_store_refresh_total",
		Help: "Количество полных перезагрузок стора",
	}, []string{"store", "result"}) // result: ok, error

	storeResetTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_store_reset_total",
		Help: "Количество сбросов стора",
	}, []string{"store"})

	storeTruncatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_store_snapshot_truncated_total",
		Help: "Количество перезагрузок, упёршихся в лимит полной выборки",
	}, []string{"store", "collection"})
)

// checkTruncated фиксирует перезагрузку, упёршуюся в snapshotLimit:
// коллекция в БД больше лимита, и снимок в кэше неполный.
func checkTruncated(logger *slog.Logger, store, collection string, count int) {
	if count < snapshotLimit {
		return
	}
	storeTruncatedTotal.WithLabelValues(store, collection).Inc()
	logger.Warn("Снимок коллекции обрезан по лимиту выборки",
		slog.String("collection", collection),
		slog.Int("limit", snapshotLimit))
}
