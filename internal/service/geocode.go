// geocode.go — сервис геокодирования адресов с кэшем.
//
// Результаты геокодирования кэшируются в LRU с TTL: повторные запросы
// одинаковых адресов (типичны при редактировании миссии) не нагружают
// внешний геокодер. Отрицательные результаты (адрес не найден)
// тоже кэшируются.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/staffmission/dispatch/internal/geoclient"
)

// Prometheus-метрики геокодирования.
var geocodeLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dm_geocode_lookups_total",
	Help: "Количество запросов геокодирования по источнику (cache, remote, error).",
}, []string{"source"})

// Geocoder — клиент геокодирования.
type Geocoder interface {
	Search(ctx context.Context, address string) (*geoclient.Location, error)
	SearchRanked(ctx context.Context, address string, limit int) ([]geoclient.Location, error)
}

// cacheEntry — закэшированный результат; nil Location — адрес не найден.
type cacheEntry struct {
	location *geoclient.Location
}

// GeocodeService — геокодирование адресов миссий с LRU-кэшем.
type GeocodeService struct {
	client Geocoder
	cache  *expirable.LRU[string, cacheEntry]
	logger *slog.Logger
}

// NewGeocodeService создаёт сервис геокодирования.
// size — ёмкость LRU-кэша, ttl — время жизни записи.
func NewGeocodeService(client Geocoder, size int, ttl time.Duration, logger *slog.Logger) *GeocodeService {
	return &GeocodeService{
		client: client,
		cache:  expirable.NewLRU[string, cacheEntry](size, nil, ttl),
		logger: logger.With(slog.String("component", "geocode_service")),
	}
}

// cacheKey нормализует адрес для использования в качестве ключа кэша.
func cacheKey(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// Resolve геокодирует адрес. Возвращает nil, nil если адрес не найден.
func (s *GeocodeService) Resolve(ctx context.Context, address string) (*geoclient.Location, error) {
	key := cacheKey(address)
	if key == "" {
		return nil, nil
	}

	if entry, ok := s.cache.Get(key); ok {
		geocodeLookups.WithLabelValues("cache").Inc()
		return entry.location, nil
	}

	loc, err := s.client.Search(ctx, address)
	if err != nil {
		geocodeLookups.WithLabelValues("error").Inc()
		return nil, err
	}

	s.cache.Add(key, cacheEntry{location: loc})
	geocodeLookups.WithLabelValues("remote").Inc()

	return loc, nil
}

// Candidates возвращает до limit кандидатов геокодирования в порядке
// релевантности. Список не кэшируется: запрос интерактивный, клиент
// выбирает кандидата вручную и каждый ввод адреса уникален.
func (s *GeocodeService) Candidates(ctx context.Context, address string, limit int) ([]geoclient.Location, error) {
	if cacheKey(address) == "" {
		return nil, nil
	}

	candidates, err := s.client.SearchRanked(ctx, address, limit)
	if err != nil {
		geocodeLookups.WithLabelValues("error").Inc()
		return nil, err
	}

	geocodeLookups.WithLabelValues("remote").Inc()
	return candidates, nil
}
