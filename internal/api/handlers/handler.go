// handler.go — основной обработчик API Dispatch Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/staffmission/dispatch/internal/domain/rbac"
	"github.com/staffmission/dispatch/internal/service"
)

// APIHandler — основной обработчик API Dispatch Module.
type APIHandler struct {
	health      *HealthHandler
	missions    *service.MissionService
	users       *service.UserService
	avails      *service.AvailabilityService
	assignments *service.AssignmentService
	billing     *service.BillingService
	notify      *service.NotifyService
	geocode     *service.GeocodeService
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	missions *service.MissionService,
	users *service.UserService,
	avails *service.AvailabilityService,
	assignments *service.AssignmentService,
	billing *service.BillingService,
	notify *service.NotifyService,
	geocode *service.GeocodeService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		missions:    missions,
		users:       users,
		avails:      avails,
		assignments: assignments,
		billing:     billing,
		notify:      notify,
		geocode:     geocode,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationParams извлекает и нормализует limit/offset из query-параметров.
func paginationParams(r *http.Request) (int, int) {
	l := 100
	o := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			l = n
		}
	}
	if l < 1 {
		l = 1
	}
	if l > 1000 {
		l = 1000
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o = n
		}
	}
	if o < 0 {
		o = 0
	}

	return l, o
}

// optionalQuery возвращает указатель на значение query-параметра
// или nil, если параметр не задан.
func optionalQuery(r *http.Request, name string) *string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	return &v
}

// isAdmin проверяет, что роль — администратор.
func isAdmin(role string) bool {
	return role == rbac.RoleAdmin
}
