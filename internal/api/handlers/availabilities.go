// availabilities.go — обработчики /api/v1/availabilities endpoints.
// Интервалы доступности техника: время суток в формате HH:MM.
// Техник управляет только своими интервалами, администратор — любыми.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/staffmission/dispatch/internal/api/errors"
	"github.com/staffmission/dispatch/internal/api/middleware"
	"github.com/staffmission/dispatch/internal/domain/model"
	"github.com/staffmission/dispatch/internal/service"
)

// timeOfDayLayout — формат времени суток в API.
const timeOfDayLayout = "15:04"

// availabilityRequest — тело запроса создания/обновления интервала.
type availabilityRequest struct {
	// UserID — владелец интервала; техник может опустить (подставляется свой).
	UserID    string `json:"user_id,omitempty"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// availabilityResponse — представление интервала в API.
type availabilityResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// availabilityListResponse — ответ списка интервалов.
type availabilityListResponse struct {
	Items []availabilityResponse `json:"items"`
}

// parseTimeOfDay разбирает время суток из строки HH:MM.
func parseTimeOfDay(v string) (time.Time, error) {
	return time.Parse(timeOfDayLayout, v)
}

// availabilityScope определяет владельца и ограничение доступа:
// админ работает с любыми интервалами (owner = ""), техник — со своими.
func (h *APIHandler) availabilityScope(w http.ResponseWriter, r *http.Request) (localUserID, owner string, ok bool) {
	role := middleware.RoleFromContext(r.Context())

	user, found := h.currentUser(w, r)
	if !found {
		return "", "", false
	}

	if isAdmin(role) {
		return user.ID, "", true
	}
	return user.ID, user.ID, true
}

// ListAvailabilities — GET /api/v1/availabilities.
// Админ может запросить интервалы любого техника через ?user_id=,
// техник видит только свои.
func (h *APIHandler) ListAvailabilities(w http.ResponseWriter, r *http.Request) {
	localUserID, owner, ok := h.availabilityScope(w, r)
	if !ok {
		return
	}

	targetUser := localUserID
	if owner == "" {
		if v := r.URL.Query().Get("user_id"); v != "" {
			targetUser = v
		}
	}

	items, err := h.avails.ListByUser(r.Context(), targetUser)
	if err != nil {
		h.logger.Error("Ошибка получения интервалов доступности", "user_id", targetUser, "error", err)
		apierrors.InternalError(w, "Ошибка получения интервалов доступности")
		return
	}

	resp := availabilityListResponse{Items: make([]availabilityResponse, len(items))}
	for i, a := range items {
		resp.Items[i] = mapAvailability(a)
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateAvailability — POST /api/v1/availabilities.
func (h *APIHandler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	localUserID, owner, ok := h.availabilityScope(w, r)
	if !ok {
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	start, err := parseTimeOfDay(req.StartTime)
	if err != nil {
		apierrors.ValidationError(w, "start_time: ожидается формат HH:MM")
		return
	}
	end, err := parseTimeOfDay(req.EndTime)
	if err != nil {
		apierrors.ValidationError(w, "end_time: ожидается формат HH:MM")
		return
	}

	// Техник создаёт интервалы только себе; админ может указать любого.
	targetUser := localUserID
	if owner == "" && req.UserID != "" {
		targetUser = req.UserID
	}

	availability, err := h.avails.Create(r.Context(), targetUser, start, end)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка создания интервала доступности", "user_id", targetUser, "error", err)
		apierrors.InternalError(w, "Ошибка создания интервала доступности")
		return
	}

	writeJSON(w, http.StatusCreated, mapAvailability(availability))
}

// UpdateAvailability — PUT /api/v1/availabilities/{id}.
func (h *APIHandler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, owner, ok := h.availabilityScope(w, r)
	if !ok {
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	start, err := parseTimeOfDay(req.StartTime)
	if err != nil {
		apierrors.ValidationError(w, "start_time: ожидается формат HH:MM")
		return
	}
	end, err := parseTimeOfDay(req.EndTime)
	if err != nil {
		apierrors.ValidationError(w, "end_time: ожидается формат HH:MM")
		return
	}

	availability, err := h.avails.Update(r.Context(), id, owner, start, end)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Интервал доступности не найден")
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		default:
			h.logger.Error("Ошибка обновления интервала доступности", "availability_id", id, "error", err)
			apierrors.InternalError(w, "Ошибка обновления интервала доступности")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapAvailability(availability))
}

// DeleteAvailability — DELETE /api/v1/availabilities/{id}.
func (h *APIHandler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, owner, ok := h.availabilityScope(w, r)
	if !ok {
		return
	}

	if err := h.avails.Delete(r.Context(), id, owner); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Интервал доступности не найден")
			return
		}
		h.logger.Error("Ошибка удаления интервала доступности", "availability_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка удаления интервала доступности")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Маппинг domain → API ---

func mapAvailability(a *model.Availability) availabilityResponse {
	return availabilityResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		StartTime: a.StartTime.Format(timeOfDayLayout),
		EndTime:   a.EndTime.Format(timeOfDayLayout),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
