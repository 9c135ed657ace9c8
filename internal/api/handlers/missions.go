// missions.go — обработчики /api/v1/missions endpoints.
// CRUD миссий и назначения техников на миссию.
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

// missionRequest — тело запроса создания/обновления миссии.
type missionRequest struct {
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	Location    string    `json:"location"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Fee         float64   `json:"fee"`
	Description *string   `json:"description,omitempty"`
}

// missionResponse — представление миссии в API.
type missionResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Type          string    `json:"type"`
	Location      string    `json:"location"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	Fee           float64   `json:"fee"`
	Description   *string   `json:"description,omitempty"`
	AssignedCount int       `json:"assigned_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// missionListResponse — ответ списка миссий.
type missionListResponse struct {
	Items   []missionResponse `json:"items"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	HasMore bool              `json:"has_more"`
}

// ListMissions — GET /api/v1/missions.
// Фильтры: type, from (RFC3339), limit, offset.
// Доступ: admin и technician.
func (h *APIHandler) ListMissions(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)
	missionType := optionalQuery(r, "type")

	var from *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierrors.ValidationError(w, "Параметр from: ожидается RFC3339")
			return
		}
		from = &t
	}

	missions, total, err := h.missions.List(r.Context(), missionType, from, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка получения списка миссий", "error", err)
		apierrors.InternalError(w, "Ошибка получения списка миссий")
		return
	}

	items := make([]missionResponse, len(missions))
	for i, m := range missions {
		items[i] = mapMission(m)
	}

	writeJSON(w, http.StatusOK, missionListResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}

// GetMission — GET /api/v1/missions/{id}.
func (h *APIHandler) GetMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	mission, err := h.missions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Миссия не найдена")
			return
		}
		h.logger.Error("Ошибка получения миссии", "mission_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка получения миссии")
		return
	}

	writeJSON(w, http.StatusOK, mapMission(mission))
}

// CreateMission — POST /api/v1/missions.
// Доступ: admin.
func (h *APIHandler) CreateMission(w http.ResponseWriter, r *http.Request) {
	var req missionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	mission, err := h.missions.Create(r.Context(), missionInput(&req))
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка создания миссии", "error", err)
		apierrors.InternalError(w, "Ошибка создания миссии")
		return
	}

	writeJSON(w, http.StatusCreated, mapMission(mission))
}

// UpdateMission — PUT /api/v1/missions/{id}.
// При переносе окна проверяются конфликты расписания назначенных техников.
// Доступ: admin.
func (h *APIHandler) UpdateMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req missionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	mission, err := h.missions.Update(r.Context(), id, missionInput(&req))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Миссия не найдена")
		case errors.Is(err, service.ErrScheduleConflict):
			apierrors.ScheduleConflict(w, err.Error())
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		default:
			h.logger.Error("Ошибка обновления миссии", "mission_id", id, "error", err)
			apierrors.InternalError(w, "Ошибка обновления миссии")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapMission(mission))
}

// DeleteMission — DELETE /api/v1/missions/{id}.
// Назначения и записи биллинга удаляются каскадно.
// Доступ: admin.
func (h *APIHandler) DeleteMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.missions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Миссия не найдена")
			return
		}
		h.logger.Error("Ошибка удаления миссии", "mission_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка удаления миссии")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMyMissions — GET /api/v1/missions/my.
// Миссии, на которые назначен текущий техник.
func (h *APIHandler) ListMyMissions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	missions, err := h.missions.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Ошибка получения миссий техника", "user_id", user.ID, "error", err)
		apierrors.InternalError(w, "Ошибка получения миссий")
		return
	}

	items := make([]missionResponse, len(missions))
	for i, m := range missions {
		items[i] = mapMission(m)
	}

	writeJSON(w, http.StatusOK, missionListResponse{
		Items:   items,
		Total:   len(items),
		Limit:   len(items),
		Offset:  0,
		HasMore: false,
	})
}

// currentUser резолвит локального пользователя по sub из JWT.
func (h *APIHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	sub := middleware.SubjectFromContext(r.Context())
	if sub == "" {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return nil, false
	}

	user, err := h.users.GetByKeycloakID(r.Context(), sub)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.Forbidden(w, "Пользователь не зарегистрирован в модуле")
			return nil, false
		}
		h.logger.Error("Ошибка резолва текущего пользователя", "sub", sub, "error", err)
		apierrors.InternalError(w, "Ошибка получения пользователя")
		return nil, false
	}

	return user, true
}

// --- Маппинг domain → API ---

func missionInput(req *missionRequest) *service.MissionInput {
	return &service.MissionInput{
		Title:       req.Title,
		Type:        req.Type,
		Location:    req.Location,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Fee:         req.Fee,
		Description: req.Description,
	}
}

func mapMission(m *model.Mission) missionResponse {
	return missionResponse{
		ID:            m.ID,
		Title:         m.Title,
		Type:          m.Type,
		Location:      m.Location,
		Latitude:      m.Latitude,
		Longitude:     m.Longitude,
		StartAt:       m.StartAt,
		EndAt:         m.EndAt,
		Fee:           m.Fee,
		Description:   m.Description,
		AssignedCount: m.AssignedCount,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
