// assignments.go — обработчики назначений техников на миссии.
// POST /api/v1/missions/{id}/assignments — назначить техника,
// DELETE /api/v1/assignments/{id} — снять назначение,
// POST /api/v1/assignments/{id}/notify — отправить email-уведомление.
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

// assignmentRequest — тело запроса назначения техника.
type assignmentRequest struct {
	UserID string `json:"user_id"`
}

// assignmentResponse — представление назначения в API.
type assignmentResponse struct {
	ID        string    `json:"id"`
	MissionID string    `json:"mission_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// assignmentListResponse — ответ списка назначений.
type assignmentListResponse struct {
	Items []assignmentResponse `json:"items"`
}

// ListMissionAssignments — GET /api/v1/missions/{id}/assignments.
func (h *APIHandler) ListMissionAssignments(w http.ResponseWriter, r *http.Request) {
	missionID := chi.URLParam(r, "id")

	items, err := h.assignments.ListByMission(r.Context(), missionID)
	if err != nil {
		h.logger.Error("Ошибка получения назначений", "mission_id", missionID, "error", err)
		apierrors.InternalError(w, "Ошибка получения назначений")
		return
	}

	resp := assignmentListResponse{Items: make([]assignmentResponse, len(items))}
	for i, a := range items {
		resp.Items[i] = mapAssignment(a)
	}

	writeJSON(w, http.StatusOK, resp)
}

// AssignTechnician — POST /api/v1/missions/{id}/assignments.
// Назначает техника на миссию: проверяются статус и валидация техника,
// пересечения с его занятыми окнами; создаётся запись биллинга.
// Доступ: admin.
func (h *APIHandler) AssignTechnician(w http.ResponseWriter, r *http.Request) {
	missionID := chi.URLParam(r, "id")

	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	assignment, err := h.assignments.Assign(r.Context(), missionID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Миссия или пользователь не найдены")
		case errors.Is(err, service.ErrScheduleConflict):
			apierrors.ScheduleConflict(w, err.Error())
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, "Техник уже назначен на эту миссию")
		case errors.Is(err, service.ErrUserDisabled):
			apierrors.ValidationError(w, "Техник отключён и не может получать назначения")
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		default:
			h.logger.Error("Ошибка назначения техника",
				"mission_id", missionID, "user_id", req.UserID, "error", err)
			apierrors.InternalError(w, "Ошибка назначения техника")
		}
		return
	}

	writeJSON(w, http.StatusCreated, mapAssignment(assignment))
}

// UnassignTechnician — DELETE /api/v1/assignments/{id}.
// Снимает назначение; связанная запись биллинга удаляется.
// Доступ: admin.
func (h *APIHandler) UnassignTechnician(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.assignments.Unassign(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Назначение не найдено")
			return
		}
		h.logger.Error("Ошибка снятия назначения", "assignment_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка снятия назначения")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// NotifyAssignment — POST /api/v1/assignments/{id}/notify.
// Составляет и отправляет email-уведомление технику о назначении.
// Результат отправки возвращается как есть: успех и ошибка — данные ответа.
// Доступ: admin.
func (h *APIHandler) NotifyAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := middleware.ClaimsFromContext(r.Context())
	senderName := ""
	if claims != nil {
		senderName = claims.PreferredUsername
	}

	result, err := h.notify.NotifyAssignment(r.Context(), id, senderName)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Назначение не найдено")
			return
		}
		h.logger.Error("Ошибка отправки уведомления", "assignment_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка отправки уведомления")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- Маппинг domain → API ---

func mapAssignment(a *model.Assignment) assignmentResponse {
	return assignmentResponse{
		ID:        a.ID,
		MissionID: a.MissionID,
		UserID:    a.UserID,
		CreatedAt: a.CreatedAt,
	}
}
