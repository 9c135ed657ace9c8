// billing.go — обработчики /api/v1/billing endpoints.
// Записи биллинга создаются при назначении техника; статус движется
// только вперёд: pending → invoiced → paid.
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

// billingResponse — представление записи биллинга в API.
type billingResponse struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	MissionID    string    `json:"mission_id"`
	UserID       string    `json:"user_id"`
	Amount       float64   `json:"amount"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// billingListResponse — ответ списка записей биллинга.
type billingListResponse struct {
	Items  []billingResponse `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// ListBilling — GET /api/v1/billing.
// Фильтры: user_id, status, limit, offset.
// Техник видит только свои записи; админ — любые.
func (h *APIHandler) ListBilling(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)
	status := optionalQuery(r, "status")
	userID := optionalQuery(r, "user_id")

	role := middleware.RoleFromContext(r.Context())
	if !isAdmin(role) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		userID = &user.ID
	}

	items, err := h.billing.List(r.Context(), userID, status, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка получения записей биллинга", "error", err)
		apierrors.InternalError(w, "Ошибка получения записей биллинга")
		return
	}

	resp := billingListResponse{
		Items:  make([]billingResponse, len(items)),
		Limit:  limit,
		Offset: offset,
	}
	for i, b := range items {
		resp.Items[i] = mapBilling(b)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetBilling — GET /api/v1/billing/{id}.
func (h *APIHandler) GetBilling(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.billing.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Запись биллинга не найдена")
			return
		}
		h.logger.Error("Ошибка получения записи биллинга", "billing_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка получения записи биллинга")
		return
	}

	// Техник может смотреть только свои записи
	if !isAdmin(middleware.RoleFromContext(r.Context())) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		if record.UserID != user.ID {
			apierrors.NotFound(w, "Запись биллинга не найдена")
			return
		}
	}

	writeJSON(w, http.StatusOK, mapBilling(record))
}

// billingAdvanceRequest — тело запроса перевода статуса.
type billingAdvanceRequest struct {
	Status string `json:"status"`
}

// AdvanceBilling — POST /api/v1/billing/{id}/advance.
// Переводит запись в следующий статус. Откаты и перескоки запрещены.
// Доступ: admin.
func (h *APIHandler) AdvanceBilling(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req billingAdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	record, err := h.billing.Advance(r.Context(), id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Запись биллинга не найдена")
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		default:
			h.logger.Error("Ошибка перевода статуса биллинга", "billing_id", id, "error", err)
			apierrors.InternalError(w, "Ошибка перевода статуса биллинга")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapBilling(record))
}

// --- Маппинг domain → API ---

func mapBilling(b *model.BillingRecord) billingResponse {
	return billingResponse{
		ID:           b.ID,
		AssignmentID: b.AssignmentID,
		MissionID:    b.MissionID,
		UserID:       b.UserID,
		Amount:       b.Amount,
		Status:       b.Status,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}
