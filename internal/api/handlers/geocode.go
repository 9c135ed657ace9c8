// geocode.go — обработчик /api/v1/geocode.
// Разрешение адреса в список кандидатов через сервис геокодирования.
package handlers

import (
	"net/http"
	"strconv"

	apierrors "github.com/staffmission/dispatch/internal/api/errors"
)

// geocodeCandidate — один кандидат геокодирования.
type geocodeCandidate struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name"`
}

// geocodeResponse — список кандидатов в порядке релевантности.
// Первый кандидат — предлагаемый по умолчанию, выбор за клиентом.
type geocodeResponse struct {
	Found      bool               `json:"found"`
	Candidates []geocodeCandidate `json:"candidates"`
}

// Geocode — GET /api/v1/geocode?address=...&limit=N
// Возвращает кандидатов для адреса или found=false, если адрес не найден.
// Доступ: admin.
func (h *APIHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		apierrors.ValidationError(w, "Параметр address обязателен")
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 1 && v <= 10 {
			limit = v
		}
	}

	candidates, err := h.geocode.Candidates(r.Context(), address, limit)
	if err != nil {
		h.logger.Warn("Ошибка геокодирования", "address", address, "error", err)
		apierrors.InternalError(w, "Геокодер недоступен")
		return
	}

	resp := geocodeResponse{
		Found:      len(candidates) > 0,
		Candidates: make([]geocodeCandidate, 0, len(candidates)),
	}
	for _, c := range candidates {
		resp.Candidates = append(resp.Candidates, geocodeCandidate{
			Latitude:    c.Latitude,
			Longitude:   c.Longitude,
			DisplayName: c.DisplayName,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
