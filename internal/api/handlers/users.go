// users.go — обработчики /api/v1/users endpoints.
// Управление пользователями: создание (Keycloak + локальная БД), валидация,
// статус, сброс пароля, проверка сложности пароля.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/staffmission/dispatch/internal/api/errors"
	"github.com/staffmission/dispatch/internal/domain/model"
	"github.com/staffmission/dispatch/internal/service"
)

// userCreateRequest — тело запроса создания пользователя.
type userCreateRequest struct {
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone,omitempty"`
	Password string  `json:"password"`
}

// userUpdateRequest — тело запроса обновления пользователя.
type userUpdateRequest struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
}

// userResponse — представление пользователя в API.
// Keycloak ID и пароль наружу не отдаются.
type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	Validated bool      `json:"validated"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// userListResponse — ответ списка пользователей.
type userListResponse struct {
	Items  []userResponse `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListUsers — GET /api/v1/users.
// Фильтры: role, status, limit, offset.
// Доступ: admin.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)
	role := optionalQuery(r, "role")
	status := optionalQuery(r, "status")

	users, err := h.users.List(r.Context(), role, status, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка получения списка пользователей", "error", err)
		apierrors.InternalError(w, "Ошибка получения списка пользователей")
		return
	}

	items := make([]userResponse, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}

	writeJSON(w, http.StatusOK, userListResponse{Items: items, Limit: limit, Offset: offset})
}

// GetUser — GET /api/v1/users/{id}.
// Доступ: admin.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Пользователь не найден")
			return
		}
		h.logger.Error("Ошибка получения пользователя", "user_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка получения пользователя")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// CreateUser — POST /api/v1/users.
// Создаёт учётную запись в Keycloak и локальную запись.
// Доступ: admin.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	user, err := h.users.Create(r.Context(), &service.UserInput{
		Name:     req.Name,
		Role:     req.Role,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWeakPassword):
			apierrors.WeakPassword(w, err.Error())
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, "Пользователь с таким email уже существует")
		case errors.Is(err, service.ErrIDPUnavailable):
			apierrors.IDPUnavailable(w, "Keycloak недоступен")
		default:
			h.logger.Error("Ошибка создания пользователя", "error", err)
			apierrors.InternalError(w, "Ошибка создания пользователя")
		}
		return
	}

	writeJSON(w, http.StatusCreated, mapUser(user))
}

// UpdateUser — PUT /api/v1/users/{id}.
// Смена email синхронизируется в Keycloak.
// Доступ: admin.
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req userUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	user, err := h.users.Update(r.Context(), id, req.Name, req.Email, req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Пользователь не найден")
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrIDPUnavailable):
			apierrors.IDPUnavailable(w, "Keycloak недоступен")
		default:
			h.logger.Error("Ошибка обновления пользователя", "user_id", id, "error", err)
			apierrors.InternalError(w, "Ошибка обновления пользователя")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// ValidateUser — POST /api/v1/users/{id}/validate.
// Подтверждает аккаунт: до этого техник не может получать назначения.
// Доступ: admin.
func (h *APIHandler) ValidateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.users.Validate(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Пользователь не найден")
			return
		}
		h.logger.Error("Ошибка валидации пользователя", "user_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка валидации пользователя")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// userStatusRequest — тело запроса смены статуса.
type userStatusRequest struct {
	Status string `json:"status"`
}

// SetUserStatus — PUT /api/v1/users/{id}/status.
// Статус синхронизируется с enabled в Keycloak.
// Доступ: admin.
func (h *APIHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req userStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.users.SetStatus(r.Context(), id, req.Status); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Пользователь не найден")
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrIDPUnavailable):
			apierrors.IDPUnavailable(w, "Keycloak недоступен")
		default:
			h.logger.Error("Ошибка смены статуса", "user_id", id, "error", err)
			apierrors.InternalError(w, "Ошибка смены статуса")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// passwordRequest — тело запроса сброса/проверки пароля.
type passwordRequest struct {
	Password string `json:"password"`
}

// ResetUserPassword — POST /api/v1/users/{id}/reset-password.
// Пароль проверяется на сложность до обращения к Keycloak.
// Доступ: admin.
func (h *APIHandler) ResetUserPassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.users.ResetPassword(r.Context(), id, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrWeakPassword):
			apierrors.WeakPassword(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Пользователь не найден")
		case errors.Is(err, service.ErrIDPUnavailable):
			apierrors.IDPUnavailable(w, "Keycloak недоступен")
		default:
			h.logger.Error("Ошибка сброса пароля", "user_id", id, "error", err)
			apierrors.InternalError(w, "Ошибка сброса пароля")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CheckPassword — POST /api/v1/users/password-check.
// Возвращает оценку сложности пароля и список невыполненных правил.
// Чистая проверка без побочных эффектов, доступна всем аутентифицированным.
func (h *APIHandler) CheckPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.users.CheckPassword(req.Password))
}

// Me — GET /api/v1/users/me.
// Возвращает локального пользователя, соответствующего текущему JWT.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// --- Маппинг domain → API ---

func mapUser(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Role:      u.Role,
		Email:     u.Email,
		Phone:     u.Phone,
		Validated: u.Validated,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
