// session.go — обработчики /api/v1/session endpoints.
// Зашифрованный сессионный cookie и синхронизация состояния
// аутентификации между вкладками одного аккаунта.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/staffmission/dispatch/internal/api/errors"
	"github.com/staffmission/dispatch/internal/api/middleware"
	"github.com/staffmission/dispatch/internal/session"
)

// tabIDHeader — заголовок с идентификатором подписки вкладки-инициатора.
// Вкладка получает его при подключении к /api/v1/events.
const tabIDHeader = "X-Tab-ID"

// SessionHandler — обработчик endpoints управления сессией.
type SessionHandler struct {
	sync    *session.Synchronizer
	manager *session.Manager
	logger  *slog.Logger
}

// NewSessionHandler создаёт обработчик сессионных endpoints.
func NewSessionHandler(sync *session.Synchronizer, manager *session.Manager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sync:    sync,
		manager: manager,
		logger:  logger.With(slog.String("component", "session_handler")),
	}
}

// sessionTokenRequest — тело запроса установки/обновления сессии.
type sessionTokenRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// sessionResponse — состояние сессии для клиента.
type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	AccountID     string `json:"account_id,omitempty"`
	Username      string `json:"username,omitempty"`
	Role          string `json:"role,omitempty"`
	Expired       bool   `json:"expired,omitempty"`
}

// GetSession — GET /api/v1/session.
// Возвращает состояние сессии из cookie. Отсутствие cookie — не ошибка.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	data, err := h.manager.FromRequest(r)
	if err != nil {
		// Повреждённый или нерасшифровываемый cookie приравнивается к отсутствию
		writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}
	if data == nil {
		writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		AccountID:     data.AccountID,
		Username:      data.Username,
		Role:          data.Role,
		Expired:       data.IsExpired(),
	})
}

// Login — POST /api/v1/session/login.
// Устанавливает зашифрованный сессионный cookie. Идентификация аккаунта
// берётся из JWT; вход не распространяется на другие вкладки.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var req sessionTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	data := &session.Data{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt,
		AccountID:    claims.Subject,
		Username:     claims.PreferredUsername,
		Role:         claims.Role,
	}

	if err := h.sync.Login(w, data); err != nil {
		h.logger.Error("Ошибка установки сессионного cookie", "error", err)
		apierrors.InternalError(w, "Ошибка установки сессии")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Logout — POST /api/v1/session/logout.
// Удаляет cookie, сбрасывает серверные сторы и уведомляет остальные
// вкладки аккаунта. Вкладка-инициатор (X-Tab-ID) уведомления не получает.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	data, err := h.manager.FromRequest(r)
	if err != nil || data == nil {
		// Выход без сессии идемпотентен: чистим cookie и выходим
		h.manager.ClearCookie(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	senderID := r.Header.Get(tabIDHeader)
	h.sync.Logout(w, data.AccountID, senderID)

	w.WriteHeader(http.StatusNoContent)
}

// Refresh — POST /api/v1/session/refresh.
// Перезаписывает cookie обновлёнными токенами. Конкурентные обновления
// из разных вкладок разрешаются по принципу «последняя запись побеждает».
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	data, err := h.manager.FromRequest(r)
	if err != nil || data == nil {
		apierrors.Unauthorized(w, "Сессия отсутствует")
		return
	}

	var req sessionTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	data.AccessToken = req.AccessToken
	data.RefreshToken = req.RefreshToken
	data.ExpiresAt = req.ExpiresAt

	if err := h.sync.Refresh(w, data); err != nil {
		h.logger.Error("Ошибка обновления сессионного cookie", "error", err)
		apierrors.InternalError(w, "Ошибка обновления сессии")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// forceSyncRequest — тело запроса принудительной синхронизации.
type forceSyncRequest struct {
	Authenticated bool `json:"authenticated"`
}

// ForceSync — POST /api/v1/session/force-sync.
// Рассылает текущее состояние аутентификации всем вкладкам аккаунта,
// включая инициатора. Восстанавливает согласованность после сбоев.
func (h *SessionHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	data, err := h.manager.FromRequest(r)
	if err != nil || data == nil {
		apierrors.Unauthorized(w, "Сессия отсутствует")
		return
	}

	var req forceSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	h.sync.ForceSync(data.AccountID, req.Authenticated)

	w.WriteHeader(http.StatusNoContent)
}
