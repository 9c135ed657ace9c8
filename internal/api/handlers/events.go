// events.go — SSE (Server-Sent Events) endpoint для real-time обновлений.
// GET /api/v1/events: поток событий для одной вкладки —
// событие subscription с идентификатором вкладки, auth-сообщения hub
// (выход в другой вкладке) и периодические снимки состояния сторов.
// Каждый SSE-клиент обслуживается отдельной горутиной.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/staffmission/dispatch/internal/api/errors"
	"github.com/staffmission/dispatch/internal/api/middleware"
	"github.com/staffmission/dispatch/internal/session"
	"github.com/staffmission/dispatch/internal/store"
)

// DegradedChecker — признак деградации realtime-слушателя для SSE-клиентов.
type DegradedChecker interface {
	Degraded() bool
}

// EventsHandler — обработчик SSE endpoint.
type EventsHandler struct {
	hub          *session.Hub
	missionStore *store.MissionStore
	adminStore   *store.AdminStore
	realtime     DegradedChecker
	sseInterval  time.Duration
	logger       *slog.Logger
}

// NewEventsHandler создаёт обработчик SSE endpoint.
// sseInterval — интервал отправки снимков сторов (DM_SSE_INTERVAL).
func NewEventsHandler(
	hub *session.Hub,
	missionStore *store.MissionStore,
	adminStore *store.AdminStore,
	realtime DegradedChecker,
	sseInterval time.Duration,
	logger *slog.Logger,
) *EventsHandler {
	return &EventsHandler{
		hub:          hub,
		missionStore: missionStore,
		adminStore:   adminStore,
		realtime:     realtime,
		sseInterval:  sseInterval,
		logger:       logger.With(slog.String("component", "events_handler")),
	}
}

// subscriptionEvent — первое событие потока: идентификатор вкладки.
// Клиент передаёт его в X-Tab-ID при logout, чтобы не получить
// собственное уведомление обратно.
type subscriptionEvent struct {
	TabID string `json:"tab_id"`
}

// storeStatusEvent — периодическое событие состояния сторов.
type storeStatusEvent struct {
	Missions struct {
		Count    int    `json:"count"`
		Fresh    bool   `json:"fresh"`
		LoadedAt string `json:"loaded_at,omitempty"`
	} `json:"missions"`
	Admin struct {
		Users          int    `json:"users"`
		Billing        int    `json:"billing"`
		Availabilities int    `json:"availabilities"`
		Fresh          bool   `json:"fresh"`
		LoadedAt       string `json:"loaded_at,omitempty"`
	} `json:"admin"`
	// RealtimeDegraded — true, если LISTEN/NOTIFY недоступен и снимки
	// могут отставать от БД. Клиент может предложить ручное обновление.
	RealtimeDegraded bool `json:"realtime_degraded"`
}

// HandleEvents — GET /api/v1/events.
// Формат: event: <type>\ndata: {json}\n\n.
// Graceful disconnect при закрытии клиентом соединения (context cancel).
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	// Настраиваем заголовки SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Отключаем буферизацию Nginx

	// Используем http.ResponseController для корректной работы Flush()
	// через обёрнутый ResponseWriter (logging middleware и др.).
	// ResponseController вызывает Unwrap() и находит оригинальный http.Flusher.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	// Подписка вкладки на auth-сообщения своего аккаунта
	sub := h.hub.Subscribe(claims.Subject)
	defer h.hub.Unsubscribe(sub)

	h.logger.Debug("SSE клиент подключён",
		slog.String("account_id", claims.Subject),
		slog.String("tab_id", sub.ID()),
		slog.String("remote_addr", r.RemoteAddr),
	)

	// Первое событие — идентификатор подписки вкладки
	h.sendEvent(w, rc, "subscription", subscriptionEvent{TabID: sub.ID()})

	// Состояние аутентификации при (пере)подключении — справочное,
	// вкладка сверяет его со своим локальным состоянием
	h.sendEvent(w, rc, "auth", session.AuthMessage{
		Authenticated: true,
		AccountID:     claims.Subject,
	})

	// Начальный снимок состояния сторов
	h.sendStoreStatus(w, rc)

	ticker := time.NewTicker(h.sseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Клиент отключился
			h.logger.Debug("SSE клиент отключён",
				slog.String("account_id", claims.Subject),
				slog.String("tab_id", sub.ID()),
			)
			return

		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			h.sendEvent(w, rc, "auth", msg)

		case <-ticker.C:
			h.sendStoreStatus(w, rc)
		}
	}
}

// sendStoreStatus отправляет SSE-событие с состоянием сторов.
func (h *EventsHandler) sendStoreStatus(w http.ResponseWriter, rc *http.ResponseController) {
	event := storeStatusEvent{}

	missions := h.missionStore.Snapshot()
	event.Missions.Count = len(missions.Missions)
	event.Missions.Fresh = missions.Fresh
	if !missions.LoadedAt.IsZero() {
		event.Missions.LoadedAt = missions.LoadedAt.Format(time.RFC3339)
	}

	admin := h.adminStore.Snapshot()
	event.Admin.Users = len(admin.Users)
	event.Admin.Billing = len(admin.Billing)
	event.Admin.Availabilities = len(admin.Availabilities)
	event.Admin.Fresh = admin.Fresh
	if !admin.LoadedAt.IsZero() {
		event.Admin.LoadedAt = admin.LoadedAt.Format(time.RFC3339)
	}

	if h.realtime != nil {
		event.RealtimeDegraded = h.realtime.Degraded()
	}

	h.sendEvent(w, rc, "store-status", event)
}

// sendEvent сериализует и отправляет одно SSE-событие.
func (h *EventsHandler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Ошибка сериализации SSE-события",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
		return
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	_ = rc.Flush()
}
