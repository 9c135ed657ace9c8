package session

import (
	"log/slog"
	"net/http"
)

// SignOutObserver получает уведомление о выходе пользователя.
// Наблюдатель отвечает за сброс зависимого состояния (кэши коллекций);
// реализуется realtime.Invalidator.
type SignOutObserver interface {
	HandleSignOut()
}

// Synchronizer — синхронизатор состояния аутентификации между вкладками.
// Выход в одной вкладке распространяется на остальные вкладки аккаунта:
// наблюдатель сбрасывает кэши, вкладкам отправляется сигнал
// перенаправления на страницу входа.
// Вход НЕ распространяется: остальные вкладки продолжают работать
// со своим состоянием до следующего запроса.
type Synchronizer struct {
	manager *Manager
	hub     *Hub
	logger  *slog.Logger
	// signOut — наблюдатель выхода (может быть nil).
	signOut SignOutObserver
}

// NewSynchronizer создаёт новый синхронизатор сессий.
func NewSynchronizer(manager *Manager, hub *Hub, logger *slog.Logger, signOut SignOutObserver) *Synchronizer {
	return &Synchronizer{
		manager: manager,
		hub:     hub,
		logger:  logger.With(slog.String("component", "session_sync")),
		signOut: signOut,
	}
}

// Login устанавливает сессионный cookie после успешной аутентификации.
// Сообщение в hub не публикуется: вход не затрагивает другие вкладки.
func (s *Synchronizer) Login(w http.ResponseWriter, data *Data) error {
	if err := s.manager.SetCookie(w, data); err != nil {
		return err
	}

	s.logger.Info("пользователь вошёл в систему",
		slog.String("account_id", data.AccountID),
		slog.String("username", data.Username))
	return nil
}

// Logout завершает сессию: удаляет cookie, передаёт выход наблюдателю
// (сброс кэшей) и уведомляет остальные вкладки аккаунта.
// senderID — идентификатор подписки вкладки-инициатора
// (она сама перенаправляется синхронно и уведомления не получает).
func (s *Synchronizer) Logout(w http.ResponseWriter, accountID, senderID string) {
	s.manager.ClearCookie(w)

	if s.signOut != nil {
		s.signOut.HandleSignOut()
	}

	s.hub.Publish(AuthMessage{Authenticated: false, AccountID: accountID}, senderID)

	s.logger.Info("пользователь вышел из системы",
		slog.String("account_id", accountID),
		slog.Int("notified_tabs", s.hub.SubscriberCount(accountID)))
}

// Refresh перезаписывает сессионный cookie обновлёнными токенами.
// Конкурентные обновления из разных вкладок разрешаются по принципу
// «последняя запись побеждает»: каждая вкладка перезаписывает cookie целиком.
func (s *Synchronizer) Refresh(w http.ResponseWriter, data *Data) error {
	return s.manager.SetCookie(w, data)
}

// ForceSync принудительно рассылает текущее состояние аутентификации
// всем вкладкам аккаунта, включая инициатора. Используется для
// восстановления согласованности после деградации канала событий.
func (s *Synchronizer) ForceSync(accountID string, authenticated bool) {
	s.hub.Publish(AuthMessage{Authenticated: authenticated, AccountID: accountID}, "")

	s.logger.Debug("принудительная синхронизация вкладок",
		slog.String("account_id", accountID),
		slog.Bool("authenticated", authenticated))
}
