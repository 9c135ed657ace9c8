package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Размер буфера канала подписчика. Медленный подписчик,
// переполнивший буфер, отключается: терять сообщения нельзя,
// среди них может быть уведомление о выходе.
const subscriberBuffer = 8

var (
	hubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dm_session_hub_subscribers",
		Help: "Текущее количество подписчиков hub сессий.",
	})
	hubEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_session_hub_evicted_total",
		Help: "Количество подписчиков, отключённых из-за переполнения буфера.",
	})
)

// AuthMessage — сообщение об изменении состояния аутентификации,
// рассылаемое между вкладками одного аккаунта.
type AuthMessage struct {
	// Authenticated — true при входе, false при выходе.
	Authenticated bool `json:"authenticated"`
	// AccountID — аккаунт, которого касается изменение.
	AccountID string `json:"account_id"`
}

// Subscription — подписка одной вкладки на сообщения своего аккаунта.
type Subscription struct {
	id        string
	accountID string
	ch        chan AuthMessage
}

// C возвращает канал входящих сообщений подписки.
func (s *Subscription) C() <-chan AuthMessage {
	return s.ch
}

// ID возвращает уникальный идентификатор подписки (идентификатор вкладки).
func (s *Subscription) ID() string {
	return s.id
}

// Hub — внутрипроцессная шина сообщений аутентификации.
// Подписчики группируются по аккаунту: сообщение доставляется всем
// вкладкам аккаунта, кроме вкладки-отправителя.
type Hub struct {
	logger *slog.Logger

	mu sync.RWMutex
	// subs: accountID -> подписки вкладок этого аккаунта.
	subs map[string]map[string]*Subscription
}

// NewHub создаёт новую шину сообщений аутентификации.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With(slog.String("component", "session_hub")),
		subs:   make(map[string]map[string]*Subscription),
	}
}

// Subscribe регистрирует новую вкладку аккаунта.
// Возвращённую подписку нужно освободить через Unsubscribe.
func (h *Hub) Subscribe(accountID string) *Subscription {
	sub := &Subscription{
		id:        uuid.New().String(),
		accountID: accountID,
		ch:        make(chan AuthMessage, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[accountID] == nil {
		h.subs[accountID] = make(map[string]*Subscription)
	}
	h.subs[accountID][sub.id] = sub
	hubSubscribers.Inc()

	return sub
}

// Unsubscribe удаляет подписку и закрывает её канал.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.subs[sub.accountID]
	if !ok {
		return
	}
	if _, ok := group[sub.id]; !ok {
		return
	}

	delete(group, sub.id)
	if len(group) == 0 {
		delete(h.subs, sub.accountID)
	}
	close(sub.ch)
	hubSubscribers.Dec()
}

// Publish рассылает сообщение всем вкладкам аккаунта, кроме отправителя.
// senderID — идентификатор подписки вкладки-отправителя
// (пустая строка — доставить всем).
//
// Подписчик с переполненным буфером отключается: его канал закрывается,
// обработчик SSE завершает поток, и вкладка переподключается с чистым
// состоянием. Накопленные в буфере сообщения вкладка дочитает до закрытия.
func (h *Hub) Publish(msg AuthMessage, senderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.subs[msg.AccountID]
	for id, sub := range group {
		if id == senderID {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			delete(group, id)
			close(sub.ch)
			hubSubscribers.Dec()
			hubEvicted.Inc()
			h.logger.Warn("переполнен буфер подписчика, подписка закрыта",
				slog.String("account_id", msg.AccountID),
				slog.String("subscription_id", id))
		}
	}
	if len(group) == 0 {
		delete(h.subs, msg.AccountID)
	}
}

// SubscriberCount возвращает количество подписок аккаунта.
func (h *Hub) SubscriberCount(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[accountID])
}
