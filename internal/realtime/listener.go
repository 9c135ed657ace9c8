package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Количество попыток установки подписки. После исчерпания
// сервис переходит в деградированный режим: данные отдаются
// из последнего снимка, без реактивных обновлений.
const setupAttempts = 3

// Пауза между попытками установки подписки.
const setupRetryDelay = 2 * time.Second

var (
	listenerDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dm_realtime_degraded",
		Help: "1 — слушатель уведомлений в деградированном режиме, 0 — работает.",
	})
	listenerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_realtime_reconnects_total",
		Help: "Количество переподключений слушателя уведомлений.",
	})
)

// Listener — фоновый слушатель уведомлений PostgreSQL.
// Держит выделенное соединение из пула с подпиской LISTEN на все каналы
// и передаёт уведомления инвалидатору.
//
// Подписка атомарна: при ошибке LISTEN на любом канале соединение
// возвращается в пул и все подписки снимаются разом, затем цикл
// подключения повторяется с нуля.
type Listener struct {
	pool        *pgxpool.Pool
	invalidator *Invalidator
	logger      *slog.Logger

	// Параметры цикла подписки; в тестах подменяются.
	attempts   int
	retryDelay time.Duration
	connect    func(ctx context.Context) (*pgxpool.Conn, error)

	degraded atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener создаёт слушатель уведомлений.
func NewListener(pool *pgxpool.Pool, invalidator *Invalidator, logger *slog.Logger) *Listener {
	l := &Listener{
		pool:        pool,
		invalidator: invalidator,
		logger:      logger.With(slog.String("component", "realtime_listener")),
		attempts:    setupAttempts,
		retryDelay:  setupRetryDelay,
	}
	l.connect = l.listenAll
	return l
}

// Degraded сообщает, работает ли слушатель в деградированном режиме.
func (l *Listener) Degraded() bool {
	return l.degraded.Load()
}

// Start запускает фоновую горутину слушателя.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)

		l.logger.Info("Слушатель уведомлений запущен",
			slog.Int("channels", len(Channels)))

		for {
			if err := l.runOnce(ctx); err != nil {
				if ctx.Err() != nil {
					l.logger.Info("Слушатель уведомлений остановлен")
					return
				}
				l.enterDegraded(err)
				return
			}
			if ctx.Err() != nil {
				l.logger.Info("Слушатель уведомлений остановлен")
				return
			}
			// Соединение потеряно после успешной подписки:
			// переподключаемся с новым циклом попыток.
			listenerReconnects.Inc()
			l.logger.Warn("Соединение слушателя потеряно, переподключение")
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
}

// runOnce выполняет один цикл работы слушателя: подписка (с повторами),
// перезагрузка хранилищ и приём уведомлений до потери соединения.
// Возвращает nil при потере соединения (нужно переподключение)
// и ошибку при исчерпании попыток подписки.
func (l *Listener) runOnce(ctx context.Context) error {
	conn, err := l.subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Закрытие соединения снимает все подписки LISTEN разом.
		conn.Conn().Close(context.Background())
		conn.Release()
	}()

	l.degraded.Store(false)
	listenerDegraded.Set(0)

	// Перезагружаем хранилища: ловим изменения,
	// произошедшие до установки подписки.
	l.invalidator.HandleEvent(ctx, ChannelMissions, "")
	l.invalidator.HandleEvent(ctx, ChannelUsers, "")

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("Ошибка ожидания уведомления",
				slog.String("error", err.Error()))
			return nil
		}

		l.invalidator.HandleEvent(ctx, notification.Channel, notification.Payload)
	}
}

// subscribe получает выделенное соединение и подписывается на все каналы.
// До attempts попыток с паузой retryDelay между ними.
func (l *Listener) subscribe(ctx context.Context) (*pgxpool.Conn, error) {
	var lastErr error

	for attempt := 1; attempt <= l.attempts; attempt++ {
		conn, err := l.connect(ctx)
		if err == nil {
			l.logger.Info("Подписка на уведомления установлена",
				slog.Int("attempt", attempt))
			return conn, nil
		}
		lastErr = err

		l.logger.Warn("Ошибка установки подписки на уведомления",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", l.attempts),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}

	return nil, fmt.Errorf("подписка не установлена за %d попыток: %w", l.attempts, lastErr)
}

// listenAll получает соединение из пула и выполняет LISTEN на каждом канале.
// При ошибке на любом канале соединение закрывается целиком.
func (l *Listener) listenAll(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение соединения из пула: %w", err)
	}

	for _, channel := range Channels {
		if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
			conn.Conn().Close(context.Background())
			conn.Release()
			return nil, fmt.Errorf("LISTEN %s: %w", channel, err)
		}
	}

	return conn, nil
}

// enterDegraded переводит слушатель в деградированный режим.
func (l *Listener) enterDegraded(err error) {
	l.degraded.Store(true)
	listenerDegraded.Set(1)
	l.logger.Error("Слушатель уведомлений в деградированном режиме: "+
		"данные отдаются без реактивных обновлений",
		slog.String("error", err.Error()))
}
