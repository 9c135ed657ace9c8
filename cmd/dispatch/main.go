// Точка входа Dispatch Module — backend диспетчеризации миссий.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует Keycloak и геокодер клиенты, сторы с realtime-инвалидацией
// через LISTEN/NOTIFY, сервисный слой и API handlers, запускает фоновые
// задачи (realtime listener, topologymetrics), HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/staffmission/dispatch/internal/api/handlers"
	"github.com/staffmission/dispatch/internal/api/middleware"
	"github.com/staffmission/dispatch/internal/config"
	"github.com/staffmission/dispatch/internal/database"
	"github.com/staffmission/dispatch/internal/geoclient"
	"github.com/staffmission/dispatch/internal/idclient"
	"github.com/staffmission/dispatch/internal/mailer"
	"github.com/staffmission/dispatch/internal/realtime"
	"github.com/staffmission/dispatch/internal/repository"
	"github.com/staffmission/dispatch/internal/server"
	"github.com/staffmission/dispatch/internal/service"
	"github.com/staffmission/dispatch/internal/session"
	"github.com/staffmission/dispatch/internal/store"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Dispatch Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("DM_DEPHEALTH_GROUP") == "" {
		logger.Warn("DM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Keycloak Admin API клиент
	kcClient := idclient.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		nil, // стандартный HTTP-клиент
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 6. Геокодер
	geoClient := geoclient.New(cfg.GeocoderURL, &http.Client{Timeout: 10 * time.Second}, logger)

	// 7. Repositories
	missionRepo := repository.NewMissionRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	availabilityRepo := repository.NewAvailabilityRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	billingRepo := repository.NewBillingRepository(pool)

	// 8. Сторы (серверные кэши коллекций)
	missionStore := store.NewMissionStore(missionRepo, logger)
	adminStore := store.NewAdminStore(userRepo, billingRepo, availabilityRepo, logger)

	// 9. Realtime-инвалидация через LISTEN/NOTIFY
	invalidator := realtime.NewInvalidator(missionStore, adminStore, logger)
	listener := realtime.NewListener(pool, invalidator, logger)
	listener.Start(ctx)

	// 10. Сессии и синхронизация вкладок
	secureCookie := strings.HasPrefix(cfg.AppURL, "https")
	sessionMgr, err := session.NewManager(cfg.SessionSecret, secureCookie)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("DM_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	hub := session.NewHub(logger)
	synchronizer := session.NewSynchronizer(sessionMgr, hub, logger, invalidator)

	// 11. Почта: составление и отправка уведомлений о назначении
	composer, err := mailer.NewComposer(cfg.AppURL)
	if err != nil {
		logger.Error("Ошибка инициализации шаблонов писем", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sender := mailer.NewSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	}, logger)

	// 12. Services
	geocodeSvc := service.NewGeocodeService(geoClient, cfg.GeocodeCacheSize, cfg.GeocodeCacheTTL, logger)
	missionSvc := service.NewMissionService(missionRepo, assignmentRepo, geocodeSvc, cfg.FeeCeiling, logger)
	userSvc := service.NewUserService(userRepo, kcClient, logger)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, logger)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, missionRepo, userRepo, billingRepo, logger)
	billingSvc := service.NewBillingService(billingRepo, logger)
	notifySvc := service.NewNotifyService(assignmentRepo, missionRepo, userRepo, composer, sender, logger)

	// 13. Readiness checkers (PostgreSQL + Keycloak + realtime)
	pgChecker := database.NewReadinessChecker(pool)
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.KeycloakCACert, cfg.KeycloakReadinessTimeout)
	if err != nil {
		logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, kcChecker, listener)

	// 14. API handlers
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		missionSvc,
		userSvc,
		availabilitySvc,
		assignmentSvc,
		billingSvc,
		notifySvc,
		geocodeSvc,
		logger,
	)
	sessionHandler := handlers.NewSessionHandler(synchronizer, sessionMgr, logger)
	eventsHandler := handlers.NewEventsHandler(hub, missionStore, adminStore, listener, cfg.SSEInterval, logger)

	// 15. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.KeycloakCACert,
		cfg.JWTIssuer,
		cfg.RoleAdminGroups,
		cfg.RoleTechnicianGroups,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 16. topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"dispatch-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.JWTJWKSURL,
		cfg.GeocoderURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 17. Начальная загрузка сторов (best-effort: realtime listener
	// повторит загрузку после подписки на каналы)
	if err := missionStore.Refresh(ctx); err != nil {
		logger.Warn("Начальная загрузка стора миссий не удалась", slog.String("error", err.Error()))
	}
	if err := adminStore.Refresh(ctx); err != nil {
		logger.Warn("Начальная загрузка административного стора не удалась", slog.String("error", err.Error()))
	}

	// 18. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, sessionHandler, eventsHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 19. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	listener.Stop()

	logger.Info("Dispatch Module остановлен")
}
