// Пакет server — HTTP-сервер Dispatch Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/staffmission/dispatch/internal/api/handlers"
	"github.com/staffmission/dispatch/internal/api/middleware"
	"github.com/staffmission/dispatch/internal/config"
	"github.com/staffmission/dispatch/internal/domain/rbac"
)

// Server — HTTP-сервер Dispatch Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (может быть nil для тестирования без auth).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	api *handlers.APIHandler,
	sessions *handlers.SessionHandler,
	events *handlers.EventsHandler,
	jwtAuth *middleware.JWTAuth,
) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// JWT middleware с исключениями для публичных endpoints.
	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	if jwtAuth != nil {
		router.Use(jwtAuthWithExclusions(jwtAuth, "/health/", "/metrics"))
	}

	// Health и метрики
	router.Get("/health/live", api.HealthLive)
	router.Get("/health/ready", api.HealthReady)
	router.Get("/metrics", api.GetMetrics)

	adminOnly := middleware.RequireRole(rbac.RoleAdmin)
	anyRole := middleware.RequireRole(rbac.RoleAdmin, rbac.RoleTechnician)

	router.Route("/api/v1", func(r chi.Router) {
		// Миссии
		r.Route("/missions", func(r chi.Router) {
			r.With(anyRole).Get("/", api.ListMissions)
			r.With(anyRole).Get("/my", api.ListMyMissions)
			r.With(adminOnly).Post("/", api.CreateMission)
			r.With(anyRole).Get("/{id}", api.GetMission)
			r.With(adminOnly).Put("/{id}", api.UpdateMission)
			r.With(adminOnly).Delete("/{id}", api.DeleteMission)
			r.With(anyRole).Get("/{id}/assignments", api.ListMissionAssignments)
			r.With(adminOnly).Post("/{id}/assignments", api.AssignTechnician)
		})

		// Назначения
		r.Route("/assignments", func(r chi.Router) {
			r.With(adminOnly).Delete("/{id}", api.UnassignTechnician)
			r.With(adminOnly).Post("/{id}/notify", api.NotifyAssignment)
		})

		// Пользователи
		r.Route("/users", func(r chi.Router) {
			r.With(adminOnly).Get("/", api.ListUsers)
			r.With(adminOnly).Post("/", api.CreateUser)
			r.With(anyRole).Get("/me", api.Me)
			r.With(anyRole).Post("/password-check", api.CheckPassword)
			r.With(adminOnly).Get("/{id}", api.GetUser)
			r.With(adminOnly).Put("/{id}", api.UpdateUser)
			r.With(adminOnly).Post("/{id}/validate", api.ValidateUser)
			r.With(adminOnly).Put("/{id}/status", api.SetUserStatus)
			r.With(adminOnly).Post("/{id}/reset-password", api.ResetUserPassword)
		})

		// Интервалы доступности
		r.Route("/availabilities", func(r chi.Router) {
			r.With(anyRole).Get("/", api.ListAvailabilities)
			r.With(anyRole).Post("/", api.CreateAvailability)
			r.With(anyRole).Put("/{id}", api.UpdateAvailability)
			r.With(anyRole).Delete("/{id}", api.DeleteAvailability)
		})

		// Биллинг
		r.Route("/billing", func(r chi.Router) {
			r.With(anyRole).Get("/", api.ListBilling)
			r.With(anyRole).Get("/{id}", api.GetBilling)
			r.With(adminOnly).Post("/{id}/advance", api.AdvanceBilling)
		})

		// Геокодирование
		r.With(adminOnly).Get("/geocode", api.Geocode)

		// Сессия
		r.Route("/session", func(r chi.Router) {
			r.With(anyRole).Get("/", sessions.GetSession)
			r.With(anyRole).Post("/login", sessions.Login)
			r.With(anyRole).Post("/logout", sessions.Logout)
			r.With(anyRole).Post("/refresh", sessions.Refresh)
			r.With(anyRole).Post("/force-sync", sessions.ForceSync)
		})

		// SSE-поток событий
		r.With(anyRole).Get("/events", events.HandleEvents)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		// WriteTimeout нулевой: SSE-подключения живут дольше любого
		// разумного write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Проверяем, начинается ли путь с исключённого префикса
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Применяем JWT middleware
			jwtMiddleware(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
