// Пакет config — загрузка и валидация конфигурации Dispatch Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Dispatch Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Базовый URL приложения (для ссылок в email-уведомлениях)
	AppURL string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула подключений
	DBMaxConns int
	// Минимальный размер пула подключений
	DBMinConns int
	// Максимальное время жизни подключения в пуле
	DBMaxConnLifetime time.Duration

	// --- Keycloak ---

	// URL Keycloak
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для доступа к Keycloak Admin API
	KeycloakClientID string
	// Client Secret для доступа к Keycloak Admin API
	KeycloakClientSecret string

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Путь к CA-сертификату Keycloak (опционально)
	KeycloakCACert string
	// Таймаут проверки готовности Keycloak
	KeycloakReadinessTimeout time.Duration

	// --- Маппинг групп → ролей ---

	// Группы Keycloak, дающие роль admin (через запятую)
	RoleAdminGroups []string
	// Группы Keycloak, дающие роль technician (через запятую)
	RoleTechnicianGroups []string

	// --- SMTP ---

	// Хост SMTP-сервера (пустая строка — отправка писем отключена)
	SMTPHost string
	// Порт SMTP-сервера
	SMTPPort int
	// Имя пользователя SMTP
	SMTPUser string
	// Пароль SMTP
	SMTPPassword string
	// Адрес отправителя
	MailFrom string
	// Отображаемое имя отправителя по умолчанию
	MailFromName string

	// --- Геокодирование ---

	// Базовый URL геокодера (Nominatim-совместимый API)
	GeocoderURL string
	// TTL кэша результатов геокодирования
	GeocodeCacheTTL time.Duration
	// Максимальный размер кэша результатов геокодирования
	GeocodeCacheSize int

	// --- Бизнес-правила ---

	// Потолок гонорара миссии
	FeeCeiling float64

	// --- Мониторинг и завершение ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Группа topologymetrics
	DephealthGroup string
	// Интервал отправки SSE-обновлений клиентам
	SSEInterval time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Секрет шифрования сессионных cookie (base64, 32 bytes)
	SessionSecret string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DM_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("DM_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("DM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// DM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DM_LOG_LEVEL: %w", err)
	}

	// DM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// DM_APP_URL — базовый URL приложения (по умолчанию http://localhost:8080)
	cfg.AppURL = strings.TrimRight(getEnvDefault("DM_APP_URL", "http://localhost:8080"), "/")

	// --- PostgreSQL ---

	// DM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("DM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// DM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("DM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DM_DB_PORT: %w", err)
	}

	// DM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("DM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// DM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("DM_DB_USER")
	if err != nil {
		return nil, err
	}

	// DM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("DM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// DM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("DM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// DM_DB_MAX_CONNS — максимальный размер пула (по умолчанию 10).
	// Одно подключение постоянно занято слушателем LISTEN/NOTIFY.
	cfg.DBMaxConns, err = getEnvInt("DM_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DM_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 2 {
		return nil, fmt.Errorf("DM_DB_MAX_CONNS: минимум 2 (слушатель уведомлений плюс запросы API), получено %d", cfg.DBMaxConns)
	}

	// DM_DB_MIN_CONNS — минимальный размер пула (по умолчанию 2)
	cfg.DBMinConns, err = getEnvInt("DM_DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("DM_DB_MIN_CONNS: %w", err)
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("DM_DB_MIN_CONNS (%d) не может превышать DM_DB_MAX_CONNS (%d)", cfg.DBMinConns, cfg.DBMaxConns)
	}

	// DM_DB_MAX_CONN_LIFETIME — время жизни подключения (по умолчанию 1h)
	cfg.DBMaxConnLifetime, err = getEnvDuration("DM_DB_MAX_CONN_LIFETIME", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DM_DB_MAX_CONN_LIFETIME: %w", err)
	}

	// --- Keycloak ---

	// DM_KEYCLOAK_URL — обязательный
	cfg.KeycloakURL, err = getEnvRequired("DM_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// DM_KEYCLOAK_REALM — realm (по умолчанию dispatch)
	cfg.KeycloakRealm = getEnvDefault("DM_KEYCLOAK_REALM", "dispatch")

	// DM_KEYCLOAK_CLIENT_ID — обязательный
	cfg.KeycloakClientID, err = getEnvRequired("DM_KEYCLOAK_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// DM_KEYCLOAK_CLIENT_SECRET — обязательный
	cfg.KeycloakClientSecret, err = getEnvRequired("DM_KEYCLOAK_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// --- JWT ---

	// DM_JWT_ISSUER — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTIssuer = getEnvDefault("DM_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))

	// DM_JWT_JWKS_URL — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("DM_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	// DM_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("DM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_JWT_LEEWAY: %w", err)
	}

	// DM_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("DM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// DM_JWKS_REFRESH_INTERVAL — интервал обновления JWKS-ключей (по умолчанию 5m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("DM_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// DM_KEYCLOAK_CA_CERT — путь к CA-сертификату Keycloak (опционально)
	cfg.KeycloakCACert = getEnvDefault("DM_KEYCLOAK_CA_CERT", "")

	// DM_KEYCLOAK_READINESS_TIMEOUT — таймаут readiness-проверки Keycloak (по умолчанию 5s)
	cfg.KeycloakReadinessTimeout, err = getEnvDuration("DM_KEYCLOAK_READINESS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_KEYCLOAK_READINESS_TIMEOUT: %w", err)
	}

	// --- Маппинг групп → ролей ---

	// DM_ROLE_ADMIN_GROUPS — группы для роли admin (по умолчанию "dispatch-admins")
	cfg.RoleAdminGroups = parseCSV(getEnvDefault("DM_ROLE_ADMIN_GROUPS", "dispatch-admins"))

	// DM_ROLE_TECHNICIAN_GROUPS — группы для роли technician (по умолчанию "dispatch-technicians")
	cfg.RoleTechnicianGroups = parseCSV(getEnvDefault("DM_ROLE_TECHNICIAN_GROUPS", "dispatch-technicians"))

	// --- SMTP ---

	// DM_SMTP_HOST — хост SMTP (опционально, пусто — письма отключены)
	cfg.SMTPHost = getEnvDefault("DM_SMTP_HOST", "")

	// DM_SMTP_PORT — порт SMTP (по умолчанию 587)
	cfg.SMTPPort, err = getEnvInt("DM_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("DM_SMTP_PORT: %w", err)
	}

	// DM_SMTP_USER, DM_SMTP_PASSWORD — учётные данные SMTP (опционально)
	cfg.SMTPUser = getEnvDefault("DM_SMTP_USER", "")
	cfg.SMTPPassword = getEnvDefault("DM_SMTP_PASSWORD", "")

	// DM_MAIL_FROM — адрес отправителя (по умолчанию noreply@dispatch.local)
	cfg.MailFrom = getEnvDefault("DM_MAIL_FROM", "noreply@dispatch.local")

	// DM_MAIL_FROM_NAME — имя отправителя по умолчанию
	cfg.MailFromName = getEnvDefault("DM_MAIL_FROM_NAME", "Dispatch")

	// --- Геокодирование ---

	// DM_GEOCODER_URL — базовый URL геокодера (по умолчанию публичный Nominatim)
	cfg.GeocoderURL = strings.TrimRight(getEnvDefault("DM_GEOCODER_URL", "https://nominatim.openstreetmap.org"), "/")

	// DM_GEOCODE_CACHE_TTL — TTL кэша геокодирования (по умолчанию 24h)
	cfg.GeocodeCacheTTL, err = getEnvDuration("DM_GEOCODE_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DM_GEOCODE_CACHE_TTL: %w", err)
	}

	// DM_GEOCODE_CACHE_SIZE — размер кэша геокодирования (по умолчанию 512)
	cfg.GeocodeCacheSize, err = getEnvInt("DM_GEOCODE_CACHE_SIZE", 512)
	if err != nil {
		return nil, fmt.Errorf("DM_GEOCODE_CACHE_SIZE: %w", err)
	}
	if cfg.GeocodeCacheSize < 1 || cfg.GeocodeCacheSize > 100000 {
		return nil, fmt.Errorf("DM_GEOCODE_CACHE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.GeocodeCacheSize)
	}

	// --- Бизнес-правила ---

	// DM_FEE_CEILING — потолок гонорара (по умолчанию 10000)
	cfg.FeeCeiling, err = getEnvFloat("DM_FEE_CEILING", 10000)
	if err != nil {
		return nil, fmt.Errorf("DM_FEE_CEILING: %w", err)
	}
	if cfg.FeeCeiling <= 0 {
		return nil, fmt.Errorf("DM_FEE_CEILING: значение должно быть положительным, получено %v", cfg.FeeCeiling)
	}

	// --- Мониторинг и завершение ---

	// DM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("DM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// DM_DEPHEALTH_GROUP — группа topologymetrics (по умолчанию dispatch)
	cfg.DephealthGroup = getEnvDefault("DM_DEPHEALTH_GROUP", "dispatch")

	// DM_SSE_INTERVAL — интервал отправки SSE-обновлений (по умолчанию 15s)
	cfg.SSEInterval, err = getEnvDuration("DM_SSE_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_SSE_INTERVAL: %w", err)
	}

	// DM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// DM_SESSION_SECRET — секрет шифрования сессий (опционально)
	cfg.SessionSecret = getEnvDefault("DM_SESSION_SECRET", "")

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает число с плавающей точкой из переменной окружения
// или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
