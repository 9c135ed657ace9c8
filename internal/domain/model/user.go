package model

import "time"

// Статусы пользователя. Жёсткого удаления нет — только disabled.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User — пользователь системы (администратор или техник).
// Хранится в таблице users.
type User struct {
	// ID — UUID записи
	ID string
	// KeycloakID — UUID пользователя в Keycloak (может быть nil до синхронизации)
	KeycloakID *string
	// Name — полное имя
	Name string
	// Role — роль (admin, technician)
	Role string
	// Email — электронная почта
	Email string
	// Phone — телефон (опционально)
	Phone *string
	// Validated — подтверждён ли аккаунт администратором
	Validated bool
	// Status — статус (active, disabled)
	Status string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Availability — интервал доступности техника (время суток).
// Хранится в таблице availabilities.
type Availability struct {
	// ID — UUID записи
	ID string
	// UserID — UUID владельца
	UserID string
	// StartTime — начало интервала (время суток, нормализованная дата)
	StartTime time.Time
	// EndTime — конец интервала (время суток, нормализованная дата)
	EndTime time.Time
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
