// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrScheduleConflict — пересечение расписания техника.
	ErrScheduleConflict = errors.New("пересечение расписания техника")
	// ErrWeakPassword — пароль не удовлетворяет всем правилам.
	ErrWeakPassword = errors.New("пароль не удовлетворяет правилам сложности")
	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
	// ErrUserDisabled — учётная запись отключена.
	ErrUserDisabled = errors.New("учётная запись отключена")
)
