// Пакет model — доменные модели Dispatch Module.
package model

import "time"

// Типы миссий.
const (
	MissionTypeDelivery  = "delivery"
	MissionTypeSound     = "sound"
	MissionTypeDJ        = "dj"
	MissionTypeHandling  = "handling"
	MissionTypeTransport = "transport"
)

// ValidMissionTypes — множество допустимых типов миссий.
var ValidMissionTypes = map[string]bool{
	MissionTypeDelivery:  true,
	MissionTypeSound:     true,
	MissionTypeDJ:        true,
	MissionTypeHandling:  true,
	MissionTypeTransport: true,
}

// Mission — миссия (заказ на мероприятие).
// Хранится в таблице missions.
type Mission struct {
	// ID — UUID миссии
	ID string
	// Title — название миссии
	Title string
	// Type — тип (delivery, sound, dj, handling, transport)
	Type string
	// Location — адрес свободным текстом
	Location string
	// Latitude, Longitude — координаты после геокодирования (опционально)
	Latitude  *float64
	Longitude *float64
	// StartAt — начало временного окна
	StartAt time.Time
	// EndAt — конец временного окна
	EndAt time.Time
	// Fee — гонорар (0 < fee ≤ потолок из конфигурации)
	Fee float64
	// Description — описание (опционально)
	Description *string
	// AssignedCount — количество назначенных техников (вычисляемое поле)
	AssignedCount int
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Assignment — назначение техника на миссию.
// Хранится в таблице mission_assignments.
// Существование записи означает, что техник занят на окно миссии.
type Assignment struct {
	// ID — UUID назначения
	ID string
	// MissionID — UUID миссии
	MissionID string
	// UserID — UUID техника
	UserID string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}
