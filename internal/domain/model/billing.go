package model

import "time"

// Статусы записей биллинга.
const (
	BillingStatusPending  = "pending"
	BillingStatusInvoiced = "invoiced"
	BillingStatusPaid     = "paid"
)

// BillingRecord — строка биллинга по назначению техника на миссию.
// Хранится в таблице billing_records.
type BillingRecord struct {
	// ID — UUID записи
	ID string
	// AssignmentID — UUID назначения
	AssignmentID string
	// MissionID — UUID миссии (денормализовано для выборок)
	MissionID string
	// UserID — UUID техника
	UserID string
	// Amount — сумма к выплате
	Amount float64
	// Status — статус (pending, invoiced, paid)
	Status string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
