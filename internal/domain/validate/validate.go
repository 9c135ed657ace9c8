// Пакет validate — чистые проверки данных миссий, доступности и пользователей.
// Все функции без побочных эффектов и возвращают структурированные результаты:
// невалидный ввод — ожидаемый исход, а не ошибка.
package validate

import (
	"regexp"
	"time"
)

// Причины невалидности временных интервалов.
const (
	// ReasonInvalidRange — начало не раньше конца.
	ReasonInvalidRange = "InvalidRange"
	// ReasonPastStart — начало в прошлом на момент создания.
	ReasonPastStart = "PastStart"
)

// DateResult — результат проверки временного интервала.
type DateResult struct {
	// Valid — прошла ли проверка.
	Valid bool
	// Reason — машиночитаемая причина (ReasonInvalidRange, ReasonPastStart).
	Reason string
	// Message — человекочитаемое объяснение.
	Message string
}

// MissionDates проверяет временное окно миссии.
// Правила: start < end; start не в прошлом относительно now.
func MissionDates(start, end, now time.Time) DateResult {
	if !start.Before(end) {
		return DateResult{
			Valid:   false,
			Reason:  ReasonInvalidRange,
			Message: "начало миссии должно быть раньше окончания",
		}
	}
	if start.Before(now) {
		return DateResult{
			Valid:   false,
			Reason:  ReasonPastStart,
			Message: "начало миссии не может быть в прошлом",
		}
	}
	return DateResult{Valid: true}
}

// normalizedDate — произвольная фиксированная дата для сравнения времени суток.
var normalizedDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// NormalizeTimeOfDay приводит время суток к фиксированной календарной дате,
// чтобы интервалы доступности сравнивались только по часам и минутам.
func NormalizeTimeOfDay(t time.Time) time.Time {
	return time.Date(
		normalizedDate.Year(), normalizedDate.Month(), normalizedDate.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, time.UTC,
	)
}

// AvailabilityTimes проверяет интервал доступности (время суток).
// Оба значения нормализуются к фиксированной дате; правило start < end.
func AvailabilityTimes(start, end time.Time) DateResult {
	s := NormalizeTimeOfDay(start)
	e := NormalizeTimeOfDay(end)
	if !s.Before(e) {
		return DateResult{
			Valid:   false,
			Reason:  ReasonInvalidRange,
			Message: "начало доступности должно быть раньше окончания",
		}
	}
	return DateResult{Valid: true}
}

// Range — полуоткрытый временной интервал [Start, End).
type Range struct {
	// ID — идентификатор источника интервала (миссия, назначение).
	ID string
	// Start, End — границы интервала.
	Start time.Time
	End   time.Time
}

// ConflictResult — результат поиска пересечения расписания.
type ConflictResult struct {
	// Conflict — найдено ли пересечение.
	Conflict bool
	// With — первый пересекающийся интервал в порядке обхода.
	With *Range
}

// PlanningConflict проверяет, пересекается ли интервал-кандидат [start, end)
// с существующими интервалами. Тест пересечения полуоткрытый:
// start < r.End && end > r.Start. Обход последовательный, возвращается
// ПЕРВЫЙ пересекающийся интервал в порядке итерации; досрочный выход
// допустим только после первого совпадения.
func PlanningConflict(start, end time.Time, existing []Range) ConflictResult {
	for i := range existing {
		r := &existing[i]
		if start.Before(r.End) && end.After(r.Start) {
			return ConflictResult{Conflict: true, With: r}
		}
	}
	return ConflictResult{Conflict: false}
}

// FieldResult — результат проверки отдельного поля.
type FieldResult struct {
	// Valid — прошла ли проверка.
	Valid bool
	// Message — человекочитаемое объяснение (пусто при Valid).
	Message string
}

// emailRe — базовая проверка формата email.
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email проверяет формат адреса электронной почты.
func Email(s string) FieldResult {
	if !emailRe.MatchString(s) {
		return FieldResult{Valid: false, Message: "некорректный формат email"}
	}
	return FieldResult{Valid: true}
}

// phoneRe — международный или локальный номер: опциональный "+",
// 6-15 цифр, допускаются пробелы, точки и дефисы как разделители.
var phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 .\-]{4,18}[0-9]$`)

// Phone проверяет формат телефонного номера.
func Phone(s string) FieldResult {
	if !phoneRe.MatchString(s) {
		return FieldResult{Valid: false, Message: "некорректный формат телефона"}
	}
	return FieldResult{Valid: true}
}

// Fee проверяет гонорар миссии: положительный и не выше потолка.
func Fee(amount, ceiling float64) FieldResult {
	if amount <= 0 {
		return FieldResult{Valid: false, Message: "гонорар должен быть положительным"}
	}
	if amount > ceiling {
		return FieldResult{Valid: false, Message: "гонорар превышает допустимый потолок"}
	}
	return FieldResult{Valid: true}
}
