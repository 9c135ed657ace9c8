package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/staffmission/dispatch/internal/domain/model"
	"github.com/staffmission/dispatch/internal/repository"
)

func newAssignmentService() (*AssignmentService, *fakeMissionRepo, *fakeUserRepo, *fakeAssignmentRepo, *fakeBillingRepo) {
	missionRepo := newFakeMissionRepo()
	userRepo := newFakeUserRepo()
	assignmentRepo := newFakeAssignmentRepo()
	billingRepo := newFakeBillingRepo()

	svc := NewAssignmentService(assignmentRepo, missionRepo, userRepo, billingRepo, testLogger())
	return svc, missionRepo, userRepo, assignmentRepo, billingRepo
}

func seedMissionAndTech(missionRepo *fakeMissionRepo, userRepo *fakeUserRepo, base time.Time) {
	missionRepo.missions["m-1"] = &model.Mission{
		ID:      "m-1",
		Title:   "Concert",
		Type:    model.MissionTypeSound,
		StartAt: base,
		EndAt:   base.Add(4 * time.Hour),
		Fee:     150,
	}
	userRepo.users["tech-1"] = &model.User{
		ID:        "tech-1",
		Name:      "Jean Dupont",
		Role:      "technician",
		Email:     "jean@test.fr",
		Validated: true,
		Status:    model.UserStatusActive,
	}
}

// TestAssignmentService_Assign проверяет назначение и создание биллинга.
func TestAssignmentService_Assign(t *testing.T) {
	svc, missionRepo, userRepo, _, billingRepo := newAssignmentService()
	base := time.Now().Add(24 * time.Hour)
	seedMissionAndTech(missionRepo, userRepo, base)

	assignment, err := svc.Assign(context.Background(), "m-1", "tech-1")
	if err != nil {
		t.Fatalf("Ошибка Assign: %v", err)
	}

	// Создана запись биллинга на сумму гонорара
	var billing *model.BillingRecord
	for _, b := range billingRepo.records {
		billing = b
	}
	if billing == nil {
		t.Fatal("запись биллинга не создана")
	}
	if billing.AssignmentID != assignment.ID || billing.Amount != 150 {
		t.Errorf("неожиданная запись биллинга: %+v", billing)
	}
	if billing.Status != model.BillingStatusPending {
		t.Errorf("ожидался статус pending, получен %s", billing.Status)
	}
}

// TestAssignmentService_AssignConflict проверяет отказ при пересечении расписания.
func TestAssignmentService_AssignConflict(t *testing.T) {
	svc, missionRepo, userRepo, assignmentRepo, _ := newAssignmentService()
	base := time.Now().Add(24 * time.Hour)
	seedMissionAndTech(missionRepo, userRepo, base)

	// Техник занят на пересекающемся окне другой миссии
	assignmentRepo.windows["tech-1"] = []repository.BookedWindow{
		{AssignmentID: "a-0", MissionID: "m-0", StartAt: base.Add(2 * time.Hour), EndAt: base.Add(6 * time.Hour)},
	}

	_, err := svc.Assign(context.Background(), "m-1", "tech-1")
	if !errors.Is(err, ErrScheduleConflict) {
		t.Fatalf("ожидался ErrScheduleConflict, получено %v", err)
	}
}

// TestAssignmentService_AssignAdjacentWindows проверяет назначение встык:
// конец одного окна совпадает с началом другого — конфликта нет.
func TestAssignmentService_AssignAdjacentWindows(t *testing.T) {
	svc, missionRepo, userRepo, assignmentRepo, _ := newAssignmentService()
	base := time.Now().Add(24 * time.Hour)
	seedMissionAndTech(missionRepo, userRepo, base)

	// Окно заканчивается ровно в начале миссии m-1
	assignmentRepo.windows["tech-1"] = []repository.BookedWindow{
		{AssignmentID: "a-0", MissionID: "m-0", StartAt: base.Add(-4 * time.Hour), EndAt: base},
	}

	if _, err := svc.Assign(context.Background(), "m-1", "tech-1"); err != nil {
		t.Fatalf("окна встык не должны конфликтовать: %v", err)
	}
}

// TestAssignmentService_AssignGuards проверяет отказы по состоянию техника.
func TestAssignmentService_AssignGuards(t *testing.T) {
	svc, missionRepo, userRepo, _, _ := newAssignmentService()
	base := time.Now().Add(24 * time.Hour)
	seedMissionAndTech(missionRepo, userRepo, base)
	ctx := context.Background()

	// Отключённый техник
	userRepo.users["tech-1"].Status = model.UserStatusDisabled
	if _, err := svc.Assign(ctx, "m-1", "tech-1"); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("ожидался ErrUserDisabled, получено %v", err)
	}

	// Неподтверждённый техник
	userRepo.users["tech-1"].Status = model.UserStatusActive
	userRepo.users["tech-1"].Validated = false
	if _, err := svc.Assign(ctx, "m-1", "tech-1"); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидался ErrValidation, получено %v", err)
	}

	// Несуществующая миссия
	if _, err := svc.Assign(ctx, "missing", "tech-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}

// TestAssignmentService_AssignDuplicate проверяет повторное назначение.
func TestAssignmentService_AssignDuplicate(t *testing.T) {
	svc, missionRepo, userRepo, _, _ := newAssignmentService()
	base := time.Now().Add(24 * time.Hour)
	seedMissionAndTech(missionRepo, userRepo, base)
	ctx := context.Background()

	if _, err := svc.Assign(ctx, "m-1", "tech-1"); err != nil {
		t.Fatalf("первое назначение: %v", err)
	}

	_, err := svc.Assign(ctx, "m-1", "tech-1")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("ожидался ErrConflict, получено %v", err)
	}
}

// TestAssignmentService_Unassign проверяет снятие назначения с биллингом.
func TestAssignmentService_Unassign(t *testing.T) {
	svc, missionRepo, userRepo, assignmentRepo, billingRepo := newAssignmentService()
	base := time.Now().Add(24 * time.Hour)
	seedMissionAndTech(missionRepo, userRepo, base)
	ctx := context.Background()

	assignment, err := svc.Assign(ctx, "m-1", "tech-1")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if err := svc.Unassign(ctx, assignment.ID); err != nil {
		t.Fatalf("Unassign: %v", err)
	}

	if len(assignmentRepo.assignments) != 0 {
		t.Error("назначение должно быть удалено")
	}
	if len(billingRepo.records) != 0 {
		t.Error("биллинг назначения должен быть удалён")
	}

	if err := svc.Unassign(ctx, assignment.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}
