package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/staffmission/dispatch/internal/config"
	"github.com/staffmission/dispatch/internal/database"
	"github.com/staffmission/dispatch/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("dispatch_test"),
		postgres.WithUsername("dispatch"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("DM_DB_HOST", host)
	os.Setenv("DM_DB_PORT", port.Port())
	os.Setenv("DM_DB_NAME", "dispatch_test")
	os.Setenv("DM_DB_USER", "dispatch")
	os.Setenv("DM_DB_PASSWORD", "test-password")
	os.Setenv("DM_DB_SSL_MODE", "disable")
	os.Setenv("DM_KEYCLOAK_URL", "http://localhost:8080")
	os.Setenv("DM_KEYCLOAK_CLIENT_ID", "test")
	os.Setenv("DM_KEYCLOAK_CLIENT_SECRET", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// createTestUser создаёт техника для FK-зависимых тестов.
func createTestUser(t *testing.T, pool *pgxpool.Pool, email string) *model.User {
	t.Helper()

	u := &model.User{
		ID:        uuid.New().String(),
		Name:      "Тестовый Техник",
		Role:      "technician",
		Email:     email,
		Validated: true,
		Status:    "active",
	}
	if err := NewUserRepository(pool).Create(context.Background(), u); err != nil {
		t.Fatalf("Создание пользователя: %v", err)
	}
	return u
}

// createTestMission создаёт миссию для FK-зависимых тестов.
func createTestMission(t *testing.T, pool *pgxpool.Pool, start, end time.Time) *model.Mission {
	t.Helper()

	m := &model.Mission{
		ID:       uuid.New().String(),
		Title:    "Тестовая миссия",
		Type:     model.MissionTypeSound,
		Location: "1 Rue de Rivoli, Paris",
		StartAt:  start,
		EndAt:    end,
		Fee:      350,
	}
	if err := NewMissionRepository(pool).Create(context.Background(), m); err != nil {
		t.Fatalf("Создание миссии: %v", err)
	}
	return m
}

// --- Тесты MissionRepository ---

func TestMissionCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewMissionRepository(pool)

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	end := start.Add(4 * time.Hour)

	missionID := uuid.New().String()
	lat, lon := 48.8566, 2.3522
	desc := "Монтаж звука на площадке"
	m := &model.Mission{
		ID:          missionID,
		Title:       "Концерт в Париже",
		Type:        model.MissionTypeSound,
		Location:    "Place de la Concorde, Paris",
		Latitude:    &lat,
		Longitude:   &lon,
		StartAt:     start,
		EndAt:       end,
		Fee:         500,
		Description: &desc,
	}

	// Create
	if err := repo.Create(ctx, m); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if m.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// GetByID
	got, err := repo.GetByID(ctx, missionID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Title != "Концерт в Париже" {
		t.Errorf("Title = %q, хотели %q", got.Title, "Концерт в Париже")
	}
	if got.Latitude == nil || *got.Latitude != lat {
		t.Errorf("Latitude = %v, хотели %v", got.Latitude, lat)
	}
	if got.AssignedCount != 0 {
		t.Errorf("AssignedCount = %d, хотели 0", got.AssignedCount)
	}

	// List без фильтров
	list, err := repo.List(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() вернул %d записей, хотели 1", len(list))
	}

	// List с фильтром по типу
	mType := model.MissionTypeDJ
	list2, err := repo.List(ctx, &mType, nil, 10, 0)
	if err != nil {
		t.Fatalf("List(type=dj) ошибка: %v", err)
	}
	if len(list2) != 0 {
		t.Errorf("List(type=dj) вернул %d записей, хотели 0", len(list2))
	}

	// List с фильтром по дате (после конца миссии)
	after := end.Add(time.Hour)
	list3, err := repo.List(ctx, nil, &after, 10, 0)
	if err != nil {
		t.Fatalf("List(from) ошибка: %v", err)
	}
	if len(list3) != 0 {
		t.Errorf("List(from) вернул %d записей, хотели 0", len(list3))
	}

	// Count
	count, err := repo.Count(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, хотели 1", count)
	}

	// Update
	m.Title = "Концерт в Лионе"
	m.Fee = 650
	if err := repo.Update(ctx, m); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got2, _ := repo.GetByID(ctx, missionID)
	if got2.Title != "Концерт в Лионе" || got2.Fee != 650 {
		t.Errorf("После Update: Title=%q, Fee=%v", got2.Title, got2.Fee)
	}

	// Delete
	if err := repo.Delete(ctx, missionID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	_, err = repo.GetByID(ctx, missionID)
	if err != ErrNotFound {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
}

// --- Тесты UserRepository ---

func TestUserCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	userID := uuid.New().String()
	kcID := uuid.New().String()
	phone := "+33612345678"
	u := &model.User{
		ID:         userID,
		KeycloakID: &kcID,
		Name:       "Alice Martin",
		Role:       "technician",
		Email:      "alice@example.com",
		Phone:      &phone,
		Validated:  false,
		Status:     "active",
	}

	// Create
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Create с дублирующимся email → ErrConflict
	dup := &model.User{
		ID:     uuid.New().String(),
		Name:   "Alice Dup",
		Role:   "technician",
		Email:  "alice@example.com",
		Status: "active",
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create() дубликат email: ожидали ErrConflict, получили: %v", err)
	}

	// GetByID
	got, err := repo.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, хотели %q", got.Email, "alice@example.com")
	}

	// GetByKeycloakID
	got2, err := repo.GetByKeycloakID(ctx, kcID)
	if err != nil {
		t.Fatalf("GetByKeycloakID() ошибка: %v", err)
	}
	if got2.ID != userID {
		t.Errorf("ID = %q, хотели %q", got2.ID, userID)
	}

	// List с фильтром по роли
	role := "technician"
	list, err := repo.List(ctx, &role, nil, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List(role=technician) вернул %d записей, хотели 1", len(list))
	}

	// Update
	u.Name = "Alice Bernard"
	if err := repo.Update(ctx, u); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}

	// SetValidated
	if err := repo.SetValidated(ctx, userID, true); err != nil {
		t.Fatalf("SetValidated() ошибка: %v", err)
	}
	got3, _ := repo.GetByID(ctx, userID)
	if got3.Name != "Alice Bernard" || !got3.Validated {
		t.Errorf("После Update/SetValidated: Name=%q, Validated=%v", got3.Name, got3.Validated)
	}

	// SetStatus
	if err := repo.SetStatus(ctx, userID, "disabled"); err != nil {
		t.Fatalf("SetStatus() ошибка: %v", err)
	}
	got4, _ := repo.GetByID(ctx, userID)
	if got4.Status != "disabled" {
		t.Errorf("Status = %q, хотели %q", got4.Status, "disabled")
	}
}

// --- Тесты AvailabilityRepository ---

func TestAvailabilityCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAvailabilityRepository(pool)

	user := createTestUser(t, pool, "tech-avail@example.com")

	// Интервалы хранятся как время суток на нормализованной дате
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &model.Availability{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		StartTime: base.Add(9 * time.Hour),
		EndTime:   base.Add(18 * time.Hour),
	}

	// Create
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// ListByUser
	list, err := repo.ListByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListByUser() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListByUser() вернул %d записей, хотели 1", len(list))
	}
	if list[0].StartTime.UTC().Hour() != 9 {
		t.Errorf("StartTime hour = %d, хотели 9", list[0].StartTime.UTC().Hour())
	}

	// Update
	a.EndTime = base.Add(20 * time.Hour)
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got, _ := repo.GetByID(ctx, a.ID)
	if got.EndTime.UTC().Hour() != 20 {
		t.Errorf("После Update: EndTime hour = %d, хотели 20", got.EndTime.UTC().Hour())
	}

	// ListAll
	all, err := repo.ListAll(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListAll() ошибка: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("ListAll() вернул %d записей, хотели 1", len(all))
	}

	// Delete
	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := repo.Delete(ctx, a.ID); err != ErrNotFound {
		t.Errorf("Повторный Delete: ожидали ErrNotFound, получили: %v", err)
	}
}

// --- Тесты AssignmentRepository ---

func TestAssignmentCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAssignmentRepository(pool)

	user := createTestUser(t, pool, "tech-assign@example.com")
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	mission := createTestMission(t, pool, start, start.Add(3*time.Hour))

	a := &model.Assignment{
		ID:        uuid.New().String(),
		MissionID: mission.ID,
		UserID:    user.ID,
	}

	// Create
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// Повторное назначение той же пары → ErrConflict
	dup := &model.Assignment{
		ID:        uuid.New().String(),
		MissionID: mission.ID,
		UserID:    user.ID,
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create() дубликат: ожидали ErrConflict, получили: %v", err)
	}

	// ListByMission
	list, err := repo.ListByMission(ctx, mission.ID)
	if err != nil {
		t.Fatalf("ListByMission() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListByMission() вернул %d записей, хотели 1", len(list))
	}

	// BookedWindows — занятость техника
	windows, err := repo.BookedWindows(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("BookedWindows() ошибка: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("BookedWindows() вернул %d окон, хотели 1", len(windows))
	}
	if !windows[0].StartAt.Equal(start) {
		t.Errorf("BookedWindows StartAt = %v, хотели %v", windows[0].StartAt, start)
	}

	// BookedWindows с исключением миссии
	windows2, err := repo.BookedWindows(ctx, user.ID, mission.ID)
	if err != nil {
		t.Fatalf("BookedWindows(exclude) ошибка: %v", err)
	}
	if len(windows2) != 0 {
		t.Errorf("BookedWindows(exclude) вернул %d окон, хотели 0", len(windows2))
	}

	// AssignedCount миссии учитывает назначение
	missionRepo := NewMissionRepository(pool)
	gotMission, err := missionRepo.GetByID(ctx, mission.ID)
	if err != nil {
		t.Fatalf("GetByID() миссии ошибка: %v", err)
	}
	if gotMission.AssignedCount != 1 {
		t.Errorf("AssignedCount = %d, хотели 1", gotMission.AssignedCount)
	}

	// Delete
	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	_, err = repo.GetByID(ctx, a.ID)
	if err != ErrNotFound {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
}

// --- Тесты BillingRepository ---

func TestBillingCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewBillingRepository(pool)

	user := createTestUser(t, pool, "tech-billing@example.com")
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)
	mission := createTestMission(t, pool, start, start.Add(2*time.Hour))

	assignment := &model.Assignment{
		ID:        uuid.New().String(),
		MissionID: mission.ID,
		UserID:    user.ID,
	}
	if err := NewAssignmentRepository(pool).Create(ctx, assignment); err != nil {
		t.Fatalf("Создание назначения: %v", err)
	}

	b := &model.BillingRecord{
		ID:           uuid.New().String(),
		AssignmentID: assignment.ID,
		MissionID:    mission.ID,
		UserID:       user.ID,
		Amount:       350,
		Status:       model.BillingStatusPending,
	}

	// Create
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// GetByID
	got, err := repo.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Status != model.BillingStatusPending {
		t.Errorf("Status = %q, хотели %q", got.Status, model.BillingStatusPending)
	}

	// List с фильтром по технику
	list, err := repo.List(ctx, &user.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List(user) вернул %d записей, хотели 1", len(list))
	}

	// List с фильтром по статусу
	paid := model.BillingStatusPaid
	list2, err := repo.List(ctx, nil, &paid, 10, 0)
	if err != nil {
		t.Fatalf("List(status=paid) ошибка: %v", err)
	}
	if len(list2) != 0 {
		t.Errorf("List(status=paid) вернул %d записей, хотели 0", len(list2))
	}

	// SetStatus
	if err := repo.SetStatus(ctx, b.ID, model.BillingStatusInvoiced); err != nil {
		t.Fatalf("SetStatus() ошибка: %v", err)
	}
	got2, _ := repo.GetByID(ctx, b.ID)
	if got2.Status != model.BillingStatusInvoiced {
		t.Errorf("После SetStatus: Status = %q, хотели %q", got2.Status, model.BillingStatusInvoiced)
	}

	// DeleteByAssignment
	if err := repo.DeleteByAssignment(ctx, assignment.ID); err != nil {
		t.Fatalf("DeleteByAssignment() ошибка: %v", err)
	}
	_, err = repo.GetByID(ctx, b.ID)
	if err != ErrNotFound {
		t.Errorf("После DeleteByAssignment ожидали ErrNotFound, получили: %v", err)
	}
}
