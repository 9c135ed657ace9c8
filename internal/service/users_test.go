package service

import (
	"context"
	"errors"
	"testing"

	"github.com/staffmission/dispatch/internal/domain/model"
)

func newUserService() (*UserService, *fakeUserRepo, *fakeIDP) {
	repo := newFakeUserRepo()
	idp := newFakeIDP()
	return NewUserService(repo, idp, testLogger()), repo, idp
}

func validUserInput() *UserInput {
	phone := "+33 6 12 34 56 78"
	return &UserInput{
		Name:     "Jean Dupont",
		Role:     "technician",
		Email:    "jean@test.fr",
		Phone:    &phone,
		Password: "Abc123!@",
	}
}

// TestUserService_Create проверяет создание пользователя в Keycloak и локально.
func TestUserService_Create(t *testing.T) {
	svc, repo, idp := newUserService()

	user, err := svc.Create(context.Background(), validUserInput())
	if err != nil {
		t.Fatalf("Ошибка Create: %v", err)
	}

	if idp.created != 1 {
		t.Errorf("ожидалось 1 создание в Keycloak, было %d", idp.created)
	}
	if user.KeycloakID == nil || *user.KeycloakID != "kc-user-id" {
		t.Errorf("ожидался KeycloakID kc-user-id, получено %v", user.KeycloakID)
	}
	if user.Validated {
		t.Error("новый пользователь не должен быть подтверждён")
	}
	if user.Status != model.UserStatusActive {
		t.Errorf("ожидался статус active, получен %s", user.Status)
	}
	if _, ok := repo.users[user.ID]; !ok {
		t.Error("пользователь не сохранён локально")
	}
}

// TestUserService_CreateWeakPassword проверяет отказ при слабом пароле.
func TestUserService_CreateWeakPassword(t *testing.T) {
	svc, _, idp := newUserService()

	input := validUserInput()
	input.Password = "abc" // короткий, без заглавных, цифр и спецсимволов

	_, err := svc.Create(context.Background(), input)
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("ожидался ErrWeakPassword, получено %v", err)
	}
	if idp.created != 0 {
		t.Error("слабый пароль не должен доходить до Keycloak")
	}
}

// TestUserService_CreateCompensation проверяет компенсирующее удаление
// в Keycloak при конфликте локального сохранения.
func TestUserService_CreateCompensation(t *testing.T) {
	svc, repo, idp := newUserService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, validUserInput()); err != nil {
		t.Fatalf("первое создание: %v", err)
	}

	// Повторное создание с тем же email → конфликт локально
	_, err := svc.Create(ctx, validUserInput())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ожидался ErrConflict, получено %v", err)
	}
	if idp.deleted != 1 {
		t.Errorf("ожидалось компенсирующее удаление в Keycloak, было %d", idp.deleted)
	}
	if len(repo.users) != 1 {
		t.Errorf("ожидался 1 пользователь, получено %d", len(repo.users))
	}
}

// TestUserService_CreateIDPDown проверяет поведение при недоступном Keycloak.
func TestUserService_CreateIDPDown(t *testing.T) {
	svc, repo, idp := newUserService()
	idp.failCreate = true

	_, err := svc.Create(context.Background(), validUserInput())
	if !errors.Is(err, ErrIDPUnavailable) {
		t.Fatalf("ожидался ErrIDPUnavailable, получено %v", err)
	}
	if len(repo.users) != 0 {
		t.Error("локальная запись не должна создаваться при ошибке Keycloak")
	}
}

// TestUserService_CreateValidation проверяет валидацию полей.
func TestUserService_CreateValidation(t *testing.T) {
	svc, _, _ := newUserService()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*UserInput)
	}{
		{"пустое имя", func(in *UserInput) { in.Name = "  " }},
		{"недопустимая роль", func(in *UserInput) { in.Role = "manager" }},
		{"некорректный email", func(in *UserInput) { in.Email = "not-an-email" }},
		{"некорректный телефон", func(in *UserInput) {
			bad := "abc"
			in.Phone = &bad
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validUserInput()
			tt.mutate(input)

			_, err := svc.Create(ctx, input)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ожидался ErrValidation, получено %v", err)
			}
		})
	}
}

// TestUserService_Validate проверяет подтверждение аккаунта.
func TestUserService_Validate(t *testing.T) {
	svc, repo, _ := newUserService()
	ctx := context.Background()

	user, err := svc.Create(ctx, validUserInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Validate(ctx, user.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !repo.users[user.ID].Validated {
		t.Error("пользователь должен быть подтверждён")
	}

	if err := svc.Validate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}

// TestUserService_SetStatus проверяет отключение с синхронизацией в Keycloak.
func TestUserService_SetStatus(t *testing.T) {
	svc, repo, idp := newUserService()
	ctx := context.Background()

	user, err := svc.Create(ctx, validUserInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.SetStatus(ctx, user.ID, model.UserStatusDisabled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	if repo.users[user.ID].Status != model.UserStatusDisabled {
		t.Error("статус должен быть disabled")
	}
	if enabled, ok := idp.enabledCalls["kc-user-id"]; !ok || enabled {
		t.Error("учётная запись в Keycloak должна быть отключена")
	}

	// Недопустимый статус
	if err := svc.SetStatus(ctx, user.ID, "deleted"); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидался ErrValidation, получено %v", err)
	}
}

// TestUserService_ResetPassword проверяет смену пароля.
func TestUserService_ResetPassword(t *testing.T) {
	svc, _, idp := newUserService()
	ctx := context.Background()

	user, err := svc.Create(ctx, validUserInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.ResetPassword(ctx, user.ID, "Xyz789!@"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if idp.passwordCalls != 1 {
		t.Errorf("ожидался 1 вызов смены пароля, было %d", idp.passwordCalls)
	}

	// Слабый пароль отклоняется до обращения к Keycloak
	if err := svc.ResetPassword(ctx, user.ID, "weak"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("ожидался ErrWeakPassword, получено %v", err)
	}
	if idp.passwordCalls != 1 {
		t.Error("слабый пароль не должен доходить до Keycloak")
	}
}

// TestUserService_CheckPassword проверяет ответ проверки сложности.
func TestUserService_CheckPassword(t *testing.T) {
	svc, _, _ := newUserService()

	strong := svc.CheckPassword("Abc123!@")
	if strong.Score != 5 || len(strong.Unmet) != 0 {
		t.Errorf("ожидался балл 5 без невыполненных правил, получено %+v", strong)
	}

	weak := svc.CheckPassword("abc")
	if weak.Score > 1 || len(weak.Unmet) != 4 {
		t.Errorf("ожидался низкий балл и 4 невыполненных правила, получено %+v", weak)
	}
}
