// service_test.go — общие фейки репозиториев для тестов сервисного слоя.
package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/staffmission/dispatch/internal/domain/model"
	"github.com/staffmission/dispatch/internal/idclient"
	"github.com/staffmission/dispatch/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- fakeMissionRepo ---

type fakeMissionRepo struct {
	missions map[string]*model.Mission
}

func newFakeMissionRepo() *fakeMissionRepo {
	return &fakeMissionRepo{missions: make(map[string]*model.Mission)}
}

func (f *fakeMissionRepo) Create(_ context.Context, m *model.Mission) error {
	f.missions[m.ID] = m
	return nil
}

func (f *fakeMissionRepo) GetByID(_ context.Context, id string) (*model.Mission, error) {
	m, ok := f.missions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMissionRepo) List(_ context.Context, missionType *string, from *time.Time, _, _ int) ([]*model.Mission, error) {
	var out []*model.Mission
	for _, m := range f.missions {
		if missionType != nil && m.Type != *missionType {
			continue
		}
		if from != nil && m.StartAt.Before(*from) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMissionRepo) ListByUser(_ context.Context, _ string) ([]*model.Mission, error) {
	return nil, nil
}

func (f *fakeMissionRepo) Update(_ context.Context, m *model.Mission) error {
	if _, ok := f.missions[m.ID]; !ok {
		return repository.ErrNotFound
	}
	f.missions[m.ID] = m
	return nil
}

func (f *fakeMissionRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.missions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.missions, id)
	return nil
}

func (f *fakeMissionRepo) Count(_ context.Context, missionType *string, from *time.Time) (int, error) {
	items, _ := f.List(context.Background(), missionType, from, 0, 0)
	return len(items), nil
}

// --- fakeAssignmentRepo ---

type fakeAssignmentRepo struct {
	assignments map[string]*model.Assignment
	// windows — занятость техников: userID -> окна
	windows map[string][]repository.BookedWindow
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{
		assignments: make(map[string]*model.Assignment),
		windows:     make(map[string][]repository.BookedWindow),
	}
}

func (f *fakeAssignmentRepo) Create(_ context.Context, a *model.Assignment) error {
	for _, existing := range f.assignments {
		if existing.MissionID == a.MissionID && existing.UserID == a.UserID {
			return repository.ErrConflict
		}
	}
	f.assignments[a.ID] = a
	return nil
}

func (f *fakeAssignmentRepo) GetByID(_ context.Context, id string) (*model.Assignment, error) {
	a, ok := f.assignments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (f *fakeAssignmentRepo) ListByMission(_ context.Context, missionID string) ([]*model.Assignment, error) {
	var out []*model.Assignment
	for _, a := range f.assignments {
		if a.MissionID == missionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAssignmentRepo) BookedWindows(_ context.Context, userID, excludeMissionID string) ([]repository.BookedWindow, error) {
	var out []repository.BookedWindow
	for _, w := range f.windows[userID] {
		if w.MissionID == excludeMissionID {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeAssignmentRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.assignments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.assignments, id)
	return nil
}

// --- fakeUserRepo ---

type fakeUserRepo struct {
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return repository.ErrConflict
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByKeycloakID(_ context.Context, keycloakID string) (*model.User, error) {
	for _, u := range f.users {
		if u.KeycloakID != nil && *u.KeycloakID == keycloakID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) List(_ context.Context, role, status *string, _, _ int) ([]*model.User, error) {
	var out []*model.User
	for _, u := range f.users {
		if role != nil && u.Role != *role {
			continue
		}
		if status != nil && u.Status != *status {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUserRepo) Update(_ context.Context, u *model.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) SetStatus(_ context.Context, id, status string) error {
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Status = status
	return nil
}

func (f *fakeUserRepo) SetValidated(_ context.Context, id string, validated bool) error {
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Validated = validated
	return nil
}

// --- fakeBillingRepo ---

type fakeBillingRepo struct {
	records map[string]*model.BillingRecord
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{records: make(map[string]*model.BillingRecord)}
}

func (f *fakeBillingRepo) Create(_ context.Context, b *model.BillingRecord) error {
	f.records[b.ID] = b
	return nil
}

func (f *fakeBillingRepo) GetByID(_ context.Context, id string) (*model.BillingRecord, error) {
	b, ok := f.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBillingRepo) List(_ context.Context, userID, status *string, _, _ int) ([]*model.BillingRecord, error) {
	var out []*model.BillingRecord
	for _, b := range f.records {
		if userID != nil && b.UserID != *userID {
			continue
		}
		if status != nil && b.Status != *status {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBillingRepo) SetStatus(_ context.Context, id, status string) error {
	b, ok := f.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = status
	return nil
}

func (f *fakeBillingRepo) DeleteByAssignment(_ context.Context, assignmentID string) error {
	for id, b := range f.records {
		if b.AssignmentID == assignmentID {
			delete(f.records, id)
		}
	}
	return nil
}

// --- fakeIDP ---

type fakeIDP struct {
	created       int
	deleted       int
	enabledCalls  map[string]bool
	passwordCalls int
	failCreate    bool
}

func newFakeIDP() *fakeIDP {
	return &fakeIDP{enabledCalls: make(map[string]bool)}
}

func (f *fakeIDP) CreateUser(_ context.Context, _, _, _, _, _ string) (string, error) {
	if f.failCreate {
		return "", context.DeadlineExceeded
	}
	f.created++
	return "kc-user-id", nil
}

func (f *fakeIDP) UpdateUser(_ context.Context, _ string, _ *idclient.KeycloakUser) error {
	return nil
}

func (f *fakeIDP) SetEnabled(_ context.Context, id string, enabled bool) error {
	f.enabledCalls[id] = enabled
	return nil
}

func (f *fakeIDP) ResetPassword(_ context.Context, _, _ string) error {
	f.passwordCalls++
	return nil
}

func (f *fakeIDP) DeleteUser(_ context.Context, _ string) error {
	f.deleted++
	return nil
}
