package users

import (
	"context"
	"errors"
	"testing"

	"github.com/vidstream/client/internal/models"
)

type fakeDirectory struct {
	users       []models.User
	roleUpdates int
	deletes     int
}

func (f *fakeDirectory) ListUsers(context.Context) ([]models.User, error) {
	return f.users, nil
}

func (f *fakeDirectory) UpdateUserRole(context.Context, string, models.Role) error {
	f.roleUpdates++
	return nil
}

func (f *fakeDirectory) DeleteUser(context.Context, string) error {
	f.deletes++
	return nil
}

type fakeIdentity struct {
	user models.User
}

func (f *fakeIdentity) User() models.User { return f.user }

func TestListRequiresAdmin(t *testing.T) {
	directory := &fakeDirectory{users: []models.User{{ID: "user-1"}}}

	svc := NewService(directory, &fakeIdentity{user: models.User{ID: "e", Role: models.RoleEditor}}, nil)
	if _, err := svc.List(context.Background()); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected not admin got %v", err)
	}

	svc = NewService(directory, &fakeIdentity{user: models.User{ID: "a", Role: models.RoleAdmin}}, nil)
	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unexpected directory: %+v", got)
	}
}

func TestChangeRoleSelfProtection(t *testing.T) {
	directory := &fakeDirectory{}
	admin := models.User{ID: "admin-1", Role: models.RoleAdmin}
	svc := NewService(directory, &fakeIdentity{user: admin}, nil)

	err := svc.ChangeRole(context.Background(), admin, models.RoleViewer)
	if !errors.Is(err, ErrSelfProtection) {
		t.Fatalf("expected self-protection got %v", err)
	}
	if directory.roleUpdates != 0 {
		t.Fatal("self-protection must reject before any request is issued")
	}

	other := models.User{ID: "user-2", Role: models.RoleViewer}
	if err := svc.ChangeRole(context.Background(), other, models.RoleEditor); err != nil {
		t.Fatalf("change role: %v", err)
	}
	if directory.roleUpdates != 1 {
		t.Fatalf("expected one role update got %d", directory.roleUpdates)
	}
}

func TestDeleteGuards(t *testing.T) {
	directory := &fakeDirectory{}
	admin := models.User{ID: "admin-1", Role: models.RoleAdmin}
	svc := NewService(directory, &fakeIdentity{user: admin}, nil)

	if err := svc.Delete(context.Background(), admin); !errors.Is(err, ErrSelfProtection) {
		t.Fatalf("expected self-protection got %v", err)
	}

	editorSvc := NewService(directory, &fakeIdentity{user: models.User{ID: "e", Role: models.RoleEditor}}, nil)
	if err := editorSvc.Delete(context.Background(), models.User{ID: "user-2"}); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected not admin got %v", err)
	}
	if directory.deletes != 0 {
		t.Fatal("guarded operations must have zero network side effects")
	}

	if err := svc.Delete(context.Background(), models.User{ID: "user-2"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if directory.deletes != 1 {
		t.Fatalf("expected one delete got %d", directory.deletes)
	}
}

func TestRoleCounts(t *testing.T) {
	users := []models.User{
		{Role: models.RoleAdmin},
		{Role: models.RoleEditor},
		{Role: models.RoleEditor},
		{Role: models.RoleViewer},
	}
	counts := RoleCounts(users)
	if counts[models.RoleAdmin] != 1 || counts[models.RoleEditor] != 2 || counts[models.RoleViewer] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}
