package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tessera-pm/tessera/internal/shared"
)

type stubRepo struct {
	grants       map[string]bool
	roleActions  map[int64][]Action
	basicRoles   map[int64]int64
	courseRoles  map[string]ScopedRole
	scopedRoles  map[int64][]ScopedRole
	projectOwner map[int64]int64
}

func grantKey(roleID int64, action Action) string {
	return fmt.Sprintf("%d/%s", roleID, action)
}

func courseKey(userID, courseID int64) string {
	return fmt.Sprintf("%d/%d", userID, courseID)
}

func (s *stubRepo) HasGrant(_ context.Context, roleID int64, action Action) (bool, error) {
	return s.grants[grantKey(roleID, action)], nil
}

func (s *stubRepo) InsertGrant(_ context.Context, roleID int64, action Action) error {
	key := grantKey(roleID, action)
	if s.grants[key] {
		return shared.ErrDuplicate
	}
	if s.grants == nil {
		s.grants = map[string]bool{}
	}
	s.grants[key] = true
	return nil
}

func (s *stubRepo) DeleteGrant(_ context.Context, roleID int64, action Action) error {
	key := grantKey(roleID, action)
	if !s.grants[key] {
		return shared.ErrNotFound
	}
	delete(s.grants, key)
	return nil
}

func (s *stubRepo) ListRoleGrants(_ context.Context) ([]RoleGrants, error) {
	return nil, nil
}

func (s *stubRepo) RoleActions(_ context.Context, roleID int64) ([]Action, error) {
	return s.roleActions[roleID], nil
}

func (s *stubRepo) BasicRole(_ context.Context, userID int64) (int64, error) {
	roleID, ok := s.basicRoles[userID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return roleID, nil
}

func (s *stubRepo) CourseRole(_ context.Context, userID, courseID int64) (ScopedRole, error) {
	scoped, ok := s.courseRoles[courseKey(userID, courseID)]
	if !ok {
		return ScopedRole{}, ErrNoScopedRole
	}
	return scoped, nil
}

func (s *stubRepo) ScopedRoles(_ context.Context, userID int64) ([]ScopedRole, error) {
	return s.scopedRoles[userID], nil
}

func (s *stubRepo) ProjectCourse(_ context.Context, projectID int64) (int64, bool, error) {
	courseID, ok := s.projectOwner[projectID]
	return courseID, ok, nil
}

func TestIsActionAllowedAdminBypassesEveryAction(t *testing.T) {
	authority := NewAuthority(&stubRepo{})

	for _, action := range Actions() {
		allowed, err := authority.IsActionAllowed(context.Background(), AdminRoleID, action)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", action, err)
		}
		if !allowed {
			t.Fatalf("admin should be allowed %s", action)
		}
	}
}

func TestIsActionAllowedNoneIsAlwaysAllowed(t *testing.T) {
	authority := NewAuthority(&stubRepo{})

	allowed, err := authority.IsActionAllowed(context.Background(), StudentRoleID, ActionNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("a route without an action must always be allowed")
	}
}

func TestIsActionAllowedDeniesAbsentGrant(t *testing.T) {
	repo := &stubRepo{grants: map[string]bool{
		grantKey(StudentRoleID, ActionReadProject): true,
	}}
	authority := NewAuthority(repo)

	allowed, err := authority.IsActionAllowed(context.Background(), StudentRoleID, ActionDeleteCourse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("student should not hold delete_course")
	}

	allowed, err = authority.IsActionAllowed(context.Background(), StudentRoleID, ActionReadProject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("granted action should be allowed")
	}
}

func TestGrantRejectsDuplicatesAndUnknownActions(t *testing.T) {
	repo := &stubRepo{grants: map[string]bool{}}
	authority := NewAuthority(repo)

	if err := authority.Grant(context.Background(), FacultyRoleID, ActionSendInvite); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if err := authority.Grant(context.Background(), FacultyRoleID, ActionSendInvite); !errors.Is(err, shared.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := authority.Grant(context.Background(), FacultyRoleID, Action("fly_to_moon")); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRevokeAbsentGrant(t *testing.T) {
	authority := NewAuthority(&stubRepo{grants: map[string]bool{}})

	if err := authority.Revoke(context.Background(), FacultyRoleID, ActionSendInvite); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProjectRoleDelegatesThroughOwningCourse(t *testing.T) {
	repo := &stubRepo{
		projectOwner: map[int64]int64{9: 3},
		courseRoles: map[string]ScopedRole{
			courseKey(7, 3): {
				UserID:   7,
				CourseID: 3,
				Role:     Role{ID: FacultyRoleID, Name: "TA"},
				Actions:  []Action{ActionReadProject, ActionUpdateProject},
			},
		},
	}
	authority := NewAuthority(repo)

	scoped, err := authority.ProjectRole(context.Background(), 7, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scoped.CourseID != 3 || scoped.Role.ID != FacultyRoleID {
		t.Fatalf("unexpected scoped role: %+v", scoped)
	}

	// A project without an owning course has no scoped assignments.
	if _, err := authority.ProjectRole(context.Background(), 7, 999); !errors.Is(err, ErrNoScopedRole) {
		t.Fatalf("expected ErrNoScopedRole, got %v", err)
	}
}

func TestRoleInformationUnionsScopedActions(t *testing.T) {
	repo := &stubRepo{
		basicRoles: map[int64]int64{7: StudentRoleID},
		roleActions: map[int64][]Action{
			StudentRoleID: {ActionReadProject},
		},
		scopedRoles: map[int64][]ScopedRole{
			7: {
				{UserID: 7, CourseID: 3, Role: Role{ID: FacultyRoleID}, Actions: []Action{ActionReadProject, ActionUpdateProject}},
			},
		},
	}
	authority := NewAuthority(repo)

	info, err := authority.RoleInformation(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.IsAdmin {
		t.Fatal("student with TA scope is not an admin")
	}
	if info.RoleID != StudentRoleID {
		t.Fatalf("unexpected role id %d", info.RoleID)
	}
	want := map[Action]bool{ActionReadProject: true, ActionUpdateProject: true}
	if len(info.Actions) != len(want) {
		t.Fatalf("expected %d deduplicated actions, got %v", len(want), info.Actions)
	}
	for _, action := range info.Actions {
		if !want[action] {
			t.Fatalf("unexpected action %s", action)
		}
	}
}
