package authz

// Action is a permission verb from the closed catalogue. Route declarations
// and grant rows reference the same constants; adding a verb means extending
// this list, never touching the authority logic.
type Action string

const (
	ActionCreateCourse Action = "create_course"
	ActionReadCourse   Action = "read_course"
	ActionUpdateCourse Action = "update_course"
	ActionDeleteCourse Action = "delete_course"

	ActionCreateProject Action = "create_project"
	ActionReadProject   Action = "read_project"
	ActionUpdateProject Action = "update_project"
	ActionDeleteProject Action = "delete_project"

	ActionCreateUsers Action = "create_users"
	ActionReadUsers   Action = "read_users"
	ActionUpdateUsers Action = "update_users"
	ActionDeleteUsers Action = "delete_users"

	ActionSendInvite Action = "send_invite"
	ActionAdmin      Action = "admin"
)

// ActionNone marks a route without a required action; the authority treats
// it as always allowed.
const ActionNone Action = ""

// Actions returns the full static catalogue.
func Actions() []Action {
	return []Action{
		ActionCreateCourse, ActionReadCourse, ActionUpdateCourse, ActionDeleteCourse,
		ActionCreateProject, ActionReadProject, ActionUpdateProject, ActionDeleteProject,
		ActionCreateUsers, ActionReadUsers, ActionUpdateUsers, ActionDeleteUsers,
		ActionSendInvite, ActionAdmin,
	}
}

// Valid reports whether a belongs to the catalogue.
func (a Action) Valid() bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

// Role identifiers form a small closed catalogue seeded at install time.
const (
	FacultyRoleID int64 = 1
	StudentRoleID int64 = 2
	AdminRoleID   int64 = 3
)
