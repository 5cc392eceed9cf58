package authz

// The resource constraint builders. Each builder is a pure function from
// (userID, isAdmin) to a Predicate with two evaluation modes: Matches for an
// in-memory point check against a Candidate snapshot, and Filter for
// pushdown into a collection query. Admin principals always receive the
// universal predicate.

// Resource identifies a constrained resource type.
type Resource string

const (
	ResourceProject  Resource = "project"
	ResourceCourse   Resource = "course"
	ResourceUser     Resource = "user"
	ResourceFeedback Resource = "feedback"
)

// Candidate is an in-memory snapshot of one resource row together with the
// membership edges reachable from it. Only the fields relevant to the
// resource type need to be populated.
type Candidate struct {
	ID int64
	// ProjectMembers lists user ids directly attached to a project.
	ProjectMembers []int64
	// CourseRoles maps user id to role id on the owning course. For
	// feedback the owning course is reached through sprint and project.
	CourseRoles map[int64]int64
}

// Predicate is a composable row-level constraint.
type Predicate interface {
	// Matches evaluates the constraint against an in-memory snapshot.
	Matches(c Candidate) bool
	// Filter renders the constraint as a collection query fragment.
	Filter() Filter
}

type universal struct{}

func (universal) Matches(Candidate) bool { return true }
func (universal) Filter() Filter         { return Universal() }

type anyOf []Predicate

func (p anyOf) Matches(c Candidate) bool {
	for _, sub := range p {
		if sub.Matches(c) {
			return true
		}
	}
	return false
}

func (p anyOf) Filter() Filter {
	filters := make([]Filter, len(p))
	for i, sub := range p {
		filters[i] = sub.Filter()
	}
	return Or(filters...)
}

// projectMember: the user is directly attached to the project.
type projectMember struct{ userID int64 }

func (p projectMember) Matches(c Candidate) bool {
	for _, id := range c.ProjectMembers {
		if id == p.userID {
			return true
		}
	}
	return false
}

func (p projectMember) Filter() Filter {
	return Where(
		`EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = ?)`,
		p.userID,
	)
}

// courseStaff: the user holds a non-student scoped role on the project's
// owning course.
type courseStaff struct{ userID int64 }

func (p courseStaff) Matches(c Candidate) bool {
	roleID, ok := c.CourseRoles[p.userID]
	return ok && roleID != StudentRoleID
}

func (p courseStaff) Filter() Filter {
	return Where(
		`EXISTS (SELECT 1 FROM course_members cm WHERE cm.course_id = p.course_id AND cm.user_id = ? AND cm.role_id <> ?)`,
		p.userID, StudentRoleID,
	)
}

// courseMember: the user holds any scoped role on the course.
type courseMember struct{ userID int64 }

func (p courseMember) Matches(c Candidate) bool {
	_, ok := c.CourseRoles[p.userID]
	return ok
}

func (p courseMember) Filter() Filter {
	return Where(
		`EXISTS (SELECT 1 FROM course_members cm WHERE cm.course_id = c.id AND cm.user_id = ?)`,
		p.userID,
	)
}

// feedbackCourseMember: course membership reached through the feedback's
// sprint and project.
type feedbackCourseMember struct{ userID int64 }

func (p feedbackCourseMember) Matches(c Candidate) bool {
	_, ok := c.CourseRoles[p.userID]
	return ok
}

func (p feedbackCourseMember) Filter() Filter {
	return Where(
		`EXISTS (SELECT 1 FROM sprints s
		  JOIN projects pr ON pr.id = s.project_id
		  JOIN course_members cm ON cm.course_id = pr.course_id
		 WHERE s.id = f.sprint_id AND cm.user_id = ?)`,
		p.userID,
	)
}

// selfUser: the target row is the user's own account.
type selfUser struct{ userID int64 }

func (p selfUser) Matches(c Candidate) bool { return c.ID == p.userID }

func (p selfUser) Filter() Filter {
	return Where(`u.id = ?`, p.userID)
}

// ProjectConstraint: a non-admin may manage a project iff they are a member
// of it or hold a non-student scoped role on its owning course.
func ProjectConstraint(userID int64, isAdmin bool) Predicate {
	if isAdmin {
		return universal{}
	}
	return anyOf{projectMember{userID}, courseStaff{userID}}
}

// CourseConstraint: a non-admin may manage a course iff they hold any scoped
// role on it.
func CourseConstraint(userID int64, isAdmin bool) Predicate {
	if isAdmin {
		return universal{}
	}
	return courseMember{userID}
}

// FeedbackConstraint: a non-admin may manage feedback iff they are a member
// of the course owning the feedback's sprint's project.
func FeedbackConstraint(userID int64, isAdmin bool) Predicate {
	if isAdmin {
		return universal{}
	}
	return feedbackCourseMember{userID}
}

// UserConstraint: a non-admin may only manage their own account.
func UserConstraint(userID int64, isAdmin bool) Predicate {
	if isAdmin {
		return universal{}
	}
	return selfUser{userID}
}
