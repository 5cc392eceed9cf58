package courses

import "time"

// Course is a scope for role assignments and the owner of projects.
type Course struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Member is one scoped role assignment: the user's role within this course.
// At most one assignment exists per (user, course).
type Member struct {
	CourseID int64     `json:"courseId"`
	UserID   int64     `json:"userId"`
	RoleID   int64     `json:"roleId"`
	AddedAt  time.Time `json:"addedAt"`
}
