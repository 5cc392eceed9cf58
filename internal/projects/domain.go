// Package projects manages projects, their members, and sprints.
package projects

import "time"

// Project is a unit of work, optionally attached to a course.
type Project struct {
	ID          int64     `json:"id"`
	CourseID    *int64    `json:"courseId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Member links a user to a project.
type Member struct {
	ProjectID int64     `json:"projectId"`
	UserID    int64     `json:"userId"`
	AddedAt   time.Time `json:"addedAt"`
}

// Sprint is a time-boxed iteration inside a project.
type Sprint struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Name      string    `json:"name"`
	StartsAt  time.Time `json:"startsAt"`
	EndsAt    time.Time `json:"endsAt"`
	CreatedAt time.Time `json:"createdAt"`
}
