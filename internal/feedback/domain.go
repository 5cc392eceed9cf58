// Package feedback stores faculty feedback attached to sprints.
package feedback

import "time"

// Feedback is a note left on a sprint by course staff.
type Feedback struct {
	ID        int64     `json:"id"`
	SprintID  int64     `json:"sprintId"`
	UserID    int64     `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
