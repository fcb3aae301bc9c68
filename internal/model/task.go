package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned when a task does not exist or belongs to
// another user. The two cases are deliberately indistinguishable.
var ErrTaskNotFound = errors.New("task not found")

type Task struct {
	ID          uuid.UUID `json:"id"`
	UserID      int       `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskUpdate holds the fields to change; nil means unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
}

func (u TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil
}
