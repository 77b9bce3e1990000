package model

import (
	"time"

	"github.com/google/uuid"
)

type FollowUpState string

const (
	FollowUpPending   FollowUpState = "pending"
	FollowUpInProcess FollowUpState = "in_process"
	FollowUpFinalized FollowUpState = "finalized"
)

// Communication is one note logged by a teacher about a student.
// Timestamp is when the incident happened and may precede CreatedAt.
type Communication struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	StudentEnrolment string        `json:"student_enrolment" db:"student_enrolment"`
	SubjectCode      string        `json:"subject_code" db:"subject_code"`
	TeacherEmail     string        `json:"teacher_email" db:"teacher_email"`
	Message          string        `json:"message" db:"message"`
	Comment          *string       `json:"comment,omitempty" db:"comment"`
	ActionTaken      *string       `json:"action_taken,omitempty" db:"action_taken"`
	Timestamp        time.Time     `json:"timestamp" db:"timestamp"`
	PoolID           *uuid.UUID    `json:"pool_id,omitempty" db:"pool_id"`
	State            FollowUpState `json:"state" db:"state"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// CommentText returns the comment or an empty string.
func (c *Communication) CommentText() string {
	if c.Comment == nil {
		return ""
	}
	return *c.Comment
}

// ActionTakenText returns the action taken or an empty string.
func (c *Communication) ActionTakenText() string {
	if c.ActionTaken == nil {
		return ""
	}
	return *c.ActionTaken
}

// CommunicationFilter bounds a query on Timestamp. From is inclusive, To is
// exclusive; a nil bound is open.
type CommunicationFilter struct {
	From *time.Time
	To   *time.Time
}

// Matches reports whether t falls inside the filter.
func (f CommunicationFilter) Matches(t time.Time) bool {
	if f.From != nil && t.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.Before(*f.To) {
		return false
	}
	return true
}
