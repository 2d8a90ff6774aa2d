package models

import "time"

// GroundBriefing tracks a student's progress on one briefing topic.
type GroundBriefing struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	TopicID      string     `db:"topic_id" json:"topic_id"`
	InstructorID *string    `db:"instructor_id" json:"instructor_id,omitempty"`
	Date         time.Time  `db:"date" json:"date"`
	Notes        string     `db:"notes" json:"notes"`
	SignedOff    bool       `db:"signed_off" json:"signed_off"`
	SignOffDate  *time.Time `db:"sign_off_date" json:"sign_off_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// GroundBriefingView joins topic and people names.
type GroundBriefingView struct {
	GroundBriefing
	TopicNumber    int    `db:"topic_number" json:"topic_number"`
	TopicName      string `db:"topic_name" json:"topic_name"`
	StudentName    string `db:"student_name" json:"student_name"`
	InstructorName string `db:"instructor_name" json:"instructor_name,omitempty"`
}

// Briefing status values shown per topic.
const (
	BriefingStatusCompleted  = "completed"
	BriefingStatusRequested  = "requested"
	BriefingStatusNotStarted = "not_started"
)

// BriefingTopicStatus is one line of a student's ground-school overview.
type BriefingTopicStatus struct {
	Topic    GroundBriefingTopic `json:"topic"`
	Status   string              `json:"status"`
	Briefing *GroundBriefingView `json:"briefing,omitempty"`
}

// BriefingOverview aggregates a student's ground-school progress.
type BriefingOverview struct {
	StudentID  string                `json:"student_id"`
	Topics     []BriefingTopicStatus `json:"topics"`
	Total      int                   `json:"total"`
	Completed  int                   `json:"completed"`
	Requested  int                   `json:"requested"`
	NotStarted int                   `json:"not_started"`
}
