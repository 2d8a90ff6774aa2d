package models

import "time"

// NotificationTypeStudentRevision flags instructor comments a student should read.
const NotificationTypeStudentRevision = "student_revision_needed"

// PendingNotification deduplicates transactional emails.
type PendingNotification struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	NotificationType string     `db:"notification_type" json:"notification_type"`
	TrainingRecordID *string    `db:"training_record_id" json:"training_record_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	Sent             bool       `db:"is_sent" json:"is_sent"`
	SentAt           *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}

// DigestResult summarises one weekly digest run.
type DigestResult struct {
	SentCount        int `json:"sent_count"`
	ErrorCount       int `json:"error_count"`
	SkippedCount     int `json:"skipped_count"`
	TotalInstructors int `json:"total_instructors"`
}

// InstructorPending counts unsigned records assigned to an instructor.
type InstructorPending struct {
	InstructorID string `db:"instructor_id"`
	Username     string `db:"username"`
	Email        string `db:"email"`
	FirstName    string `db:"first_name"`
	LastName     string `db:"last_name"`
	Unsigned     int    `db:"unsigned_count"`
}
