package models

import "time"

// Audit actions stored on each row.
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
)

// Audited table names.
const (
	TableTrainingRecords      = "training_records"
	TableExercisePerformances = "exercise_performances"
	TableGroundBriefings      = "ground_briefings"
	TableUsers                = "users"
	TableGliders              = "gliders"
	TableTrainingTopics       = "training_topics"
	TableExercises            = "exercises"
	TableGroundBriefingTopics = "ground_briefing_topics"
)

// AuditLog represents an append-only audit trail row.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	TableName string    `db:"table_name" json:"table_name"`
	RecordID  string    `db:"record_id" json:"record_id"`
	OldValues JSONB     `db:"old_values" json:"old_values,omitempty"`
	NewValues JSONB     `db:"new_values" json:"new_values,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	TableName string `form:"table_name"`
	RecordID  string `form:"record_id"`
	UserID    string `form:"user_id"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}
