package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used in payloads and exports.
const DateLayout = "2006-01-02"

// PerformanceRating is the per-exercise outcome of a flight.
type PerformanceRating string

const (
	PerformanceWell             PerformanceRating = "performed_well"
	PerformanceNeedsImprovement PerformanceRating = "needs_improvement"
	PerformanceBadly            PerformanceRating = "performed_badly"
	PerformanceNotPerformed     PerformanceRating = "not_performed"
)

// Valid reports whether the rating is known.
func (p PerformanceRating) Valid() bool {
	switch p {
	case PerformanceWell, PerformanceNeedsImprovement, PerformanceBadly, PerformanceNotPerformed:
		return true
	}
	return false
}

// Performed is true for every rating except not_performed.
func (p PerformanceRating) Performed() bool {
	return p != "" && p != PerformanceNotPerformed
}

// TrainingRecord is a single training flight.
type TrainingRecord struct {
	ID                 string     `db:"id" json:"id"`
	StudentID          string     `db:"student_id" json:"student_id"`
	InstructorID       *string    `db:"instructor_id" json:"instructor_id,omitempty"`
	TrainingTopicID    string     `db:"training_topic_id" json:"training_topic_id"`
	GliderID           string     `db:"glider_id" json:"glider_id"`
	IsSolo             bool       `db:"is_solo" json:"is_solo"`
	Date               time.Time  `db:"date" json:"date"`
	Field              string     `db:"field" json:"field"`
	FlightDuration     int        `db:"flight_duration" json:"flight_duration"`
	StudentComments    string     `db:"student_comments" json:"student_comments"`
	InstructorComments string     `db:"instructor_comments" json:"instructor_comments"`
	InternalComments   string     `db:"internal_comments" json:"internal_comments,omitempty"`
	TowHeight          *int       `db:"tow_height" json:"tow_height,omitempty"`
	SignedOff          bool       `db:"signed_off" json:"signed_off"`
	SignOffTimestamp   *time.Time `db:"sign_off_timestamp" json:"sign_off_timestamp,omitempty"`
	SignatureHash      string     `db:"signature_hash" json:"signature_hash,omitempty"`
	CreatedBy          *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// IsInstructedBy reports whether userID is the record's assigned instructor.
func (r TrainingRecord) IsInstructedBy(userID string) bool {
	return r.InstructorID != nil && *r.InstructorID == userID
}

// ModificationDeadline is the end of the instructor grace window, if signed.
func (r TrainingRecord) ModificationDeadline(graceDays int) *time.Time {
	if !r.SignedOff || r.SignOffTimestamp == nil {
		return nil
	}
	deadline := r.SignOffTimestamp.Add(time.Duration(graceDays) * 24 * time.Hour)
	return &deadline
}

// IsModifiableByInstructor is true while unsigned or inside the grace window.
func (r TrainingRecord) IsModifiableByInstructor(now time.Time, graceDays int) bool {
	deadline := r.ModificationDeadline(graceDays)
	if deadline == nil {
		return !r.SignedOff
	}
	return now.Before(*deadline)
}

// DaysUntilModificationDeadline returns whole days left, or nil when unsigned.
func (r TrainingRecord) DaysUntilModificationDeadline(now time.Time, graceDays int) *int {
	deadline := r.ModificationDeadline(graceDays)
	if deadline == nil {
		return nil
	}
	days := int(deadline.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}

// DaysSinceSignOff returns whole days elapsed since sign-off.
func (r TrainingRecord) DaysSinceSignOff(now time.Time) int {
	if r.SignOffTimestamp == nil {
		return 0
	}
	return int(now.Sub(*r.SignOffTimestamp).Hours() / 24)
}

// ComputeSignature hashes the key fields of the record together with ts.
// ts is rounded to microseconds, the precision Postgres keeps.
func (r TrainingRecord) ComputeSignature(ts time.Time) string {
	instructor := ""
	if r.InstructorID != nil {
		instructor = *r.InstructorID
	}
	payload := strings.Join([]string{
		r.ID,
		r.StudentID,
		instructor,
		r.TrainingTopicID,
		r.GliderID,
		r.Date.Format(DateLayout),
		fmt.Sprintf("%d", r.FlightDuration),
		ts.UTC().Round(time.Microsecond).Format(time.RFC3339Nano),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// TrainingRecordView is a record joined with the display fields of its relations.
type TrainingRecordView struct {
	TrainingRecord
	StudentUsername string `db:"student_username" json:"student_username"`
	StudentName     string `db:"student_name" json:"student_name"`
	StudentEmail    string `db:"student_email" json:"-"`
	InstructorName  string `db:"instructor_name" json:"instructor_name,omitempty"`
	TopicName       string `db:"topic_name" json:"topic_name"`
	GliderTail      string `db:"glider_tail_number" json:"glider_tail_number"`
	GliderModel     string `db:"glider_model" json:"glider_model"`
}

// ExercisePerformance rates one exercise on one flight.
type ExercisePerformance struct {
	ID               string            `db:"id" json:"id"`
	TrainingRecordID string            `db:"training_record_id" json:"training_record_id"`
	ExerciseID       string            `db:"exercise_id" json:"exercise_id"`
	Performance      PerformanceRating `db:"performance" json:"performance"`
	Notes            string            `db:"notes" json:"notes"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// ExercisePerformanceView adds exercise metadata for display and matrix building.
type ExercisePerformanceView struct {
	ExercisePerformance
	ExerciseName     string           `db:"exercise_name" json:"exercise_name"`
	ExerciseNumber   string           `db:"exercise_number" json:"exercise_number"`
	ExerciseCategory ExerciseCategory `db:"exercise_category" json:"exercise_category"`
}

// TrainingRecordFilter narrows record listings.
type TrainingRecordFilter struct {
	StudentID    string
	InstructorID string
	SignedOff    *bool
	IsSolo       *bool
	DateFrom     *time.Time
	DateTo       *time.Time
	Search       string
	Page         int
	PageSize     int
}

// TrainingRecordDetail is the full representation of a record.
type TrainingRecordDetail struct {
	TrainingRecordView
	FlightNumber                  int                       `json:"flight_number"`
	Performances                  []ExercisePerformanceView `json:"performances"`
	IsModifiableByInstructor      bool                      `json:"is_modifiable_by_instructor"`
	DaysUntilModificationDeadline *int                      `json:"days_until_modification_deadline,omitempty"`
}

// FormatDuration renders minutes as H:MM.
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}
