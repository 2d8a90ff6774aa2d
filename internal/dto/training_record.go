package dto

import "github.com/noah-isme/gliding-club-api/internal/models"

// PerformanceInput rates one exercise on a flight.
type PerformanceInput struct {
	ExerciseID  string                   `json:"exercise_id" validate:"required"`
	Performance models.PerformanceRating `json:"performance" validate:"required,oneof=performed_well needs_improvement performed_badly not_performed"`
	Notes       string                   `json:"notes" validate:"max=2000"`
}

// CreateTrainingRecordRequest is the payload for logging a flight.
type CreateTrainingRecordRequest struct {
	StudentID          string             `json:"student_id"`
	InstructorID       *string            `json:"instructor_id"`
	TrainingTopicID    string             `json:"training_topic_id" validate:"required"`
	GliderID           string             `json:"glider_id" validate:"required"`
	IsSolo             bool               `json:"is_solo"`
	Date               string             `json:"date" validate:"required"`
	Field              string             `json:"field" validate:"max=200"`
	FlightDuration     int                `json:"flight_duration" validate:"required,min=1"`
	StudentComments    string             `json:"student_comments" validate:"max=5000"`
	InstructorComments string             `json:"instructor_comments" validate:"max=5000"`
	InternalComments   string             `json:"internal_comments" validate:"max=5000"`
	TowHeight          *int               `json:"tow_height" validate:"omitempty,min=0,max=20000"`
	Performances       []PerformanceInput `json:"performances" validate:"dive"`
}

// UpdateTrainingRecordRequest changes only the fields that are present.
type UpdateTrainingRecordRequest struct {
	InstructorID       *string            `json:"instructor_id"`
	TrainingTopicID    *string            `json:"training_topic_id"`
	GliderID           *string            `json:"glider_id"`
	IsSolo             *bool              `json:"is_solo"`
	Date               *string            `json:"date"`
	Field              *string            `json:"field" validate:"omitempty,max=200"`
	FlightDuration     *int               `json:"flight_duration" validate:"omitempty,min=1"`
	StudentComments    *string            `json:"student_comments" validate:"omitempty,max=5000"`
	InstructorComments *string            `json:"instructor_comments" validate:"omitempty,max=5000"`
	InternalComments   *string            `json:"internal_comments" validate:"omitempty,max=5000"`
	TowHeight          *int               `json:"tow_height" validate:"omitempty,min=0,max=20000"`
	Performances       []PerformanceInput `json:"performances" validate:"dive"`
}

// SignOffFormRequest lets the assigned instructor correct a record and sign
// it in one step. Duration is HH:MM.
type SignOffFormRequest struct {
	Date               string             `json:"date" validate:"required"`
	GliderID           string             `json:"glider_id" validate:"required"`
	TrainingTopicID    string             `json:"training_topic_id" validate:"required"`
	Field              string             `json:"field" validate:"max=200"`
	TowHeight          *int               `json:"tow_height" validate:"omitempty,min=0,max=20000"`
	Duration           string             `json:"duration" validate:"required"`
	StudentComments    string             `json:"student_comments" validate:"max=5000"`
	InstructorComments string             `json:"instructor_comments" validate:"max=5000"`
	InternalComments   string             `json:"internal_comments" validate:"max=5000"`
	Performances       []PerformanceInput `json:"performances" validate:"dive"`
}

// TrainingRecordQuery carries list filters from the query string.
type TrainingRecordQuery struct {
	Q            string `form:"q"`
	StudentID    string `form:"student_id"`
	InstructorID string `form:"instructor_id"`
	SignedOff    *bool  `form:"signed_off"`
	IsSolo       *bool  `form:"is_solo"`
	DateFrom     string `form:"date_from"`
	DateTo       string `form:"date_to"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

// RequestBriefingsRequest asks for ground briefings on the given topics.
type RequestBriefingsRequest struct {
	TopicIDs []string `json:"topic_ids" validate:"required,min=1,dive,required"`
	Date     string   `json:"date"`
}

// SignOffBriefingRequest signs a ground briefing.
type SignOffBriefingRequest struct {
	Notes string `json:"notes" validate:"max=5000"`
}

// FlightHistoryQuery filters the instructor flight history.
type FlightHistoryQuery struct {
	StudentID string `form:"student_id"`
	DateFrom  string `form:"date_from"`
	DateTo    string `form:"date_to"`
	Page      int    `form:"page"`
}
