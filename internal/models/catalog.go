package models

import "time"

// Glider is an aircraft of the club fleet.
type Glider struct {
	ID           string    `db:"id" json:"id"`
	TailNumber   string    `db:"tail_number" json:"tail_number"`
	Model        string    `db:"model" json:"model"`
	Manufacturer string    `db:"manufacturer" json:"manufacturer"`
	Year         *int      `db:"year" json:"year,omitempty"`
	Active       bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Label renders the glider as "tail (model)".
func (g Glider) Label() string {
	return GliderLabel(g.TailNumber, g.Model)
}

// GliderLabel formats a tail number and model the way exports show them.
func GliderLabel(tail, model string) string {
	if model == "" {
		return tail
	}
	return tail + " (" + model + ")"
}

// TrainingTopic is the headline subject of a training flight.
type TrainingTopic struct {
	ID                       string    `db:"id" json:"id"`
	Name                     string    `db:"name" json:"name"`
	Description              string    `db:"description" json:"description"`
	Category                 string    `db:"category" json:"category"`
	RequiredForCertification bool      `db:"required_for_certification" json:"required_for_certification"`
	CreatedAt                time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time `db:"updated_at" json:"updated_at"`
}

// ExerciseCategory splits the syllabus around the first solo.
type ExerciseCategory string

const (
	ExerciseCategoryPreSolo  ExerciseCategory = "pre_solo"
	ExerciseCategoryPostSolo ExerciseCategory = "post_solo"
)

// Exercise is a syllabus item rated per flight.
type Exercise struct {
	ID          string           `db:"id" json:"id"`
	Name        string           `db:"name" json:"name"`
	Description string           `db:"description" json:"description"`
	Category    ExerciseCategory `db:"category" json:"category"`
	Number      string           `db:"number" json:"number"`
	Required    bool             `db:"is_required" json:"is_required"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// GroundBriefingTopic is one entry of the fixed ground-school syllabus.
type GroundBriefingTopic struct {
	ID        string    `db:"id" json:"id"`
	Number    int       `db:"number" json:"number"`
	Name      string    `db:"name" json:"name"`
	Details   string    `db:"details" json:"details"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
