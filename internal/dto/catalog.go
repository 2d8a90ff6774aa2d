package dto

// GliderRequest is the admin payload for a glider. Tail number is the key.
type GliderRequest struct {
	TailNumber   string `json:"tail_number" validate:"required,max=20"`
	Model        string `json:"model" validate:"required,max=100"`
	Manufacturer string `json:"manufacturer" validate:"max=100"`
	Year         *int   `json:"year" validate:"omitempty,min=1900,max=2100"`
	Active       *bool  `json:"is_active"`
}

// TrainingTopicRequest is the admin payload for a training topic.
type TrainingTopicRequest struct {
	Name                     string `json:"name" validate:"required,max=200"`
	Description              string `json:"description"`
	Category                 string `json:"category" validate:"max=100"`
	RequiredForCertification bool   `json:"required_for_certification"`
}

// ExerciseRequest is the admin payload for a syllabus exercise.
type ExerciseRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	Category    string `json:"category" validate:"required,oneof=pre_solo post_solo"`
	Number      string `json:"number" validate:"required,max=10"`
	Required    bool   `json:"is_required"`
}

// BriefingTopicRequest is one ground briefing syllabus entry.
type BriefingTopicRequest struct {
	Number  int    `json:"number" validate:"required,min=1"`
	Name    string `json:"name" validate:"required,max=200"`
	Details string `json:"details"`
}

// CatalogImport is the file format read by clubctl import-initial-data.
type CatalogImport struct {
	Gliders   []GliderRequest        `json:"gliders" validate:"dive"`
	Topics    []TrainingTopicRequest `json:"training_topics" validate:"dive"`
	Exercises []ExerciseRequest      `json:"exercises" validate:"dive"`
}

// BriefingTopicImport is the file format read by clubctl import-ground-briefings.
type BriefingTopicImport struct {
	Topics []BriefingTopicRequest `json:"topics" validate:"dive"`
}
