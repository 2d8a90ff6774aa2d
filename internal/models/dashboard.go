package models

import "time"

// StudentDashboard summarises a student's logbook.
type StudentDashboard struct {
	TotalFlights  int                  `json:"total_flights"`
	SoloFlights   int                  `json:"solo_flights"`
	SignedFlights int                  `json:"signed_flights"`
	Pending       int                  `json:"pending_flights"`
	TotalMinutes  int                  `json:"total_minutes"`
	TotalTime     string               `json:"total_time"`
	Recent        []TrainingRecordView `json:"recent_records"`
	LicenseStatus string               `json:"license_status,omitempty"`
}

// InstructorDashboard summarises an instructor's activity.
type InstructorDashboard struct {
	InstructionalFlights int                  `json:"instructional_flights"`
	SupervisedSolos      int                  `json:"supervised_solo_flights"`
	InstructionalMinutes int                  `json:"instructional_minutes"`
	InstructionalTime    string               `json:"instructional_time"`
	DistinctStudents     int                  `json:"distinct_students"`
	UnsignedRecords      []TrainingRecordView `json:"unsigned_records"`
	PendingBriefings     []GroundBriefingView `json:"pending_briefings"`
	RecentStudents       []UserSummary        `json:"recent_students"`
	LicenseStatus        string               `json:"license_status,omitempty"`
}

// RecordStats are aggregate counters over a set of training records.
type RecordStats struct {
	Total        int `db:"total"`
	Solo         int `db:"solo"`
	Signed       int `db:"signed"`
	TotalMinutes int `db:"total_minutes"`
}

// InstructorStats are aggregates over the flights an instructor took part in.
type InstructorStats struct {
	Instructional        int `db:"instructional"`
	SupervisedSolos      int `db:"supervised_solos"`
	InstructionalMinutes int `db:"instructional_minutes"`
	DistinctStudents     int `db:"distinct_students"`
}

// FlightHistoryFilter drives the instructor flight history view.
type FlightHistoryFilter struct {
	InstructorID string
	StudentID    string
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
}

// FlightHistoryEntry is one instructional flight in the instructor history.
type FlightHistoryEntry struct {
	RecordID             string    `db:"id" json:"id"`
	Date                 time.Time `db:"date" json:"date"`
	StudentID            string    `db:"student_id" json:"student_id"`
	StudentName          string    `db:"student_name" json:"student_name"`
	StudentLicenseNumber string    `db:"student_license_number" json:"student_license_number"`
	FlightDuration       int       `db:"flight_duration" json:"flight_duration"`
	GliderTail           string    `db:"glider_tail_number" json:"glider_tail_number"`
	GliderModel          string    `db:"glider_model" json:"glider_model"`
}

// HealthReport is returned by the health endpoint.
type HealthReport struct {
	Status   string                 `json:"status"`
	Database map[string]interface{} `json:"database"`
	Cache    string                 `json:"cache"`
	Email    map[string]interface{} `json:"email"`
	Auth     map[string]interface{} `json:"auth"`
	Security map[string]interface{} `json:"security"`
}
