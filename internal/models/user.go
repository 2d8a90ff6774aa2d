package models

import (
	"strings"
	"time"
)

// UserType is both the club role of a member and the RBAC role.
type UserType string

const (
	UserTypeStudent    UserType = "student"
	UserTypeInstructor UserType = "instructor"
	UserTypeAdmin      UserType = "admin"
)

// Valid reports whether the user type is one of the known roles.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeStudent, UserTypeInstructor, UserTypeAdmin:
		return true
	}
	return false
}

// LicenseWarningDays is the look-ahead used to flag expiring licences.
const LicenseWarningDays = 30

const (
	LicenseStatusExpired  = "expired"
	LicenseStatusExpiring = "expiring"
)

// User represents a club member stored in the users table.
type User struct {
	ID                      string     `db:"id" json:"id"`
	Username                string     `db:"username" json:"username"`
	Email                   string     `db:"email" json:"email"`
	FirstName               string     `db:"first_name" json:"first_name"`
	LastName                string     `db:"last_name" json:"last_name"`
	PasswordHash            string     `db:"password_hash" json:"-"`
	UserType                UserType   `db:"user_type" json:"user_type"`
	Active                  bool       `db:"is_active" json:"is_active"`
	StudentLicenseNumber    string     `db:"student_license_number" json:"student_license_number,omitempty"`
	StudentLicensePhoto     string     `db:"student_license_photo" json:"-"`
	StudentMedicalIDPhoto   string     `db:"student_medical_id_photo" json:"-"`
	InstructorLicenseNumber string     `db:"instructor_license_number" json:"instructor_license_number,omitempty"`
	LicenseExpirationDate   *time.Time `db:"license_expiration_date" json:"license_expiration_date,omitempty"`
	PasswordChangeRequired  bool       `db:"password_change_required" json:"password_change_required"`
	LastLogin               *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName falls back to the username when no name was recorded.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func (u User) IsStudent() bool    { return u.UserType == UserTypeStudent }
func (u User) IsInstructor() bool { return u.UserType == UserTypeInstructor }
func (u User) IsAdmin() bool      { return u.UserType == UserTypeAdmin }

// LicenseStatus returns "expired", "expiring" or "" relative to now.
func (u User) LicenseStatus(now time.Time) string {
	if u.LicenseExpirationDate == nil {
		return ""
	}
	exp := truncateDay(*u.LicenseExpirationDate)
	today := truncateDay(now)
	if exp.Before(today) {
		return LicenseStatusExpired
	}
	if !exp.After(today.AddDate(0, 0, LicenseWarningDays)) {
		return LicenseStatusExpiring
	}
	return ""
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	UserType  *UserType
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserSummary is the compact user shape embedded in other payloads.
type UserSummary struct {
	ID       string `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	FullName string `db:"full_name" json:"full_name"`
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
