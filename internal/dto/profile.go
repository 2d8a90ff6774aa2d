package dto

// UpdateProfileRequest carries editable profile fields. It is bound from JSON
// or from the multipart form that also carries the photo uploads.
type UpdateProfileRequest struct {
	Email                   *string `json:"email" form:"email" validate:"omitempty,email,max=254"`
	FirstName               *string `json:"first_name" form:"first_name" validate:"omitempty,max=150"`
	LastName                *string `json:"last_name" form:"last_name" validate:"omitempty,max=150"`
	StudentLicenseNumber    *string `json:"student_license_number" form:"student_license_number" validate:"omitempty,max=50"`
	InstructorLicenseNumber *string `json:"instructor_license_number" form:"instructor_license_number" validate:"omitempty,max=50"`
	LicenseExpirationDate   *string `json:"license_expiration_date" form:"license_expiration_date"`
}

// ProfileUpload is one uploaded file.
type ProfileUpload struct {
	Filename string
	Data     []byte
}

// ProfileUploads groups the optional photos sent with a profile update.
type ProfileUploads struct {
	LicensePhoto   *ProfileUpload
	MedicalIDPhoto *ProfileUpload
}
