package dto

// CreateUserRequest is the admin payload for registering a member. Social
// login never creates users, so this and clubctl are the only entry points.
type CreateUserRequest struct {
	Username                string `json:"username" validate:"required,min=3,max=150"`
	Email                   string `json:"email" validate:"omitempty,email,max=254"`
	FirstName               string `json:"first_name" validate:"max=150"`
	LastName                string `json:"last_name" validate:"max=150"`
	Password                string `json:"password" validate:"required,min=8"`
	UserType                string `json:"user_type" validate:"required,oneof=student instructor admin"`
	StudentLicenseNumber    string `json:"student_license_number" validate:"max=50"`
	InstructorLicenseNumber string `json:"instructor_license_number" validate:"max=50"`
	PasswordChangeRequired  *bool  `json:"password_change_required"`
}

// UpdateUserRequest lets admins change a member's role or deactivate them.
type UpdateUserRequest struct {
	UserType *string `json:"user_type" validate:"omitempty,oneof=student instructor admin"`
	Active   *bool   `json:"is_active"`
}

// UserListQuery is bound from the query string of user listings.
type UserListQuery struct {
	UserType  string `form:"user_type" validate:"omitempty,oneof=student instructor admin"`
	Search    string `form:"q"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}
