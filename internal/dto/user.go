package dto

import "github.com/noah-isme/fieldops-api/internal/models"

// CreateUserRequest creates an employee or moderator account. FullName is what client rosters refer to.
type CreateUserRequest struct {
	Username string          `json:"username" validate:"required,min=3,max=150"`
	Email    string          `json:"email" validate:"omitempty,email"`
	FullName string          `json:"full_name" validate:"required,max=255"`
	Role     models.UserRole `json:"role" validate:"required,oneof=EMPLOYEE MODERATOR"`
	Password string          `json:"password" validate:"required,min=6"`
}

// UserListQuery is the query string of GET /users.
type UserListQuery struct {
	Role     string `form:"role"`
	Active   *bool  `form:"active"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
