package dto

// ClientFilter captures client lookup query parameters.
type ClientFilter struct {
	Search     string `form:"search"`
	EmployeeID string `form:"employee_id"`
	GroupID    string `form:"group_id"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// ConfirmImportRequest commits a previewed import.
type ConfirmImportRequest struct {
	Token string `json:"token" validate:"required"`
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
