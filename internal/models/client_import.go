package models

// ImportColumn names a recognised import column.
type ImportColumn string

const (
	ColumnName         ImportColumn = "full_name"
	ColumnPhone        ImportColumn = "phone"
	ColumnEmail        ImportColumn = "email"
	ColumnGroup        ImportColumn = "group"
	ColumnEmployee     ImportColumn = "employee"
	ColumnTradingPoint ImportColumn = "trading_point"
	ColumnAddress      ImportColumn = "address"
)

// ClientImportRow is one normalised spreadsheet row.
type ClientImportRow struct {
	Line         int      `json:"line"`
	Name         string   `json:"name"`
	Phone        *string  `json:"phone,omitempty"`
	Email        *string  `json:"email,omitempty"`
	GroupName    string   `json:"group,omitempty"`
	EmployeeName string   `json:"employee,omitempty"`
	TradingPoint string   `json:"trading_point,omitempty"`
	Address      string   `json:"address,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	// Exists is set during preview when a client with the same name is already stored.
	Exists bool `json:"exists"`
}

// ImportRowIssue reports a problem attached to a spreadsheet line.
type ImportRowIssue struct {
	Line    int    `json:"line"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// ClientImportPreview is returned by the preview phase; nothing is persisted.
type ClientImportPreview struct {
	Token     string            `json:"token"`
	ExpiresAt string            `json:"expires_at"`
	Columns   []ImportColumn    `json:"columns"`
	Rows      []ClientImportRow `json:"rows"`
	Skipped   int               `json:"skipped"`
	ToCreate  int               `json:"to_create"`
	ToUpdate  int               `json:"to_update"`
	Warnings  []ImportRowIssue  `json:"warnings,omitempty"`
}

// ClientImportResult is returned by the commit phase.
type ClientImportResult struct {
	Created  int              `json:"created"`
	Updated  int              `json:"updated"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowIssue `json:"errors,omitempty"`
	Warnings []ImportRowIssue `json:"warnings,omitempty"`
}
