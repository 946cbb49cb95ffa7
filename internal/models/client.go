package models

import "time"

// ClientGroup is a holding or network that clients may belong to.
type ClientGroup struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Client is a company or trading point serviced by employees. Name is not unique.
type Client struct {
	ID           string        `db:"id" json:"id"`
	Name         string        `db:"name" json:"name"`
	Address      string        `db:"address" json:"address"`
	Phone        *string       `db:"phone" json:"phone,omitempty"`
	Email        *string       `db:"email" json:"email,omitempty"`
	TradingPoint string        `db:"trading_point" json:"trading_point"`
	EmployeeID   *string       `db:"employee_id" json:"employee_id,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
	Groups       []ClientGroup `db:"-" json:"groups,omitempty"`
}

// ClientFilter constrains client listing.
type ClientFilter struct {
	Search     string
	EmployeeID string
	GroupID    string
	Page       int
	PageSize   int
}
