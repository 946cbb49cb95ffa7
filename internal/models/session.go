package models

import "time"

// RefreshToken is one login session. Only the SHA-256 digest of the token handed to the client is stored.
// Rotation revokes the row and points ReplacedBy at its successor.
type RefreshToken struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	TokenDigest string     `db:"token_digest" json:"-"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	RevokedAt   *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ReplacedBy  *string    `db:"replaced_by" json:"replaced_by,omitempty"`
	IPAddress   string     `db:"ip_address" json:"ip_address"`
	UserAgent   string     `db:"user_agent" json:"user_agent"`
}

func (t *RefreshToken) Revoked() bool {
	return t != nil && t.RevokedAt != nil
}

// Usable reports whether the token may still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t != nil && !t.Revoked() && now.Before(t.ExpiresAt)
}
