package models

import "time"

// PlaidItem is a linked Plaid login. Every account under it is attributed to
// Profile, since Plaid has no business/personal account type.
type PlaidItem struct {
	ID            int64     `json:"id"`
	ItemID        string    `json:"item_id"`
	AccessToken   string    `json:"-"`
	InstitutionID string    `json:"institution_id"`
	Profile       Profile   `json:"profile"`
	CreatedAt     time.Time `json:"created_at"`
}
