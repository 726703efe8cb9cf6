package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Profile string

const (
	ProfilePersonal Profile = "personal"
	ProfileBusiness Profile = "business"
)

func (p Profile) Valid() bool {
	return p == ProfilePersonal || p == ProfileBusiness
}

type PocketKind string

const (
	PocketGeneral PocketKind = "general"
	PocketSavings PocketKind = "savings"
	PocketBuffer  PocketKind = "buffer"
)

// SystemRole marks the protected pockets every profile owns. At most one pocket
// per (profile, role) exists; the store enforces it with a unique index.
type SystemRole string

const (
	RoleGeneral     SystemRole = "general"
	RoleLiabilities SystemRole = "liabilities"
)

const (
	GeneralPocketName     = "General"
	LiabilitiesPocketName = "Liabilities"
)

type Pocket struct {
	ID           string              `json:"id"`
	RemoteID     *string             `json:"remote_id"`
	Provider     *string             `json:"provider"`
	Name         string              `json:"name"`
	Profile      Profile             `json:"profile"`
	Kind         PocketKind          `json:"type"`
	SystemRole   *SystemRole         `json:"system_role,omitempty"`
	Balance      decimal.Decimal     `json:"balance"`
	TargetAmount decimal.NullDecimal `json:"target_amount"`
	TargetBudget decimal.NullDecimal `json:"target_budget"`
	LastSyncedAt *time.Time          `json:"last_synced_at"`
	CreatedAt    time.Time           `json:"created_at"`
}

func (p Pocket) IsProtected() bool {
	return p.SystemRole != nil
}

func (p Pocket) IsRemoteLinked() bool {
	return p.RemoteID != nil && *p.RemoteID != ""
}

func (p Pocket) HasRole(role SystemRole) bool {
	return p.SystemRole != nil && *p.SystemRole == role
}
