package models

import (
	"time"

	"cloud.google.com/go/civil"
)

type OverrideKind string

const (
	OverrideOvertime OverrideKind = "overtime"
	OverrideAbsence  OverrideKind = "absence"
	OverrideHoliday  OverrideKind = "holiday"
)

type OverrideStatus string

const (
	OverridePending  OverrideStatus = "pending"
	OverrideApproved OverrideStatus = "approved"
)

// RotaOverride is unique per (date, profile).
type RotaOverride struct {
	ID        string         `json:"id"`
	Date      civil.Date     `json:"date"`
	Kind      OverrideKind   `json:"type"`
	Status    OverrideStatus `json:"status"`
	Profile   Profile        `json:"profile"`
	CreatedAt time.Time      `json:"created_at"`
}
