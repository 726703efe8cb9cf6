package models

import "time"

type SyncReport struct {
	Provider       string    `json:"provider"`
	Accounts       int       `json:"accounts"`
	FailedAccounts int       `json:"failed_accounts"`
	PotsSynced     int       `json:"pots_synced"`
	PocketsDeleted int       `json:"pockets_deleted"`
	Inserted       int       `json:"inserted"`
	Skipped        int       `json:"skipped"`
	Failed         int       `json:"failed"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
