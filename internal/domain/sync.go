package domain

import "time"

// Source ids used for sync_state rows.
const (
	SyncSourceListings = "asari_listings"
	SyncSourceAgents   = "asari_agents"
)

// ListingSyncReport holds the outcome of one listing reconciliation run.
type ListingSyncReport struct {
	RunID         string        `json:"runId"`
	Fetched       int           `json:"fetched"`
	Created       int           `json:"created"`
	Updated       int           `json:"updated"`
	Skipped       int           `json:"skipped"`
	Archived      int           `json:"archived"`
	Errors        int           `json:"errors"`
	UnknownStatus int           `json:"unknownStatus"`
	Published     int           `json:"published"`
	DistrictTable int           `json:"districtTable"`
	Duration      time.Duration `json:"duration"`
}

// AgentSyncReport holds the outcome of one agent roster run.
type AgentSyncReport struct {
	RunID       string        `json:"runId"`
	Fetched     int           `json:"fetched"`
	Created     int           `json:"created"`
	Updated     int           `json:"updated"`
	Deactivated int           `json:"deactivated"`
	Errors      int           `json:"errors"`
	Duration    time.Duration `json:"duration"`
}

// SyncReport aggregates a combined run.
type SyncReport struct {
	Purged   int64              `json:"purged,omitempty"`
	Agents   *AgentSyncReport   `json:"agents,omitempty"`
	Listings *ListingSyncReport `json:"listings,omitempty"`
}

type SyncState struct {
	ID             int64     `db:"id"`
	SourceID       string    `db:"source_id"`
	LastSyncedAt   time.Time `db:"last_synced_at"`
	LastExternalID int64     `db:"last_external_id"`
	TotalSynced    int64     `db:"total_synced"`
}
