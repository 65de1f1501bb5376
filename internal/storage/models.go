package storage

import "time"

// Mapping binds a short code to a destination URL on behalf of one owner.
type Mapping struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Destination string    `json:"destination"`
	OwnerID     string    `json:"owner_id"`
	Custom      bool      `json:"custom"`
	CreatedAt   time.Time `json:"created_at"`
}

// MappingUpdate holds the values a mapping should have after an update.
type MappingUpdate struct {
	Destination string
	Code        string
	Custom      bool
}

// ClickEvent is one resolved redirect. Events are append-only.
type ClickEvent struct {
	ID               string    `json:"id"`
	MappingID        string    `json:"mapping_id"`
	OccurredAt       time.Time `json:"occurred_at"`
	SourceAddress    string    `json:"source_address"`
	Region           string    `json:"region"`
	ClientDescriptor string    `json:"client_descriptor"`
}

// UnknownRegion is stored when the region of a click could not be derived.
const UnknownRegion = "Unknown"

// ClickFilter narrows click queries. Empty fields match everything.
type ClickFilter struct {
	OwnerID   string
	MappingID string
}
