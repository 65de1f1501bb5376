// Package models defines the request and response bodies of the HTTP API.
package models

import "time"

// Request represents a request to shorten a URL.
type Request struct {
	// URL is the destination to be shortened.
	URL string `json:"url"`
	// CustomCode is an optional code chosen by the caller.
	CustomCode string `json:"custom_code,omitempty"`
}

// Response represents the response containing the shortened URL.
type Response struct {
	Result string `json:"result"`
	Code   string `json:"code"`
}

// Mapping is a mapping as its owner sees it.
type Mapping struct {
	Code        string    `json:"code"`
	ShortURL    string    `json:"short_url"`
	OriginalURL string    `json:"original_url"`
	Custom      bool      `json:"custom"`
	CreatedAt   time.Time `json:"created_at"`
	Clicks      *int64    `json:"clicks,omitempty"`
}

// UpdateRequest edits a mapping. Empty fields keep the current value.
type UpdateRequest struct {
	URL        string `json:"url"`
	CustomCode string `json:"custom_code"`
}

type UpdateResponse struct {
	Status  string  `json:"status"`
	Mapping Mapping `json:"mapping"`
}

type StatsResponse struct {
	Mapping  Mapping          `json:"mapping"`
	Clicks   int64            `json:"clicks"`
	ByRegion map[string]int64 `json:"by_region"`
}

type DashboardResponse struct {
	TotalClicks int64            `json:"total_clicks"`
	PerMapping  []Mapping        `json:"per_mapping"`
	PerRegion   map[string]int64 `json:"per_region"`
}

// AdminMapping is one row of the admin overview.
type AdminMapping struct {
	Mapping
	CreatedBy string `json:"created_by"`
}

type ClickLogEntry struct {
	Code             string    `json:"code"`
	OccurredAt       time.Time `json:"occurred_at"`
	SourceAddress    string    `json:"source_address"`
	Region           string    `json:"region"`
	ClientDescriptor string    `json:"client_descriptor"`
}

type DeleteOwnerResponse struct {
	Owner   string `json:"owner"`
	Deleted int    `json:"deleted"`
}

// ErrorResponse is returned with every 4xx and 5xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
