package service

import (
	"context"

	"github.com/atinyakov/shortlinks/internal/storage"
)

//go:generate mockgen -destination=../../mocks/mock_service.go -package=mocks github.com/atinyakov/shortlinks/internal/app/service URLServiceIface,AuthIface

// Storage is the mapping store. InsertIfAbsent and Update are the only
// coordination points between concurrent writers.
type Storage interface {
	InsertIfAbsent(ctx context.Context, m storage.Mapping) (*storage.Mapping, error)
	Lookup(ctx context.Context, code string) (*storage.Mapping, error)
	Update(ctx context.Context, code string, upd storage.MappingUpdate, callerID string) (*storage.Mapping, error)
	Delete(ctx context.Context, code string, callerID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]storage.Mapping, error)
	ListAll(ctx context.Context) ([]storage.Mapping, error)
	DeleteOwner(ctx context.Context, ownerID string) (int, error)

	AppendClicks(ctx context.Context, events []storage.ClickEvent) error
	ClicksByMapping(ctx context.Context, f storage.ClickFilter) (map[string]int64, error)
	ClicksByRegion(ctx context.Context, f storage.ClickFilter) (map[string]int64, error)
	ListClicks(ctx context.Context, f storage.ClickFilter) ([]storage.ClickEvent, error)

	PingContext(ctx context.Context) error
	Close() error
}

// ClickRecorder accepts click events without blocking the caller.
type ClickRecorder interface {
	Record(e storage.ClickEvent)
}

// URLServiceIface is what the HTTP and gRPC transports call.
type URLServiceIface interface {
	Shorten(ctx context.Context, destination, ownerID, customCode string) (*storage.Mapping, error)
	Resolve(ctx context.Context, code string, visit Visit) (string, error)
	ListByOwner(ctx context.Context, ownerID string) ([]storage.Mapping, error)
	UpdateMapping(ctx context.Context, code string, req UpdateRequest, callerID string) (*UpdateResult, error)
	DeleteMapping(ctx context.Context, code, callerID string) error
	MappingStats(ctx context.Context, code, callerID string) (*Stats, error)
	ClickLog(ctx context.Context, ownerID string) ([]ClickLogEntry, error)
	Dashboard(ctx context.Context, ownerID string) (*Dashboard, error)
	AdminOverview(ctx context.Context) ([]OverviewEntry, error)
	DeleteOwner(ctx context.Context, ownerID string) (int, error)
	ShortURL(code string) string
	PingContext(ctx context.Context) error
}
