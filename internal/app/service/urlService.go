package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/storage"
)

const (
	StatusUpdated   = "updated"
	StatusNoChanges = "no_changes"
)

// UpdateRequest carries the caller's edit. Blank fields keep the current value.
type UpdateRequest struct {
	Destination string
	CustomCode  string
}

type UpdateResult struct {
	Status  string
	Mapping *storage.Mapping
}

type Stats struct {
	Mapping  *storage.Mapping
	Clicks   int64
	ByRegion map[string]int64
}

type MappingClicks struct {
	Mapping storage.Mapping
	Clicks  int64
}

type Dashboard struct {
	TotalClicks int64
	Mappings    []MappingClicks
	ByRegion    map[string]int64
}

// OverviewEntry is one row of the admin listing. The creator is Mapping.OwnerID.
type OverviewEntry = MappingClicks

type ClickLogEntry struct {
	Code string
	storage.ClickEvent
}

type URLService struct {
	storage   Storage
	allocator *Allocator
	resolver  *URLResolver
	logger    *zap.Logger
	baseURL   string
}

func NewURL(s Storage, allocator *Allocator, resolver *URLResolver, logger *zap.Logger, baseURL string) *URLService {
	return &URLService{
		storage:   s,
		allocator: allocator,
		resolver:  resolver,
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

func (s *URLService) PingContext(ctx context.Context) error {
	return s.storage.PingContext(ctx)
}

func (s *URLService) ShortURL(code string) string {
	return s.baseURL + "/" + code
}

func (s *URLService) Shorten(ctx context.Context, destination, ownerID, customCode string) (*storage.Mapping, error) {
	m, err := s.allocator.Allocate(ctx, destination, ownerID, customCode)
	if err != nil {
		return nil, err
	}

	s.logger.Info("mapping created",
		zap.String("code", m.Code),
		zap.String("owner", ownerID),
		zap.Bool("custom", m.Custom),
	)
	return m, nil
}

func (s *URLService) Resolve(ctx context.Context, code string, visit Visit) (string, error) {
	return s.resolver.Resolve(ctx, code, visit)
}

func (s *URLService) ListByOwner(ctx context.Context, ownerID string) ([]storage.Mapping, error) {
	return s.storage.ListByOwner(ctx, ownerID)
}

// owned loads a mapping and checks that callerID owns it.
func (s *URLService) owned(ctx context.Context, code, callerID string) (*storage.Mapping, error) {
	m, err := s.storage.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != callerID {
		return nil, storage.ErrForbidden
	}
	return m, nil
}

// UpdateMapping edits destination and code of an owned mapping. An edit that
// changes nothing touches no storage write path.
func (s *URLService) UpdateMapping(ctx context.Context, code string, req UpdateRequest, callerID string) (*UpdateResult, error) {
	current, err := s.owned(ctx, code, callerID)
	if err != nil {
		return nil, err
	}

	upd := storage.MappingUpdate{
		Destination: strings.TrimSpace(req.Destination),
		Code:        strings.TrimSpace(req.CustomCode),
		Custom:      current.Custom,
	}
	if upd.Destination == "" {
		upd.Destination = current.Destination
	}
	if upd.Code == "" {
		upd.Code = current.Code
	}

	if upd.Code == current.Code && upd.Destination == current.Destination {
		return &UpdateResult{Status: StatusNoChanges, Mapping: current}, nil
	}

	if upd.Code != current.Code {
		if IsBlacklisted(upd.Code) {
			return nil, ErrCustomCodeBlacklisted
		}
		upd.Custom = true
	}

	updated, err := s.storage.Update(ctx, code, upd, callerID)
	if errors.Is(err, storage.ErrCodeTaken) {
		return nil, ErrCustomCodeTaken
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("mapping updated",
		zap.String("from", code),
		zap.String("to", updated.Code),
		zap.String("owner", callerID),
	)
	return &UpdateResult{Status: StatusUpdated, Mapping: updated}, nil
}

func (s *URLService) DeleteMapping(ctx context.Context, code, callerID string) error {
	if err := s.storage.Delete(ctx, code, callerID); err != nil {
		return err
	}

	s.logger.Info("mapping deleted", zap.String("code", code), zap.String("owner", callerID))
	return nil
}

func (s *URLService) MappingStats(ctx context.Context, code, callerID string) (*Stats, error) {
	m, err := s.owned(ctx, code, callerID)
	if err != nil {
		return nil, err
	}

	filter := storage.ClickFilter{MappingID: m.ID}

	counts, err := s.storage.ClicksByMapping(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count clicks: %w", err)
	}
	regions, err := s.storage.ClicksByRegion(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count regions: %w", err)
	}

	return &Stats{Mapping: m, Clicks: counts[m.ID], ByRegion: regions}, nil
}

func (s *URLService) ClickLog(ctx context.Context, ownerID string) ([]ClickLogEntry, error) {
	mappings, err := s.storage.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	codes := lo.SliceToMap(mappings, func(m storage.Mapping) (string, string) {
		return m.ID, m.Code
	})

	events, err := s.storage.ListClicks(ctx, storage.ClickFilter{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}

	return lo.Map(events, func(e storage.ClickEvent, _ int) ClickLogEntry {
		return ClickLogEntry{Code: codes[e.MappingID], ClickEvent: e}
	}), nil
}

func (s *URLService) Dashboard(ctx context.Context, ownerID string) (*Dashboard, error) {
	filter := storage.ClickFilter{OwnerID: ownerID}

	mappings, err := s.storage.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	counts, err := s.storage.ClicksByMapping(ctx, filter)
	if err != nil {
		return nil, err
	}
	regions, err := s.storage.ClicksByRegion(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows := withClicks(mappings, counts)
	return &Dashboard{
		TotalClicks: lo.SumBy(rows, func(r MappingClicks) int64 { return r.Clicks }),
		Mappings:    rows,
		ByRegion:    regions,
	}, nil
}

func (s *URLService) AdminOverview(ctx context.Context) ([]OverviewEntry, error) {
	mappings, err := s.storage.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.storage.ClicksByMapping(ctx, storage.ClickFilter{})
	if err != nil {
		return nil, err
	}

	return withClicks(mappings, counts), nil
}

func withClicks(mappings []storage.Mapping, counts map[string]int64) []MappingClicks {
	return lo.Map(mappings, func(m storage.Mapping, _ int) MappingClicks {
		return MappingClicks{Mapping: m, Clicks: counts[m.ID]}
	})
}

func (s *URLService) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	start := time.Now()

	deleted, err := s.storage.DeleteOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	s.logger.Info("owner removed",
		zap.String("owner", ownerID),
		zap.Int("mappings", deleted),
		zap.Duration("took", time.Since(start)),
	)
	return deleted, nil
}
