package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/metrics"
	"github.com/atinyakov/shortlinks/internal/storage"
)

// Visit describes who followed a short link.
type Visit struct {
	SourceAddress    string
	ClientDescriptor string
}

// URLResolver turns codes into destinations and reports each hit to the
// click recorder.
type URLResolver struct {
	storage Storage
	clicks  ClickRecorder
	logger  *zap.Logger
}

func NewURLResolver(s Storage, clicks ClickRecorder, logger *zap.Logger) *URLResolver {
	return &URLResolver{
		storage: s,
		clicks:  clicks,
		logger:  logger,
	}
}

// Resolve does a single store lookup. Region enrichment and persistence of
// the click happen later, off this path.
func (u *URLResolver) Resolve(ctx context.Context, code string, visit Visit) (string, error) {
	m, err := u.storage.Lookup(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.RecordRedirect(false)
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", code, err)
	}

	metrics.RecordRedirect(true)

	if u.clicks != nil {
		u.clicks.Record(storage.ClickEvent{
			ID:               uuid.NewString(),
			MappingID:        m.ID,
			OccurredAt:       time.Now().UTC(),
			SourceAddress:    visit.SourceAddress,
			ClientDescriptor: visit.ClientDescriptor,
		})
	}

	return m.Destination, nil
}
