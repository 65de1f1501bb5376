package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/metrics"
	"github.com/atinyakov/shortlinks/internal/storage"
)

// DefaultMaxAttempts bounds the generate-and-insert loop.
const DefaultMaxAttempts = 10

// Allocator binds destinations to fresh or requested codes.
type Allocator struct {
	storage     Storage
	generator   CodeGenerator
	codeLength  int
	maxAttempts int
	logger      *zap.Logger
}

func NewAllocator(s Storage, g CodeGenerator, codeLength, maxAttempts int, logger *zap.Logger) *Allocator {
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Allocator{
		storage:     s,
		generator:   g,
		codeLength:  codeLength,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Allocate creates exactly one mapping. A blank customCode means "generate one".
// A custom code is trimmed before it is checked and stored.
func (a *Allocator) Allocate(ctx context.Context, destination, ownerID, customCode string) (*storage.Mapping, error) {
	record := storage.Mapping{
		Destination: destination,
		OwnerID:     ownerID,
	}

	// surrounding whitespace is dropped here and in UpdateMapping alike;
	// whitespace inside a code is still blacklisted
	if customCode = strings.TrimSpace(customCode); customCode != "" {
		return a.allocateCustom(ctx, record, customCode)
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		record.ID = uuid.NewString()
		record.Code = a.generator.Generate(a.codeLength)
		record.CreatedAt = time.Now().UTC()

		created, err := a.storage.InsertIfAbsent(ctx, record)
		if err == nil {
			metrics.RecordAllocation("created")
			return created, nil
		}
		if !errors.Is(err, storage.ErrCodeTaken) {
			metrics.RecordAllocation("error")
			return nil, fmt.Errorf("allocate: %w", err)
		}

		metrics.RecordCollision()
		a.logger.Debug("generated code collided", zap.String("code", record.Code), zap.Int("attempt", attempt))
	}

	metrics.RecordAllocation("exhausted")
	a.logger.Warn("code generation exhausted", zap.Int("attempts", a.maxAttempts), zap.String("owner", ownerID))
	return nil, ErrGenerationExhausted
}

func (a *Allocator) allocateCustom(ctx context.Context, record storage.Mapping, code string) (*storage.Mapping, error) {
	if IsBlacklisted(code) {
		metrics.RecordAllocation("blacklisted")
		return nil, ErrCustomCodeBlacklisted
	}

	record.ID = uuid.NewString()
	record.Code = code
	record.Custom = true
	record.CreatedAt = time.Now().UTC()

	created, err := a.storage.InsertIfAbsent(ctx, record)
	if errors.Is(err, storage.ErrCodeTaken) {
		metrics.RecordAllocation("custom_taken")
		return nil, ErrCustomCodeTaken
	}
	if err != nil {
		metrics.RecordAllocation("error")
		return nil, fmt.Errorf("allocate custom: %w", err)
	}

	metrics.RecordAllocation("created")
	return created, nil
}
