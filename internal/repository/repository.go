// Package repository implements the mapping store on top of database/sql.
// The same queries serve Postgres (pgx) and SQLite (go-sqlite3); they are
// written with $N placeholders and rebound for SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/storage"
)

const mappingColumns = "id, code, destination, owner_id, custom, created_at"

type URLRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

func CreateURLRepository(db *sql.DB, dialect Dialect, logger *zap.Logger) *URLRepository {
	return &URLRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

var placeholder = regexp.MustCompile(`\$\d+`)

// q adapts a query to the dialect. Placeholders must appear once each, in order.
func (r *URLRepository) q(query string) string {
	if r.dialect == SQLite {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return false
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(row scanner) (*storage.Mapping, error) {
	var m storage.Mapping
	if err := row.Scan(&m.ID, &m.Code, &m.Destination, &m.OwnerID, &m.Custom, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *URLRepository) InsertIfAbsent(ctx context.Context, m storage.Mapping) (*storage.Mapping, error) {
	res, err := r.db.ExecContext(ctx, r.q(
		"INSERT INTO mappings ("+mappingColumns+") VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (code) DO NOTHING"),
		m.ID, m.Code, m.Destination, m.OwnerID, m.Custom, m.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrCodeTaken
		}
		return nil, fmt.Errorf("insert mapping: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, storage.ErrCodeTaken
	}

	r.logger.Debug("mapping inserted", zap.String("code", m.Code), zap.String("owner", m.OwnerID))
	return &m, nil
}

func (r *URLRepository) Lookup(ctx context.Context, code string) (*storage.Mapping, error) {
	row := r.db.QueryRowContext(ctx, r.q("SELECT "+mappingColumns+" FROM mappings WHERE code = $1"), code)

	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup mapping: %w", err)
	}

	return m, nil
}

// ownershipError tells a missing mapping from one owned by someone else
// after a guarded statement touched no rows.
func (r *URLRepository) ownershipError(ctx context.Context, code string) error {
	if _, err := r.Lookup(ctx, code); err != nil {
		return err
	}
	return storage.ErrForbidden
}

func (r *URLRepository) Update(ctx context.Context, code string, upd storage.MappingUpdate, callerID string) (*storage.Mapping, error) {
	res, err := r.db.ExecContext(ctx, r.q(
		"UPDATE mappings SET code = $1, destination = $2, custom = $3 WHERE code = $4 AND owner_id = $5"),
		upd.Code, upd.Destination, upd.Custom, code, callerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrCodeTaken
		}
		return nil, fmt.Errorf("update mapping: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, r.ownershipError(ctx, code)
	}

	return r.Lookup(ctx, upd.Code)
}

func (r *URLRepository) Delete(ctx context.Context, code string, callerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.q(
		"DELETE FROM click_events WHERE mapping_id IN (SELECT id FROM mappings WHERE code = $1 AND owner_id = $2)"),
		code, callerID,
	); err != nil {
		return fmt.Errorf("delete clicks: %w", err)
	}

	res, err := tx.ExecContext(ctx, r.q("DELETE FROM mappings WHERE code = $1 AND owner_id = $2"), code, callerID)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// release the connection first, SQLite runs with a single one
		tx.Rollback()
		return r.ownershipError(ctx, code)
	}

	return tx.Commit()
}

func (r *URLRepository) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.q(
		"DELETE FROM click_events WHERE mapping_id IN (SELECT id FROM mappings WHERE owner_id = $1)"),
		ownerID,
	); err != nil {
		return 0, fmt.Errorf("delete owner clicks: %w", err)
	}

	res, err := tx.ExecContext(ctx, r.q("DELETE FROM mappings WHERE owner_id = $1"), ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete owner mappings: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	r.logger.Info("owner deleted", zap.String("owner", ownerID), zap.Int64("mappings", rows))
	return int(rows), nil
}

func (r *URLRepository) ListByOwner(ctx context.Context, ownerID string) ([]storage.Mapping, error) {
	return r.listMappings(ctx, "SELECT "+mappingColumns+" FROM mappings WHERE owner_id = $1 ORDER BY created_at, code", ownerID)
}

func (r *URLRepository) ListAll(ctx context.Context) ([]storage.Mapping, error) {
	return r.listMappings(ctx, "SELECT "+mappingColumns+" FROM mappings ORDER BY created_at, code")
}

func (r *URLRepository) listMappings(ctx context.Context, query string, args ...any) ([]storage.Mapping, error) {
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	records := make([]storage.Mapping, 0)
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *m)
	}

	return records, rows.Err()
}

// AppendClicks writes a batch in one transaction. Events whose mapping is
// gone by now are skipped.
func (r *URLRepository) AppendClicks(ctx context.Context, events []storage.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	live, err := r.existingMappings(ctx, tx, events)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, r.q(
		"INSERT INTO click_events (id, mapping_id, occurred_at, source_address, region, client_descriptor) VALUES ($1, $2, $3, $4, $5, $6)"))
	if err != nil {
		return err
	}
	defer stmt.Close()

	written := 0
	for _, e := range events {
		if !live[e.MappingID] {
			continue
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.MappingID, e.OccurredAt.UTC(), e.SourceAddress, e.Region, e.ClientDescriptor); err != nil {
			return fmt.Errorf("insert click: %w", err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if skipped := len(events) - written; skipped > 0 {
		r.logger.Debug("clicks for deleted mappings skipped", zap.Int("skipped", skipped))
	}
	return nil
}

func (r *URLRepository) existingMappings(ctx context.Context, tx *sql.Tx, events []storage.ClickEvent) (map[string]bool, error) {
	ids := make([]any, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		if !seen[e.MappingID] {
			seen[e.MappingID] = true
			ids = append(ids, e.MappingID)
		}
	}

	marks := make([]string, len(ids))
	for i := range ids {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}

	rows, err := tx.QueryContext(ctx, r.q("SELECT id FROM mappings WHERE id IN ("+strings.Join(marks, ", ")+")"), ids...)
	if err != nil {
		return nil, fmt.Errorf("check mappings: %w", err)
	}
	defer rows.Close()

	live := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		live[id] = true
	}

	return live, rows.Err()
}

// where renders the mapping filter against alias m.
func where(f storage.ClickFilter) (string, []any) {
	var conds []string
	var args []any

	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		conds = append(conds, fmt.Sprintf("m.owner_id = $%d", len(args)))
	}
	if f.MappingID != "" {
		args = append(args, f.MappingID)
		conds = append(conds, fmt.Sprintf("m.id = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *URLRepository) ClicksByMapping(ctx context.Context, f storage.ClickFilter) (map[string]int64, error) {
	clause, args := where(f)
	return r.countBy(ctx,
		"SELECT m.id, COUNT(c.id) FROM mappings m LEFT JOIN click_events c ON c.mapping_id = m.id"+clause+" GROUP BY m.id",
		args...)
}

func (r *URLRepository) ClicksByRegion(ctx context.Context, f storage.ClickFilter) (map[string]int64, error) {
	clause, args := where(f)
	return r.countBy(ctx,
		"SELECT c.region, COUNT(*) FROM click_events c JOIN mappings m ON m.id = c.mapping_id"+clause+" GROUP BY c.region",
		args...)
}

func (r *URLRepository) countBy(ctx context.Context, query string, args ...any) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("count clicks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}

	return counts, rows.Err()
}

func (r *URLRepository) ListClicks(ctx context.Context, f storage.ClickFilter) ([]storage.ClickEvent, error) {
	clause, args := where(f)
	rows, err := r.db.QueryContext(ctx, r.q(
		"SELECT c.id, c.mapping_id, c.occurred_at, c.source_address, c.region, c.client_descriptor"+
			" FROM click_events c JOIN mappings m ON m.id = c.mapping_id"+clause+
			" ORDER BY c.occurred_at DESC"), args...)
	if err != nil {
		return nil, fmt.Errorf("list clicks: %w", err)
	}
	defer rows.Close()

	events := make([]storage.ClickEvent, 0)
	for rows.Next() {
		var e storage.ClickEvent
		if err := rows.Scan(&e.ID, &e.MappingID, &e.OccurredAt, &e.SourceAddress, &e.Region, &e.ClientDescriptor); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (r *URLRepository) PingContext(c context.Context) error {
	return r.db.PingContext(c)
}

func (r *URLRepository) Close() error {
	return r.db.Close()
}
