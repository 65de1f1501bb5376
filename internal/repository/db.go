package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Dialect selects the SQL flavour a repository speaks.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

// OpenPostgres connects through the pgx stdlib driver and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// OpenSQLite opens a single-file database with foreign keys enforced.
// SQLite serialises writers anyway, so the pool holds one connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

// Migrate applies every pending embedded migration for the dialect.
func Migrate(db *sql.DB, dialect Dialect) error {
	source, err := iofs.New(migrationsFS, "migrations/"+dialectDir(dialect))
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	var m *migrate.Migrate
	switch dialect {
	case Postgres:
		driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
		if err != nil {
			return fmt.Errorf("migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", source, "pgx5", driver)
		if err != nil {
			return fmt.Errorf("migrate instance: %w", err)
		}
	case SQLite:
		driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", source, "sqlite3", driver)
		if err != nil {
			return fmt.Errorf("migrate instance: %w", err)
		}
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func dialectDir(d Dialect) string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// ErrNoDatabase is returned by Open when neither a DSN nor a file is configured.
var ErrNoDatabase = errors.New("no database configured")

// Open connects to Postgres when dsn is set, otherwise to the SQLite file at
// path, and brings the schema up to date.
func Open(ctx context.Context, dsn, path string, logger *zap.Logger) (*URLRepository, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)

	switch {
	case dsn != "":
		dialect = Postgres
		db, err = OpenPostgres(ctx, dsn)
	case path != "":
		dialect = SQLite
		db, err = OpenSQLite(ctx, path)
	default:
		return nil, ErrNoDatabase
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database ready", zap.String("dialect", string(dialect)))
	return CreateURLRepository(db, dialect, logger), nil
}
