package mysql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"
	"unicode/utf8"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

// Open connects to dsn and checks the connection. The DSN is rewritten to
// scan DATETIME columns into time.Time in UTC, whatever it asked for.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	dsn, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose up: %w", err)
	}
	log.Info().Msg("journal migrations applied")
	return nil
}

// Journal stores moderation events in the moderation_events table.
type Journal struct{ db *sql.DB }

func New(db *sql.DB) *Journal { return &Journal{db: db} }

var _ domain.Journal = (*Journal)(nil)

func (j *Journal) Record(ctx context.Context, e domain.ModerationEvent) error {
	_, err := j.db.ExecContext(ctx, insertEventSQL,
		e.ID,
		string(e.Kind),
		valInt64(e.ReviewID),
		valInt64(e.ListingID),
		valBool(e.Approved),
		valInt(e.Added),
		e.Outcome,
		truncate(e.Detail, maxDetailLen),
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert moderation event: %w", err)
	}
	return nil
}

func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.ModerationEvent, error) {
	rows, err := j.db.QueryContext(ctx, recentEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query moderation events: %w", err)
	}
	defer rows.Close()

	out := []domain.ModerationEvent{}
	for rows.Next() {
		var (
			e                   domain.ModerationEvent
			kind                string
			reviewID, listingID sql.NullInt64
			approved            sql.NullBool
			added               sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &kind, &reviewID, &listingID, &approved, &added, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		if reviewID.Valid {
			v := reviewID.Int64
			e.ReviewID = &v
		}
		if listingID.Valid {
			v := listingID.Int64
			e.ListingID = &v
		}
		if approved.Valid {
			v := approved.Bool
			e.Approved = &v
		}
		if added.Valid {
			v := int(added.Int64)
			e.Added = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
