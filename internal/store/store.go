package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nafauto/api/schemas"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when an inquiry record does not exist.
var ErrNotFound = errors.New("inquiry record not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL-backed inquiry record store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

const inquiryColumns = `id, taxpayer_name, taxpayer_id_number, category, detail, assigned_staff, created_at, processed`

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the inquiries table if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.log.Info("Database schema is up to date.")
	return nil
}

// FindRecords returns the records matching filter, sorted by creation time.
func (s *Store) FindRecords(ctx context.Context, filter schemas.RecordFilter) ([]schemas.InquiryRecord, error) {
	query, args := buildFindQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inquiries: %w", err)
	}
	defer rows.Close()

	var records []schemas.InquiryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inquiry row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	s.log.Debug("Loaded inquiry records.",
		zap.Int("count", len(records)),
		zap.Int("requested_ids", len(filter.IDs)),
		zap.Bool("only_unprocessed", filter.OnlyUnprocessed),
	)
	return records, nil
}

// MarkProcessed sets the processed flag of one record and returns the updated record.
// The flag is never cleared here.
func (s *Store) MarkProcessed(ctx context.Context, id string) (*schemas.InquiryRecord, error) {
	query := `
        UPDATE inquiries
        SET processed = TRUE, updated_at = NOW()
        WHERE id = $1
        RETURNING ` + inquiryColumns + `;
    `
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mark processed %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to mark inquiry %s as processed: %w", id, err)
	}
	return &rec, nil
}

func buildFindQuery(filter schemas.RecordFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if filter.OnlyUnprocessed {
		conditions = append(conditions, "processed = FALSE")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(inquiryColumns)
	b.WriteString(" FROM inquiries")
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	if filter.Order == schemas.NewestFirst {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY created_at ASC, id ASC")
	}
	return b.String(), args
}

func scanRecord(row pgx.Row) (schemas.InquiryRecord, error) {
	var rec schemas.InquiryRecord
	err := row.Scan(
		&rec.ID, &rec.TaxpayerName, &rec.TaxpayerIDNumber, &rec.Category,
		&rec.Detail, &rec.AssignedStaff, &rec.CreatedAt, &rec.Processed,
	)
	return rec, err
}
