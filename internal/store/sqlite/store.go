package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agent_office/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	persona_id TEXT NOT NULL,
	category TEXT NOT NULL,
	destination TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries(created_at);
CREATE INDEX IF NOT EXISTS idx_deliveries_persona ON deliveries(persona_id, created_at);
`

// DefaultMaxRows bounds the journal; older rows are pruned on insert.
const DefaultMaxRows = 10000

// Store is the delivery journal: one row per delivery attempt outcome.
type Store struct {
	db      *sql.DB
	maxRows int
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db, maxRows: DefaultMaxRows}, nil
}

// SetMaxRows changes the retention bound. n <= 0 keeps every row.
func (s *Store) SetMaxRows(n int) {
	s.maxRows = n
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO deliveries(
			id, event_id, persona_id, category, destination, status, reason, created_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EventID, rec.PersonaID, string(rec.Category), rec.Destination,
		string(rec.Status), rec.Reason, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	if s.maxRows <= 0 {
		return nil
	}
	_, err = s.db.ExecContext(
		ctx,
		`DELETE FROM deliveries WHERE rowid <= (
			SELECT rowid FROM deliveries ORDER BY rowid DESC LIMIT 1 OFFSET ?
		)`,
		s.maxRows,
	)
	if err != nil {
		return fmt.Errorf("prune deliveries: %w", err)
	}
	return nil
}

// ListDeliveries returns the newest attempts first.
func (s *Store) ListDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, event_id, persona_id, category, destination, status, reason, created_at
		FROM deliveries
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	result := make([]domain.DeliveryRecord, 0, limit)
	for rows.Next() {
		var rec domain.DeliveryRecord
		var category, status string
		var createdAt int64
		if err := rows.Scan(
			&rec.ID, &rec.EventID, &rec.PersonaID, &category, &rec.Destination,
			&status, &rec.Reason, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		rec.Category = domain.Category(category)
		rec.Status = domain.DeliveryStatus(status)
		rec.CreatedAt = unixMilliToTime(createdAt)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return result, nil
}

func (s *Store) CountDeliveriesByStatus(ctx context.Context) (map[domain.DeliveryStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.DeliveryStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan delivery count: %w", err)
		}
		counts[domain.DeliveryStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery counts: %w", err)
	}
	return counts, nil
}

func unixMilliToTime(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}
