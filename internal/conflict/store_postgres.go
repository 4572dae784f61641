package conflict

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"regsync/pkg/domain"
	txcontext "regsync/pkg/platform/tx"
)

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func querier(ctx context.Context, db *sql.DB) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

// PostgresStore persists the conflict queue. A partial unique index on
// (registration_no, field_name) WHERE status = 'open' backs the
// at-most-one-open-entry invariant at the storage layer too.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `id, registration_no, field_name, candidates, status, created_at, resolved_at, winner_value, reason`

func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	row := querier(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM conflict_queue WHERE id = $1`, parsed)
	return scanEntry(row)
}

func (s *PostgresStore) FindOpen(ctx context.Context, registrationNo, fieldName string) (*Entry, error) {
	row := querier(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM conflict_queue
		 WHERE registration_no = $1 AND field_name = $2 AND status = 'open'`,
		registrationNo, fieldName)
	return scanEntry(row)
}

func (s *PostgresStore) Create(ctx context.Context, entry *Entry) error {
	candidatesJSON, err := json.Marshal(entry.Candidates)
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}
	query := `
		INSERT INTO conflict_queue
			(id, registration_no, field_name, candidates, status, created_at, resolved_at, winner_value, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = querier(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entry.ID), entry.RegistrationNo, entry.FieldName, candidatesJSON,
		string(entry.Status), entry.CreatedAt, entry.ResolvedAt, entry.WinnerValue, entry.Reason)
	if err != nil {
		return fmt.Errorf("insert conflict entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, entry *Entry) error {
	candidatesJSON, err := json.Marshal(entry.Candidates)
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}
	query := `
		UPDATE conflict_queue
		SET candidates = $2, status = $3, resolved_at = $4, winner_value = $5, reason = $6
		WHERE id = $1
	`
	res, err := querier(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entry.ID), candidatesJSON, string(entry.Status),
		entry.ResolvedAt, entry.WinnerValue, entry.Reason)
	if err != nil {
		return fmt.Errorf("update conflict entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update conflict entry: not found")
	}
	return nil
}

func (s *PostgresStore) ListOpen(ctx context.Context) ([]Entry, error) {
	return s.list(ctx,
		`SELECT `+entryColumns+` FROM conflict_queue WHERE status = 'open' ORDER BY created_at, id`)
}

func (s *PostgresStore) ListOpenByRegistration(ctx context.Context, registrationNo string) ([]Entry, error) {
	return s.list(ctx,
		`SELECT `+entryColumns+` FROM conflict_queue
		 WHERE status = 'open' AND registration_no = $1 ORDER BY created_at, id`,
		registrationNo)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := querier(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select conflict entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

func (s *PostgresStore) OpenCountsByRegistration(ctx context.Context) ([]RegistrationCount, error) {
	query := `
		SELECT registration_no, COUNT(*)
		FROM conflict_queue
		WHERE status = 'open'
		GROUP BY registration_no
		ORDER BY COUNT(*) DESC, registration_no
	`
	rows, err := querier(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count open conflicts: %w", err)
	}
	defer rows.Close()

	var out []RegistrationCount
	for rows.Next() {
		var rc RegistrationCount
		if err := rows.Scan(&rc.RegistrationNo, &rc.Open); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TopFieldsSince(ctx context.Context, since time.Time, limit int) ([]FieldCount, error) {
	query := `
		SELECT field_name, COUNT(*)
		FROM conflict_queue
		WHERE created_at >= $1
		GROUP BY field_name
		ORDER BY COUNT(*) DESC, field_name
		LIMIT $2
	`
	rows, err := querier(ctx, s.db).QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("count conflicts by field: %w", err)
	}
	defer rows.Close()

	var out []FieldCount
	for rows.Next() {
		var fc FieldCount
		if err := rows.Scan(&fc.FieldName, &fc.Count); err != nil {
			return nil, fmt.Errorf("scan field count row: %w", err)
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row *sql.Row) (*Entry, error) {
	entry, err := scanEntryFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

func scanEntryRows(rows *sql.Rows) (*Entry, error) {
	return scanEntryFrom(rows)
}

func scanEntryFrom(scanner rowScanner) (*Entry, error) {
	var (
		entry          Entry
		id             uuid.UUID
		candidatesJSON []byte
		status         string
		resolvedAt     sql.NullTime
	)
	err := scanner.Scan(&id, &entry.RegistrationNo, &entry.FieldName, &candidatesJSON,
		&status, &entry.CreatedAt, &resolvedAt, &entry.WinnerValue, &entry.Reason)
	if err != nil {
		return nil, err
	}
	entry.ID = domain.ConflictID(id)
	entry.Status = Status(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		entry.ResolvedAt = &t
	}
	if err := json.Unmarshal(candidatesJSON, &entry.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return &entry, nil
}
