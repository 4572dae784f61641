package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"regsync/pkg/domain"
	dErrors "regsync/pkg/domain-errors"
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

// PostgresEntityStore persists canonical entities with per-field provenance
// embedded as JSONB, so one row read returns value and justification
// together.
type PostgresEntityStore struct {
	db *sql.DB
}

func NewPostgresEntityStore(db *sql.DB) *PostgresEntityStore {
	return &PostgresEntityStore{db: db}
}

func (s *PostgresEntityStore) Get(ctx context.Context, registrationNo string) (*CanonicalEntity, error) {
	return s.get(ctx, registrationNo, false)
}

// GetForUpdate takes the row lock that linearizes concurrent upserts for
// one registration. It must run inside a transaction carried by ctx.
func (s *PostgresEntityStore) GetForUpdate(ctx context.Context, registrationNo string) (*CanonicalEntity, error) {
	return s.get(ctx, registrationNo, true)
}

func (s *PostgresEntityStore) get(ctx context.Context, registrationNo string, forUpdate bool) (*CanonicalEntity, error) {
	query := `
		SELECT id, registration_no, fields, provenance, created_at, updated_at
		FROM registrations
		WHERE registration_no = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		id             uuid.UUID
		regNo          string
		fieldsJSON     []byte
		provenanceJSON []byte
		createdAt      time.Time
		updatedAt      time.Time
	)
	err := querier(ctx, s.db).QueryRowContext(ctx, query, registrationNo).
		Scan(&id, &regNo, &fieldsJSON, &provenanceJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select registration: %w", err)
	}

	entity := &CanonicalEntity{
		ID:             domain.RegistrationID(id),
		RegistrationNo: regNo,
		Fields:         make(map[string]string),
		Provenance:     make(map[string]FieldProvenance),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
	if err := json.Unmarshal(fieldsJSON, &entity.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if err := json.Unmarshal(provenanceJSON, &entity.Provenance); err != nil {
		return nil, fmt.Errorf("decode provenance: %w", err)
	}
	return entity, nil
}

func (s *PostgresEntityStore) Create(ctx context.Context, entity *CanonicalEntity) error {
	fieldsJSON, provenanceJSON, err := encodeEntity(entity)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO registrations (id, registration_no, fields, provenance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = querier(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entity.ID), entity.RegistrationNo, fieldsJSON, provenanceJSON,
		entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *PostgresEntityStore) Update(ctx context.Context, entity *CanonicalEntity) error {
	fieldsJSON, provenanceJSON, err := encodeEntity(entity)
	if err != nil {
		return err
	}
	query := `
		UPDATE registrations
		SET fields = $2, provenance = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := querier(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entity.ID), fieldsJSON, provenanceJSON, entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update registration: row vanished under lock")
	}
	return nil
}

func encodeEntity(entity *CanonicalEntity) ([]byte, []byte, error) {
	fieldsJSON, err := json.Marshal(entity.Fields)
	if err != nil {
		return nil, nil, fmt.Errorf("encode fields: %w", err)
	}
	provenanceJSON, err := json.Marshal(entity.Provenance)
	if err != nil {
		return nil, nil, fmt.Errorf("encode provenance: %w", err)
	}
	return fieldsJSON, provenanceJSON, nil
}

// PostgresChangeLog is the append-only mutation history.
type PostgresChangeLog struct {
	db *sql.DB
}

func NewPostgresChangeLog(db *sql.DB) *PostgresChangeLog {
	return &PostgresChangeLog{db: db}
}

func (s *PostgresChangeLog) Append(ctx context.Context, entry ChangeLogEntry) error {
	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	query := `
		INSERT INTO registration_change_log
			(id, registration_id, registration_no, source_key, source_run_id, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = querier(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(entry.ID), uuid.UUID(entry.RegistrationID), entry.RegistrationNo,
		entry.SourceKey, entry.SourceRunID, changesJSON, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert change log: %w", err)
	}
	return nil
}

func (s *PostgresChangeLog) ListByRegistration(ctx context.Context, id domain.RegistrationID) ([]ChangeLogEntry, error) {
	query := `
		SELECT id, registration_id, registration_no, source_key, source_run_id, changes, created_at
		FROM registration_change_log
		WHERE registration_id = $1
		ORDER BY created_at, id
	`
	rows, err := querier(ctx, s.db).QueryContext(ctx, query, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("select change log: %w", err)
	}
	defer rows.Close()

	var out []ChangeLogEntry
	for rows.Next() {
		var (
			entry       ChangeLogEntry
			entryID     uuid.UUID
			regID       uuid.UUID
			changesJSON []byte
		)
		if err := rows.Scan(&entryID, &regID, &entry.RegistrationNo,
			&entry.SourceKey, &entry.SourceRunID, &changesJSON, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan change log: %w", err)
		}
		entry.ID = domain.ChangeID(entryID)
		entry.RegistrationID = domain.RegistrationID(regID)
		if err := json.Unmarshal(changesJSON, &entry.Changes); err != nil {
			return nil, fmt.Errorf("decode changes: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

const defaultTxTimeout = 5 * time.Second

// PostgresTxRunner scopes one reconciliation call to one database
// transaction and carries it through context for every store in the call.
type PostgresTxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTxRunner(db *sql.DB) *PostgresTxRunner {
	return &PostgresTxRunner{db: db}
}

func (r *PostgresTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}
