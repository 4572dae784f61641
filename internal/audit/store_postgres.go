package audit

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
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func querier(ctx context.Context, db *sql.DB) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

// PostgresStore writes the durable audit row plus a transactional-outbox
// row in the caller's transaction. The outbox worker publishes committed
// rows to Kafka; an aborted upsert leaves neither.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	candidatesJSON, err := json.Marshal(event.Candidates)
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}

	query := `
		INSERT INTO registration_conflict_audit
			(id, registration_no, field_name, decided_by, winner_source, winner_value, basis, reason, candidates, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	q := querier(ctx, s.db)
	_, err = q.ExecContext(ctx, query,
		uuid.UUID(event.ID), event.RegistrationNo, event.FieldName, string(event.DecidedBy),
		event.WinnerSource, event.WinnerValue, event.Basis, event.Reason,
		candidatesJSON, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	payload, err := json.Marshal(outboxPayload{
		ID:             event.ID.String(),
		RegistrationNo: event.RegistrationNo,
		FieldName:      event.FieldName,
		DecidedBy:      string(event.DecidedBy),
		WinnerSource:   event.WinnerSource,
		WinnerValue:    event.WinnerValue,
		Basis:          event.Basis,
		Reason:         event.Reason,
		Timestamp:      event.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	outboxQuery := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = q.ExecContext(ctx, outboxQuery,
		uuid.New(), "registration", event.RegistrationNo, "conflict_resolution", payload, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

// outboxPayload is the JSON shape published to Kafka. Candidates stay in
// the audit table; the stream carries the decision itself.
type outboxPayload struct {
	ID             string `json:"id"`
	RegistrationNo string `json:"registration_no"`
	FieldName      string `json:"field_name"`
	DecidedBy      string `json:"decided_by"`
	WinnerSource   string `json:"winner_source"`
	WinnerValue    string `json:"winner_value"`
	Basis          string `json:"basis"`
	Reason         string `json:"reason,omitempty"`
	Timestamp      string `json:"timestamp"`
}

func (s *PostgresStore) ListByRegistration(ctx context.Context, registrationNo string) ([]Event, error) {
	query := `
		SELECT id, registration_no, field_name, decided_by, winner_source, winner_value, basis, reason, candidates, created_at
		FROM registration_conflict_audit
		WHERE registration_no = $1
		ORDER BY created_at, id
	`
	rows, err := querier(ctx, s.db).QueryContext(ctx, query, registrationNo)
	if err != nil {
		return nil, fmt.Errorf("select audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			event          Event
			id             uuid.UUID
			decidedBy      string
			candidatesJSON []byte
		)
		if err := rows.Scan(&id, &event.RegistrationNo, &event.FieldName, &decidedBy,
			&event.WinnerSource, &event.WinnerValue, &event.Basis, &event.Reason,
			&candidatesJSON, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = domain.AuditID(id)
		event.DecidedBy = DecidedBy(decidedBy)
		if err := json.Unmarshal(candidatesJSON, &event.Candidates); err != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
