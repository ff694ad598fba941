package store

import (
	"context"
	"database/sql"
	"fmt"

	"coldchain/internal/events"
	"coldchain/internal/events/chain"
	"coldchain/pkg/domain"
	txcontext "coldchain/pkg/platform/tx"
)

// PostgresStore implements the event log as a transactional outbox: events are
// inserted in the same transaction as the ledger mutation they describe. The
// single ledger_sequence row is locked by each append until commit, so Seq
// order equals commit order and readers never observe a gap.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append joins the transaction in ctx, or runs in its own when there is none.
func (s *PostgresStore) Append(ctx context.Context, e events.Event) (events.Event, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.appendTx(ctx, tx, e)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return events.Event{}, fmt.Errorf("begin event append: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	out, err := s.appendTx(ctx, tx, e)
	if err != nil {
		return events.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return events.Event{}, fmt.Errorf("commit event append: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) appendTx(ctx context.Context, tx *sql.Tx, e events.Event) (events.Event, error) {
	prepare(ctx, &e)

	var prev string
	err := tx.QueryRowContext(ctx,
		`UPDATE ledger_sequence SET value = value + 1 WHERE id = 1 RETURNING value, last_hash`,
	).Scan(&e.Seq, &prev)
	if err != nil {
		return events.Event{}, fmt.Errorf("advance event sequence: %w", err)
	}
	if err := chain.Seal(prev, &e); err != nil {
		return events.Event{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_sequence SET last_hash = $1 WHERE id = 1`, e.Hash,
	); err != nil {
		return events.Event{}, fmt.Errorf("store chain head: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_events (
			seq, id, kind, shipment_id, actor, from_identity, to_identity,
			temperature, location, reading_index, reading_timestamp,
			recorded_at, prev_hash, hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		e.Seq, e.ID, string(e.Kind), e.ShipmentID.String(), e.Actor.String(),
		e.From.String(), e.To.String(), e.Temperature, e.Location,
		e.ReadingIndex, e.ReadingTimestamp, e.RecordedAt, e.PrevHash, e.Hash,
	)
	if err != nil {
		return events.Event{}, fmt.Errorf("insert ledger event: %w", err)
	}
	return e, nil
}

// ListAfter returns up to limit events with Seq > after, in order.
func (s *PostgresStore) ListAfter(ctx context.Context, after uint64, limit int) ([]events.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, kind, shipment_id, actor, from_identity, to_identity,
		       temperature, location, reading_index, reading_timestamp,
		       recorded_at, prev_hash, hash
		FROM ledger_events
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e                                 events.Event
			kind, shipmentID, actor, from, to string
		)
		if err := rows.Scan(
			&e.Seq, &e.ID, &kind, &shipmentID, &actor, &from, &to,
			&e.Temperature, &e.Location, &e.ReadingIndex, &e.ReadingTimestamp,
			&e.RecordedAt, &e.PrevHash, &e.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		e.Kind = events.Kind(kind)
		e.ShipmentID = domain.ShipmentID(shipmentID)
		e.Actor, e.From, e.To = domain.Identity(actor), domain.Identity(from), domain.Identity(to)
		e.RecordedAt = chain.Normalize(e.RecordedAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return out, nil
}

// LastSeq returns the Seq of the newest committed event.
func (s *PostgresStore) LastSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last event seq: %w", err)
	}
	return seq, nil
}
