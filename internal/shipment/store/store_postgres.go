package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coldchain/internal/platform/postgres"
	"coldchain/internal/shipment/models"
	"coldchain/pkg/domain"
	"coldchain/pkg/platform/sentinel"
	txcontext "coldchain/pkg/platform/tx"
)

// PostgresStore persists shipments and readings. Every method joins the
// transaction carried in ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.Or(ctx, s.db)
}

func (s *PostgresStore) Create(ctx context.Context, shipment *models.Shipment) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO shipments (id, status, custodian, min_temp, max_temp, product_details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		shipment.ID.String(), string(shipment.Status), shipment.Custodian.String(),
		shipment.MinTemp, shipment.MaxTemp, shipment.ProductDetails, shipment.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.ShipmentID) (*models.Shipment, error) {
	var (
		shipment          models.Shipment
		status, custodian string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, status, custodian, min_temp, max_temp, product_details, created_at
		FROM shipments
		WHERE id = $1
	`, id.String()).Scan(
		&shipment.ID, &status, &custodian,
		&shipment.MinTemp, &shipment.MaxTemp, &shipment.ProductDetails, &shipment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select shipment: %w", err)
	}
	shipment.Status = models.Status(status)
	shipment.Custodian = domain.Identity(custodian)
	return &shipment, nil
}

func (s *PostgresStore) SetCustodian(ctx context.Context, id domain.ShipmentID, custodian domain.Identity) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE shipments SET custodian = $2 WHERE id = $1`, id.String(), custodian.String())
	if err != nil {
		return fmt.Errorf("update custodian: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SetStatus(ctx context.Context, id domain.ShipmentID, status models.Status) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE shipments SET status = $2 WHERE id = $1`, id.String(), string(status))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return requireRow(res)
}

// AppendReading bumps the shipment's reading_count and inserts the reading at
// the previous count, so indexes stay dense.
func (s *PostgresStore) AppendReading(ctx context.Context, id domain.ShipmentID, r models.Reading) (int, error) {
	exec := s.execer(ctx)
	var count int
	err := exec.QueryRowContext(ctx,
		`UPDATE shipments SET reading_count = reading_count + 1 WHERE id = $1 RETURNING reading_count`,
		id.String(),
	).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("advance reading count: %w", err)
	}
	index := count - 1
	if _, err := exec.ExecContext(ctx, `
		INSERT INTO temperature_readings (shipment_id, idx, ts, temperature, location)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), index, r.Timestamp, r.Temperature, r.Location); err != nil {
		return 0, fmt.Errorf("insert reading: %w", err)
	}
	return index, nil
}

func (s *PostgresStore) ReadingCount(ctx context.Context, id domain.ShipmentID) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT reading_count FROM shipments WHERE id = $1`, id.String()).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("select reading count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ReadingAt(ctx context.Context, id domain.ShipmentID, index int) (models.Reading, error) {
	if index < 0 {
		return models.Reading{}, sentinel.ErrOutOfRange
	}
	var r models.Reading
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT ts, temperature, location
		FROM temperature_readings
		WHERE shipment_id = $1 AND idx = $2
	`, id.String(), index).Scan(&r.Timestamp, &r.Temperature, &r.Location)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Reading{}, fmt.Errorf("select reading: %w", err)
	}
	if _, err := s.ReadingCount(ctx, id); err != nil {
		return models.Reading{}, err
	}
	return models.Reading{}, sentinel.ErrOutOfRange
}

// Readings returns a page and the log length from one snapshot. Outside a
// ledger transaction it opens a read-only repeatable-read one.
func (s *PostgresStore) Readings(ctx context.Context, id domain.ShipmentID, offset, limit int) ([]models.Reading, int, error) {
	if _, ok := txcontext.From(ctx); !ok {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
		if err != nil {
			return nil, 0, fmt.Errorf("begin history snapshot: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()
		ctx = txcontext.WithTx(ctx, tx)
	}

	count, err := s.ReadingCount(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if offset < 0 || offset > count {
		return nil, 0, sentinel.ErrOutOfRange
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT ts, temperature, location
		FROM temperature_readings
		WHERE shipment_id = $1 AND idx >= $2
		ORDER BY idx
		LIMIT $3
	`, id.String(), offset, max(limit, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	out := make([]models.Reading, 0, min(max(limit, 0), count-offset))
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.Timestamp, &r.Temperature, &r.Location); err != nil {
			return nil, 0, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate readings: %w", err)
	}
	return out, count, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
