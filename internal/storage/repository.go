package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dingeii/binance-signal-bot/internal/baseline"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	loadBaselineSQL = `SELECT payload FROM baseline_snapshots WHERE id = 1;`

	saveBaselineSQL = `INSERT INTO baseline_snapshots (id, payload, updated_at)
    VALUES (1, $1, now())
    ON CONFLICT (id) DO UPDATE
    SET payload    = EXCLUDED.payload,
        updated_at = EXCLUDED.updated_at;`

	insertAlertSQL = `INSERT INTO netflow_alerts (
        cycle_id,
        symbol,
        reason,
        current_value,
        baseline_average,
        has_baseline,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (cycle_id, symbol) DO UPDATE
    SET reason           = EXCLUDED.reason,
        current_value    = EXCLUDED.current_value,
        baseline_average = EXCLUDED.baseline_average,
        has_baseline     = EXCLUDED.has_baseline
    RETURNING id, cycle_id, symbol, reason, current_value::text, baseline_average::text, has_baseline, observed_at, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        cycle_id,
        symbol,
        reason,
        current_value::text,
        baseline_average::text,
        has_baseline,
        observed_at,
        created_at
    FROM netflow_alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM netflow_alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to baseline snapshots and the alert audit.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session when the conn is closed
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// LoadBaseline reads the baseline snapshot row. A missing row is an empty snapshot.
func (s *Store) LoadBaseline(ctx context.Context) (baseline.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var payload []byte
	if err := pool.QueryRow(ctx, loadBaselineSQL).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return baseline.Snapshot{}, nil
		}
		return nil, fmt.Errorf("load baseline snapshot: %w", err)
	}
	return baseline.Decode(payload, s.now().UTC())
}

// SaveBaseline replaces the baseline snapshot row.
func (s *Store) SaveBaseline(ctx context.Context, snap baseline.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := baseline.Encode(snap)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, saveBaselineSQL, payload); err != nil {
		return fmt.Errorf("save baseline snapshot: %w", err)
	}
	return nil
}

// BaselinePersister exposes the snapshot row as a baseline.Persister.
func (s *Store) BaselinePersister() baseline.Persister {
	return baselineRow{store: s}
}

type baselineRow struct {
	store *Store
}

func (b baselineRow) Load(ctx context.Context) (baseline.Snapshot, error) {
	return b.store.LoadBaseline(ctx)
}

func (b baselineRow) Save(ctx context.Context, snap baseline.Snapshot) error {
	return b.store.SaveBaseline(ctx, snap)
}

// InsertAlert persists an alert emission. Re-inserting the same cycle and
// symbol updates the existing row.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.CycleID,
		alert.Symbol,
		alert.Reason,
		alert.CurrentValue.String(),
		alert.BaselineAverage.String(),
		alert.HasBaseline,
		alert.ObservedAt,
	)

	rec, err := scanAlert(row)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan alert: %w", scanErr)
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts and returns how many were removed.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec                     AlertRecord
		currentStr, baselineStr string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.CycleID,
		&rec.Symbol,
		&rec.Reason,
		&currentStr,
		&baselineStr,
		&rec.HasBaseline,
		&rec.ObservedAt,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var err error
	rec.CurrentValue, err = decimal.NewFromString(currentStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse current value: %w", err)
	}
	rec.BaselineAverage, err = decimal.NewFromString(baselineStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse baseline average: %w", err)
	}
	return rec, nil
}
