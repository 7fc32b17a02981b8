package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertScanRunSQL = `INSERT INTO scan_runs (
        id,
        head_ts,
        vaults_scanned,
        liquidations_attempted,
        liquidations_succeeded,
        error_count,
        oracle_price,
        lowest_ratio_pct
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	listRunsBetweenSQL = `SELECT
        id,
        head_ts,
        vaults_scanned,
        liquidations_attempted,
        liquidations_succeeded,
        error_count,
        oracle_price,
        lowest_ratio_pct,
        created_at
    FROM scan_runs
    WHERE head_ts >= $1
      AND head_ts < $2
    ORDER BY head_ts;`

	listRecentRunsSQL = `SELECT
        id,
        head_ts,
        vaults_scanned,
        liquidations_attempted,
        liquidations_succeeded,
        error_count,
        oracle_price,
        lowest_ratio_pct,
        created_at
    FROM scan_runs
    ORDER BY head_ts DESC
    LIMIT $1;`

	insertLiquidationSQL = `INSERT INTO liquidations (
        run_id,
        vault_owner,
        amount,
        expected_payout,
        tx_hash,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listRecentLiquidationsSQL = `SELECT
        id,
        run_id,
        vault_owner,
        amount,
        expected_payout,
        tx_hash,
        status,
        error,
        created_at
    FROM liquidations
    ORDER BY created_at DESC
    LIMIT $1;`

	countLiquidationsSQL = `SELECT COUNT(*) FROM liquidations;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RunStore defines the persistence operations the run loop depends on.
type RunStore interface {
	InsertScanRun(ctx context.Context, run ScanRun) error
	InsertLiquidation(ctx context.Context, record LiquidationRecord) error
}

// HistoryStore defines the read side used by the show and export commands.
type HistoryStore interface {
	ListRunsBetween(ctx context.Context, from, to time.Time) ([]ScanRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]ScanRun, error)
	ListRecentLiquidations(ctx context.Context, limit int) ([]LiquidationRecord, error)
	CountLiquidations(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to scan runs and liquidation records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func. The lock key is derived from the engine address so at most
// one bot instance acts per engine.
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
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
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

// InsertScanRun persists a scan summary.
func (s *Store) InsertScanRun(ctx context.Context, run ScanRun) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var lowest interface{}
	if run.LowestRatioPct != nil {
		lowest = run.LowestRatioPct.String()
	}

	_, execErr := pool.Exec(ctx, insertScanRunSQL,
		run.ID,
		run.HeadTS,
		run.VaultsScanned,
		run.LiquidationsAttempted,
		run.LiquidationsSucceeded,
		run.ErrorCount,
		run.OraclePrice.String(),
		lowest,
	)
	if execErr != nil {
		return fmt.Errorf("insert scan run: %w", execErr)
	}
	return nil
}

// InsertLiquidation persists one submitted liquidation.
func (s *Store) InsertLiquidation(ctx context.Context, record LiquidationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if record.Error != nil {
		errMsg = *record.Error
	}

	row := pool.QueryRow(ctx, insertLiquidationSQL,
		record.RunID,
		record.VaultOwner,
		record.Amount.String(),
		record.ExpectedPayout.String(),
		record.TxHash,
		string(record.Status),
		errMsg,
	)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return fmt.Errorf("insert liquidation: %w", err)
	}
	return nil
}

// ListRunsBetween lists scan runs within a head-time window.
func (s *Store) ListRunsBetween(ctx context.Context, from, to time.Time) ([]ScanRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRunsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list runs between: %w", queryErr)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListRecentRuns lists the most recent scan runs.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListRecentLiquidations lists the most recent liquidation records.
func (s *Store) ListRecentLiquidations(ctx context.Context, limit int) ([]LiquidationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentLiquidationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent liquidations: %w", queryErr)
	}
	defer rows.Close()

	records := make([]LiquidationRecord, 0)
	for rows.Next() {
		record, scanErr := scanLiquidation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountLiquidations returns the total number of recorded liquidations.
func (s *Store) CountLiquidations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := pool.QueryRow(ctx, countLiquidationsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count liquidations: %w", err)
	}
	return count, nil
}

func collectRuns(rows pgx.Rows) ([]ScanRun, error) {
	runs := make([]ScanRun, 0)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(rows pgx.Rows) (ScanRun, error) {
	var (
		run       ScanRun
		price     string
		lowestOpt *string
	)

	if err := rows.Scan(
		&run.ID,
		&run.HeadTS,
		&run.VaultsScanned,
		&run.LiquidationsAttempted,
		&run.LiquidationsSucceeded,
		&run.ErrorCount,
		&price,
		&lowestOpt,
		&run.CreatedAt,
	); err != nil {
		return ScanRun{}, fmt.Errorf("scan run row: %w", err)
	}

	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return ScanRun{}, fmt.Errorf("parse oracle price %q: %w", price, err)
	}
	run.OraclePrice = parsed

	if lowestOpt != nil {
		lowest, err := decimal.NewFromString(*lowestOpt)
		if err != nil {
			return ScanRun{}, fmt.Errorf("parse lowest ratio %q: %w", *lowestOpt, err)
		}
		run.LowestRatioPct = &lowest
	}
	return run, nil
}

func scanLiquidation(rows pgx.Rows) (LiquidationRecord, error) {
	var (
		record LiquidationRecord
		amount string
		payout string
		status string
	)

	if err := rows.Scan(
		&record.ID,
		&record.RunID,
		&record.VaultOwner,
		&amount,
		&payout,
		&record.TxHash,
		&status,
		&record.Error,
		&record.CreatedAt,
	); err != nil {
		return LiquidationRecord{}, fmt.Errorf("scan liquidation row: %w", err)
	}

	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return LiquidationRecord{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	parsedPayout, err := decimal.NewFromString(payout)
	if err != nil {
		return LiquidationRecord{}, fmt.Errorf("parse payout %q: %w", payout, err)
	}

	record.Amount = parsedAmount
	record.ExpectedPayout = parsedPayout
	record.Status = LiquidationStatus(status)
	return record, nil
}
