// Package pgstore is the PostgreSQL implementation of catalog.Store.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Debrato2005/OrbitOps/internal/catalog"
)

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store persists conjunction events in the conjunctions table.
type Store struct {
	db     *sql.DB
	exec   executor
	inTx   bool
	logger *slog.Logger
}

// Open connects to PostgreSQL, configures the pool and verifies the
// connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", catalog.ErrStoreUnavailable, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", catalog.ErrStoreUnavailable, err)
	}

	logger.Info("database connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
	)
	return New(db, logger), nil
}

// New wraps an existing pool.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, exec: db, logger: logger}
}

const schema = `
CREATE TABLE IF NOT EXISTS conjunctions (
	id                  BIGSERIAL PRIMARY KEY,
	primary_id          INTEGER NOT NULL,
	secondary_id        INTEGER NOT NULL,
	primary_name        TEXT NOT NULL DEFAULT '',
	secondary_name      TEXT NOT NULL DEFAULT '',
	tca                 TIMESTAMPTZ NOT NULL,
	miss_distance_km    DOUBLE PRECISION NOT NULL CHECK (miss_distance_km >= 0),
	relative_speed_km_s DOUBLE PRECISION NOT NULL CHECK (relative_speed_km_s >= 0),
	probability         DOUBLE PRECISION,
	provenance          TEXT NOT NULL,
	maneuver_status     TEXT NOT NULL DEFAULT 'pending',
	maneuver            JSONB,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	UNIQUE (primary_id, secondary_id, tca)
);
CREATE INDEX IF NOT EXISTS conjunctions_secondary_idx ON conjunctions (secondary_id);
CREATE INDEX IF NOT EXISTS conjunctions_tca_idx ON conjunctions (tca);
`

// InitSchema creates the conjunctions table and its indexes.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.exec.ExecContext(ctx, schema); err != nil {
		return s.wrap("init schema", err)
	}
	return nil
}

const columns = `id, primary_id, secondary_id, primary_name, secondary_name, tca,
	miss_distance_km, relative_speed_km_s, probability, provenance,
	maneuver_status, maneuver, created_at, updated_at`

// The unique constraint resolves concurrent writers; a conflicting insert
// becomes the merge update instead of failing the transaction.
const upsertQuery = `
INSERT INTO conjunctions (
	primary_id, secondary_id, primary_name, secondary_name, tca,
	miss_distance_km, relative_speed_km_s, probability, provenance,
	maneuver_status, maneuver, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (primary_id, secondary_id, tca) DO UPDATE SET
	primary_name = EXCLUDED.primary_name,
	secondary_name = EXCLUDED.secondary_name,
	miss_distance_km = EXCLUDED.miss_distance_km,
	relative_speed_km_s = EXCLUDED.relative_speed_km_s,
	probability = COALESCE(EXCLUDED.probability, conjunctions.probability),
	provenance = EXCLUDED.provenance,
	updated_at = EXCLUDED.updated_at
RETURNING ` + columns

// Upsert implements catalog.Store.
func (s *Store) Upsert(ctx context.Context, e catalog.Event) (catalog.Event, error) {
	maneuver, err := encodeManeuver(e.Maneuver)
	if err != nil {
		return catalog.Event{}, err
	}

	row := s.exec.QueryRowContext(ctx, upsertQuery,
		e.PrimaryID,
		e.SecondaryID,
		e.PrimaryName,
		e.SecondaryName,
		e.TCA,
		e.MissDistanceKm,
		e.RelativeSpeedKmS,
		nullFloat(e.Probability),
		string(e.Provenance),
		string(e.ManeuverStatus),
		maneuver,
		e.CreatedAt,
		e.UpdatedAt,
	)
	stored, err := scanEvent(row)
	if err != nil {
		return catalog.Event{}, s.wrap("upsert conjunction", err)
	}

	s.logger.Debug("conjunction upserted",
		"id", stored.ID,
		"primary_id", stored.PrimaryID,
		"secondary_id", stored.SecondaryID,
	)
	return stored, nil
}

// Get implements catalog.Store.
func (s *Store) Get(ctx context.Context, id int64) (catalog.Event, error) {
	row := s.exec.QueryRowContext(ctx, `SELECT `+columns+` FROM conjunctions WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Event{}, fmt.Errorf("%w: id %d", catalog.ErrNotFound, id)
		}
		return catalog.Event{}, s.wrap("get conjunction", err)
	}
	return e, nil
}

// buildList turns a filter into a WHERE clause and its arguments.
func buildList(f catalog.Filter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ObjectID != 0 {
		p := arg(f.ObjectID)
		where = append(where, fmt.Sprintf("(primary_id = %s OR secondary_id = %s)", p, p))
	}
	if f.PrimaryID != 0 {
		where = append(where, "primary_id = "+arg(f.PrimaryID))
	}
	if f.Provenance != "" {
		where = append(where, "provenance = "+arg(string(f.Provenance)))
	}
	if f.HighRisk {
		floor := arg(f.Criteria.SafetyFloorKm)
		threshold := arg(f.Criteria.ProbabilityThreshold)
		where = append(where, fmt.Sprintf("miss_distance_km < %s AND (probability IS NULL OR probability >= %s)", floor, threshold))
	}
	if f.Urgent {
		now := arg(f.Now.UTC())
		limit := arg(f.Now.Add(f.Criteria.Horizon).UTC())
		where = append(where, fmt.Sprintf("tca > %s AND tca <= %s", now, limit))
	}

	query := `SELECT ` + columns + ` FROM conjunctions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY tca ASC, id ASC", args
}

// List implements catalog.Store.
func (s *Store) List(ctx context.Context, f catalog.Filter) ([]catalog.Event, error) {
	query, args := buildList(f)
	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap("list conjunctions", err)
	}
	defer rows.Close()

	events := make([]catalog.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, s.wrap("scan conjunction", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("iterate conjunctions", err)
	}
	return events, nil
}

const deleteLocalQuery = `
DELETE FROM conjunctions
WHERE primary_id = $1
  AND provenance = 'local'
  AND NOT (id = ANY($2))
  AND NOT (secondary_id = ANY($3))
  AND ($4::timestamptz IS NULL OR tca >= $4)
  AND ($5::timestamptz IS NULL OR tca <= $5)`

// DeleteLocal implements catalog.Store.
func (s *Store) DeleteLocal(ctx context.Context, sw catalog.Sweep) (int64, error) {
	keepIDs := pq.Int64Array(append(make([]int64, 0, len(sw.Keep)), sw.Keep...))
	protectedIDs := make(pq.Int64Array, 0, len(sw.Protected))
	for _, id := range sw.Protected {
		protectedIDs = append(protectedIDs, int64(id))
	}

	res, err := s.exec.ExecContext(ctx, deleteLocalQuery,
		sw.PrimaryID, keepIDs, protectedIDs, nullTime(sw.From), nullTime(sw.To))
	if err != nil {
		return 0, s.wrap("delete local conjunctions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.wrap("delete local conjunctions", err)
	}
	if n > 0 {
		s.logger.Debug("stale local conjunctions removed", "primary_id", sw.PrimaryID, "count", n)
	}
	return n, nil
}

// SetManeuver implements catalog.Store.
func (s *Store) SetManeuver(ctx context.Context, id int64, status catalog.ManeuverStatus, sol *catalog.ManeuverSolution, at time.Time) error {
	maneuver, err := encodeManeuver(sol)
	if err != nil {
		return err
	}
	res, err := s.exec.ExecContext(ctx,
		`UPDATE conjunctions SET maneuver_status = $2, maneuver = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), maneuver, at.UTC(),
	)
	if err != nil {
		return s.wrap("set maneuver", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.wrap("set maneuver", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", catalog.ErrNotFound, id)
	}
	return nil
}

// InTx runs fn inside a database transaction, committing if it returns nil
// and rolling back otherwise. Nested calls join the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(catalog.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("begin transaction", err)
	}
	s.logger.Debug("transaction started")

	txStore := &Store{db: s.db, exec: tx, inTx: true, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("failed to rollback transaction",
				"error", rbErr,
				"original_error", err,
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return s.wrap("commit transaction", err)
	}
	s.logger.Debug("transaction committed")
	return nil
}

// Ping checks connectivity and that queries run.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return s.wrap("database health check", err)
	}
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return s.wrap("database query check", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	if s.inTx {
		return nil
	}
	s.logger.Info("closing database connection")
	return s.db.Close()
}

// wrap classifies a database error: integrity violations (SQLSTATE class 23)
// are invalid events, everything else means the store is unavailable.
func (s *Store) wrap(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return fmt.Errorf("%w: %s: %v", catalog.ErrInvalidEvent, op, err)
	}
	return fmt.Errorf("%w: %s: %v", catalog.ErrStoreUnavailable, op, err)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(sc scanner) (catalog.Event, error) {
	var (
		e           catalog.Event
		probability sql.NullFloat64
		provenance  string
		status      string
		maneuver    []byte
	)
	err := sc.Scan(
		&e.ID,
		&e.PrimaryID,
		&e.SecondaryID,
		&e.PrimaryName,
		&e.SecondaryName,
		&e.TCA,
		&e.MissDistanceKm,
		&e.RelativeSpeedKmS,
		&probability,
		&provenance,
		&status,
		&maneuver,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return catalog.Event{}, err
	}

	e.TCA = e.TCA.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	e.Provenance = catalog.Provenance(provenance)
	e.ManeuverStatus = catalog.ManeuverStatus(status)
	if probability.Valid {
		p := probability.Float64
		e.Probability = &p
	}
	if len(maneuver) > 0 {
		var sol catalog.ManeuverSolution
		if err := json.Unmarshal(maneuver, &sol); err != nil {
			return catalog.Event{}, fmt.Errorf("decode maneuver for id %d: %w", e.ID, err)
		}
		e.Maneuver = &sol
	}
	return e, nil
}

func encodeManeuver(sol *catalog.ManeuverSolution) (interface{}, error) {
	if sol == nil {
		return nil, nil
	}
	b, err := json.Marshal(sol)
	if err != nil {
		return nil, fmt.Errorf("encode maneuver: %w", err)
	}
	return b, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

var _ catalog.Store = (*Store)(nil)
