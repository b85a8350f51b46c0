package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/accrual-runner/internal/config"
	"github.com/accrual-runner/internal/models"
	"github.com/accrual-runner/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDB wraps the pgxpool connection
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB creates a new Postgres database connection
func NewPostgresDB(cfg *config.PostgresConfig) (*PostgresDB, error) {
	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable pool_max_conns=%d",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.MaxConnections,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - small configured value
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// PostgresSessionBackend stores sessions in the account_sessions table
type PostgresSessionBackend struct {
	db *PostgresDB
}

// NewPostgresSessionBackend creates a Postgres session backend. The table
// is created by the migrations under migrations/postgres.
func NewPostgresSessionBackend(db *PostgresDB) *PostgresSessionBackend {
	return &PostgresSessionBackend{db: db}
}

// Name implements SessionBackend
func (b *PostgresSessionBackend) Name() string { return "postgres" }

// Read implements SessionBackend
func (b *PostgresSessionBackend) Read(ctx context.Context, identifier string) (*models.SessionRecord, error) {
	if err := validateIdentifier(identifier); err != nil {
		return nil, err
	}

	query := `
		SELECT start_time_ms, total, pending, paid, referral_bonus, session_id, paused_duration_ms
		FROM account_sessions
		WHERE identifier = $1
	`

	var (
		startMs, pausedMs, sessionID int64
		earnings                     types.Earnings
		bonus                        float64
	)
	err := b.db.pool.QueryRow(ctx, query, identifier).Scan(
		&startMs, &earnings.Total, &earnings.Pending, &earnings.Paid, &bonus, &sessionID, &pausedMs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("query session: %w", err)
	}

	return &models.SessionRecord{
		StartTime:      time.UnixMilli(startMs),
		Earnings:       earnings,
		ReferralBonus:  bonus,
		SessionID:      sessionID,
		PausedDuration: time.Duration(pausedMs) * time.Millisecond,
	}, nil
}

// Write implements SessionBackend
func (b *PostgresSessionBackend) Write(ctx context.Context, identifier string, record *models.SessionRecord) error {
	if err := validateIdentifier(identifier); err != nil {
		return err
	}

	query := `
		INSERT INTO account_sessions (
			identifier, start_time_ms, total, pending, paid, referral_bonus, session_id, paused_duration_ms, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (identifier)
		DO UPDATE SET
			start_time_ms = EXCLUDED.start_time_ms,
			total = EXCLUDED.total,
			pending = EXCLUDED.pending,
			paid = EXCLUDED.paid,
			referral_bonus = EXCLUDED.referral_bonus,
			session_id = EXCLUDED.session_id,
			paused_duration_ms = EXCLUDED.paused_duration_ms,
			updated_at = NOW()
	`

	_, err := b.db.pool.Exec(ctx, query,
		identifier,
		record.StartTime.UnixMilli(),
		record.Earnings.Total,
		record.Earnings.Pending,
		record.Earnings.Paid,
		record.ReferralBonus,
		record.SessionID,
		record.PausedDuration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}
