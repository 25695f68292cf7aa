// Package idempotency provides inbox-pattern deduplication for analyzer
// message ingestion. Devices retry on network failure; with the inbox
// enabled a resend returns the stored outcome instead of reprocessing.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Status represents the processing status of an inbox entry
type Status string

const (
	StatusStarted  Status = "STARTED"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

// ErrInProgress indicates the same message is currently being processed by
// another request.
var ErrInProgress = errors.New("message in progress by another handler")

// Config holds inbox configuration
type Config struct {
	// TTL is how long finished entries are retained.
	TTL time.Duration
	// StaleAfter is when a STARTED entry is considered abandoned and
	// eligible for reprocessing.
	StaleAfter time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		TTL:        72 * time.Hour,
		StaleAfter: 5 * time.Minute,
	}
}

// Inbox manages idempotent message processing backed by Postgres.
type Inbox struct {
	pool   *pgxpool.Pool
	config Config
	logger *zap.Logger
}

// NewInbox creates a new inbox
func NewInbox(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{pool: pool, config: cfg, logger: logger}
}

// MessageKey derives the deterministic dedupe key for a posted payload.
func MessageKey(machineID, protocol, body string) string {
	hash := sha256.Sum256([]byte(machineID + "|" + protocol + "|" + body))
	return hex.EncodeToString(hash[:])
}

// HandlerFunc runs the actual processing and returns a JSON-encodable result
// stored alongside the entry.
type HandlerFunc func(ctx context.Context) (json.RawMessage, error)

// Process executes fn at most once per key. A duplicate returns the stored
// result; a concurrent in-flight duplicate returns ErrInProgress.
func (i *Inbox) Process(ctx context.Context, key, handlerName string, fn HandlerFunc) (json.RawMessage, error) {
	status, result, err := i.claim(ctx, key, handlerName)
	if err != nil {
		return nil, fmt.Errorf("claim inbox entry: %w", err)
	}

	switch status {
	case StatusFinished:
		return result, nil
	case StatusFailed:
		// A permanently failed message is not retried automatically.
		return nil, fmt.Errorf("message previously failed: %s", key)
	case StatusStarted:
		return nil, ErrInProgress
	}

	result, handlerErr := fn(ctx)
	if handlerErr != nil {
		if err := i.finish(ctx, key, StatusFailed, nil); err != nil {
			i.logger.Error("failed to mark inbox entry failed", zap.Error(err))
		}
		return nil, handlerErr
	}

	if err := i.finish(ctx, key, StatusFinished, result); err != nil {
		// The handler succeeded; losing the marker only costs dedupe.
		i.logger.Error("failed to mark inbox entry finished", zap.Error(err))
	}
	return result, nil
}

// claim inserts the entry as STARTED, or reports the state of an existing
// one. Stale STARTED entries are reclaimed in place.
func (i *Inbox) claim(ctx context.Context, key, handlerName string) (Status, json.RawMessage, error) {
	insert := `
		INSERT INTO inbox (idempotency_key, handler_name, status, expires_at)
		VALUES ($1, $2, $3, NOW() + $4::interval)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key
	`

	var claimed string
	err := i.pool.QueryRow(ctx, insert, key, handlerName, StatusStarted, i.config.TTL.String()).Scan(&claimed)
	if err == nil {
		return "", nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", nil, err
	}

	// Conflict: inspect the existing entry.
	var (
		status    Status
		result    json.RawMessage
		updatedAt time.Time
	)
	query := `SELECT status, result, updated_at FROM inbox WHERE idempotency_key = $1`
	if err := i.pool.QueryRow(ctx, query, key).Scan(&status, &result, &updatedAt); err != nil {
		return "", nil, err
	}

	if status == StatusStarted && time.Since(updatedAt) > i.config.StaleAfter {
		reclaim := `
			UPDATE inbox SET updated_at = NOW()
			WHERE idempotency_key = $1 AND status = $2
		`
		if _, err := i.pool.Exec(ctx, reclaim, key, StatusStarted); err != nil {
			return "", nil, err
		}
		return "", nil, nil
	}

	return status, result, nil
}

func (i *Inbox) finish(ctx context.Context, key string, status Status, result json.RawMessage) error {
	query := `
		UPDATE inbox
		SET status = $1, result = $2, updated_at = NOW()
		WHERE idempotency_key = $3
	`
	_, err := i.pool.Exec(ctx, query, status, result, key)
	return err
}

// Cleanup removes expired entries. Callers run it periodically.
func (i *Inbox) Cleanup(ctx context.Context) (int64, error) {
	result, err := i.pool.Exec(ctx, `DELETE FROM inbox WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
