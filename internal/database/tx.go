package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"
)

type TxOptions struct {
	IsolationLevel sql.IsolationLevel
	ReadOnly       bool
	MaxRetries     int
	// LockTimeout bounds how long a statement waits for a row lock.
	// Zero leaves the server default in place.
	LockTimeout time.Duration
}

func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		ReadOnly:       false,
		MaxRetries:     3,
		LockTimeout:    5 * time.Second,
	}
}

// BeginTx starts a transaction and applies the per-transaction settings in opts.
func BeginTx(ctx context.Context, db *sql.DB, opts TxOptions) (*sql.Tx, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if opts.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", opts.LockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("set lock timeout: %w", err)
		}
	}

	return tx, nil
}

func WithTransaction(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	tx, err := BeginTx(ctx, db, opts)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Retry runs fn until it succeeds, fails permanently, or maxRetries retries
// have been spent. fn must leave no state behind when it fails.
func Retry(ctx context.Context, maxRetries int, fn func(attempt int) error) error {
	backoff := initialBackoff

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return err
		}

		if attempt >= maxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, err)
		}

		timer := time.NewTimer(withJitter(backoff))

		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		backoff = nextBackoff(backoff)
	}
}

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

func nextBackoff(backoff time.Duration) time.Duration {
	if backoff >= maxBackoff/2 {
		return maxBackoff
	}
	return backoff * 2
}

// withJitter adds up to a quarter of backoff on top of it.
func withJitter(backoff time.Duration) time.Duration {
	return backoff + time.Duration(rand.Int63n(int64(backoff/4)+1))
}
