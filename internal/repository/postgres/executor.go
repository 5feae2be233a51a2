package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/chitchat/internal/errs"
	"github.com/and161185/chitchat/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = time.Second
)

// connError marks a failure to obtain a connection; those are retried.
type connError struct{ err error }

func (e connError) Error() string { return "acquire connection: " + e.err.Error() }
func (e connError) Unwrap() error { return e.err }

// Executor runs each query in its own short transaction: begin, execute, commit.
// No connection is kept between calls.
type Executor struct {
	db            *DB
	log           *zap.Logger
	maxAttempts   int
	retryDelay    time.Duration
	onUnavailable func(error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetry sets the attempt ceiling and the fixed delay between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(e *Executor) {
		if attempts > 0 {
			e.maxAttempts = attempts
		}
		if delay >= 0 {
			e.retryDelay = delay
		}
	}
}

// WithUnavailableHook registers a callback fired when the retry ceiling is exceeded.
func WithUnavailableHook(fn func(error)) Option {
	return func(e *Executor) { e.onUnavailable = fn }
}

// NewExecutor constructs an executor over db.
func NewExecutor(db *DB, log *zap.Logger, opts ...Option) *Executor {
	e := &Executor{db: db, log: log, maxAttempts: DefaultMaxAttempts, retryDelay: DefaultRetryDelay}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ repository.Executor = (*Executor)(nil)

// Execute runs q, retrying connection failures up to the attempt ceiling.
// Past the ceiling it returns errs.ErrStoreUnavailable.
func (e *Executor) Execute(ctx context.Context, q repository.Query) (repository.Rows, error) {
	stmt := q.Statement()
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		rows, err := e.once(ctx, stmt, q)
		if err == nil {
			return rows, nil
		}
		if !isTransient(err) || ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", q.Name, err)
		}
		lastErr = err
		e.log.Warn("store call failed, retrying",
			zap.String("query", q.Name),
			zap.Int("attempt", attempt),
			zap.Int("max", e.maxAttempts),
			zap.Error(err),
		)
		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-time.After(e.retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.onUnavailable != nil {
		e.onUnavailable(lastErr)
	}
	return nil, fmt.Errorf("%s: %w: %v", q.Name, errs.ErrStoreUnavailable, lastErr)
}

func (e *Executor) once(ctx context.Context, stmt string, q repository.Query) (out repository.Rows, err error) {
	tx, err := e.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, connError{err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = cerr
			out = nil
		}
	}()

	if !q.WantResults {
		_, err = tx.Exec(ctx, stmt, q.Args...)
		return nil, err
	}

	rows, err := tx.Query(ctx, stmt, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		vals, verr := rows.Values()
		if verr != nil {
			return nil, verr
		}
		out = append(out, vals)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isTransient(err error) bool {
	var ce connError
	if errors.As(err, &ce) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
