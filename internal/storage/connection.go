// Package storage provides the PostgreSQL session, query templates, and
// typed row projections the extraction stages read through.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/filmcatalog/pges-sync/internal/retry"
)

const (
	postgresDriver = "postgres"
	pingTimeout    = 5 * time.Second
)

// Sentinel errors for session operations.
var (
	// ErrFatalQuery is returned (wrapped) when a query fails for a non-retryable
	// reason: bad SQL, an unknown column, a constraint violation. The caller
	// must not retry.
	ErrFatalQuery = errors.New("fatal query error")

	// ErrSessionClosed is returned when an operation is attempted on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// retryableSQLStates are PostgreSQL SQLSTATE class codes that indicate a
// transient connection or operational failure: class 08 (connection
// exception) plus admin shutdown / crash codes. Everything else — syntax
// errors (42601), undefined column (42703), constraint violations (23xxx) —
// is a programmer failure and is fatal.
var retryableSQLStates = map[string]bool{
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"08001": true, // sqlclient_unable_to_establish_sqlconnection
	"08004": true, // sqlserver_rejected_establishment_of_sqlconnection
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// Session is a scoped database session with reconnect-on-failure query
// execution (C2). The zero value is not usable; construct with Open.
type Session struct {
	mu     sync.Mutex
	db     *sql.DB
	dsn    string
	policy retry.Policy
	logger *slog.Logger
	closed bool
}

// Open establishes a database connection under the retry envelope and
// returns a ready-to-use Session. Connection failures are retried forever
// per policy; the call blocks until a connection succeeds or ctx is done.
func Open(ctx context.Context, dsn string, policy retry.Policy) (*Session, error) {
	s := &Session{
		dsn:    dsn,
		policy: policy,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// connect dials the database and pings it, retrying transient failures
// under the configured backoff policy. A malformed DSN is a programmer
// error and is not retried.
func (s *Session) connect(ctx context.Context) error {
	return retry.Do(ctx, s.policy, func() error {
		db, err := sql.Open(postgresDriver, s.dsn)
		if err != nil {
			return retry.Permanent(fmt.Errorf("%w: %w", ErrFatalQuery, err))
		}

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()

			if !isRetryable(err) {
				return retry.Permanent(fmt.Errorf("%w: %w", ErrFatalQuery, err))
			}

			s.logger.Error("database ping failed, will retry", slog.String("error", err.Error()))

			return err
		}

		s.mu.Lock()
		s.db = db
		s.mu.Unlock()

		return nil
	})
}

// Query executes sqlText with args and fully materializes the result into
// rows via scan. On a retryable connection/operational failure it logs,
// transparently reconnects under the retry envelope, and re-executes. On a
// syntactic or semantic SQL failure it returns ErrFatalQuery without retrying.
func Query[T any](ctx context.Context, s *Session, name, sqlText string, args []any, scan RowScanner[T]) ([]T, error) {
	var result []T

	err := retry.Do(ctx, s.policy, func() error {
		s.mu.Lock()
		db := s.db
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return retry.Permanent(ErrSessionClosed)
		}

		rows, err := db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return s.classify(ctx, name, err)
		}
		defer func() { _ = rows.Close() }()

		batch, err := scan(rows)
		if err != nil {
			return retry.Permanent(fmt.Errorf("%w: row projection failed for %s: %w", ErrFatalQuery, name, err))
		}

		if err := rows.Err(); err != nil {
			return s.classify(ctx, name, err)
		}

		result = batch

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// classify distinguishes a retryable connection/operational failure from a
// fatal SQL semantic error, reconnecting transparently in the retryable
// case. It logs at ERROR level with the query name (never the bound values,
// which may contain identifiers derived from user data).
func (s *Session) classify(ctx context.Context, name string, err error) error {
	if !isRetryable(err) {
		s.logger.Error("fatal query error", slog.String("query", name), slog.String("error", err.Error()))

		return retry.Permanent(fmt.Errorf("%w: %s: %w", ErrFatalQuery, name, err))
	}

	s.logger.Error("transient query error, reconnecting", slog.String("query", name), slog.String("error", err.Error()))

	if reErr := s.connect(ctx); reErr != nil {
		return reErr
	}

	return err // keep retrying the original query under the same envelope
}

// isRetryable reports whether err represents a transient connection or
// operational failure rather than a programmer error.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableSQLStates[string(pqErr.Code)]
	}

	// Anything else surfaced directly by database/sql at the connection
	// level (e.g. driver.ErrBadConn, network timeouts) is treated as
	// retryable: only a classified *pq.Error can prove a SQL semantic fault.
	return !errors.Is(err, sql.ErrNoRows)
}

// Close releases the underlying connection pool. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.db == nil {
		s.closed = true

		return nil
	}

	s.closed = true

	return s.db.Close()
}

// Stats returns the underlying connection pool's statistics.
func (s *Session) Stats() sql.DBStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Stats()
}
