// Package extraction implements the three-stage Producer/Enricher/Merger
// extraction engine: cursor-paged reads that fan out through many-to-many
// junction tables and flush accumulated film_work ids into a final
// aggregation query.
package extraction

import (
	"context"
	"time"

	"github.com/filmcatalog/pges-sync/internal/storage"
)

// Stage is the common paged-extractor contract implemented by Producer,
// Enricher, and Merger (composition, not inheritance — the three stages
// differ enough in cursor discipline that a shared base type would hide
// more than it shares). Next returns the next non-empty batch; an empty
// batch with a nil error means the stage is exhausted. A stage is
// non-restartable: once exhausted, further calls keep returning (nil, nil).
type Stage[T any] interface {
	Next(ctx context.Context) ([]T, error)
}

// Producer is the cursor-paged first-stage extractor (C5). It repeatedly
// executes query bound to its current updated_at cursor, advancing the
// cursor to the last yielded record's cursor field after each batch.
type Producer[T any] struct {
	session  *storage.Session
	name     string
	query    func(updatedAt time.Time, limit int) (string, []any)
	scan     storage.RowScanner[T]
	cursorOf func(T) time.Time
	limit    int
	cursor   time.Time
	done     bool
}

// NewProducer builds a Producer reading through session, starting at cursor
// start and paging limit rows at a time. cursorOf extracts the field used to
// advance the cursor (typically updated_at) from a yielded record.
func NewProducer[T any](
	session *storage.Session,
	name string,
	query func(updatedAt time.Time, limit int) (string, []any),
	scan storage.RowScanner[T],
	cursorOf func(T) time.Time,
	start time.Time,
	limit int,
) *Producer[T] {
	return &Producer[T]{
		session:  session,
		name:     name,
		query:    query,
		scan:     scan,
		cursorOf: cursorOf,
		limit:    limit,
		cursor:   start,
	}
}

// Next executes the bound query, materializes the batch, and advances the
// cursor. An empty result terminates the sequence permanently.
func (p *Producer[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, nil
	}

	sqlText, args := p.query(p.cursor, p.limit)

	batch, err := storage.Query(ctx, p.session, p.name, sqlText, args, p.scan)
	if err != nil {
		return nil, err
	}

	if len(batch) == 0 {
		p.done = true

		return nil, nil
	}

	p.cursor = p.cursorOf(batch[len(batch)-1])

	return batch, nil
}

// Cursor returns the producer's current updated_at bound, for callers that
// log or test progress.
func (p *Producer[T]) Cursor() time.Time {
	return p.cursor
}
