package extraction

import (
	"context"

	"github.com/google/uuid"

	"github.com/filmcatalog/pges-sync/internal/storage"
)

const defaultSetLimit = 100

// Merger is the third-stage set-accumulating final emitter (C7). It
// accumulates film_work ids from its upstream Enricher into a deduplicating
// set and, once the set exceeds setLimit, flushes it through a final
// aggregation query.
type Merger[T any] struct {
	session  *storage.Session
	name     string
	query    func([]uuid.UUID) (string, []any, error)
	scan     storage.RowScanner[T]
	upstream Stage[storage.BaseRecord]
	setLimit int

	acc  map[uuid.UUID]struct{}
	done bool
}

// NewMerger builds a Merger reading through session, accumulating ids from
// upstream and flushing through query once the accumulator exceeds
// setLimit. A setLimit of 0 uses the default of 100.
func NewMerger[T any](
	session *storage.Session,
	name string,
	query func([]uuid.UUID) (string, []any, error),
	scan storage.RowScanner[T],
	upstream Stage[storage.BaseRecord],
	setLimit int,
) *Merger[T] {
	if setLimit <= 0 {
		setLimit = defaultSetLimit
	}

	return &Merger[T]{
		session:  session,
		name:     name,
		query:    query,
		scan:     scan,
		upstream: upstream,
		setLimit: setLimit,
		acc:      make(map[uuid.UUID]struct{}),
	}
}

// Next accumulates upstream batches until the set exceeds setLimit, then
// flushes. On upstream exhaustion, a non-empty accumulator is flushed once
// more before the Merger itself reports exhaustion.
func (m *Merger[T]) Next(ctx context.Context) ([]T, error) {
	if m.done {
		return nil, nil
	}

	for {
		batch, err := m.upstream.Next(ctx)
		if err != nil {
			return nil, err
		}

		if len(batch) == 0 {
			m.done = true

			if len(m.acc) > 0 {
				return m.flush(ctx)
			}

			return nil, nil
		}

		for _, record := range batch {
			m.acc[record.ID] = struct{}{}
		}

		if len(m.acc) > m.setLimit {
			return m.flush(ctx)
		}
	}
}

func (m *Merger[T]) flush(ctx context.Context) ([]T, error) {
	ids := make([]uuid.UUID, 0, len(m.acc))
	for id := range m.acc {
		ids = append(ids, id)
	}

	m.acc = make(map[uuid.UUID]struct{})

	sqlText, args, err := m.query(ids)
	if err != nil {
		return nil, err
	}

	return storage.Query(ctx, m.session, m.name, sqlText, args, m.scan)
}
