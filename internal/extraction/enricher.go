package extraction

import (
	"context"

	"github.com/google/uuid"

	"github.com/filmcatalog/pges-sync/internal/storage"
)

// Enricher is the second-stage fan-out (C6): for each outer batch of ids
// from its upstream producer, it pages through the related junction table
// by plain OFFSET/LIMIT (the joined rows have no cheap value cursor once
// filtered by an IN set), resetting the offset to 0 at the start of every
// outer batch.
type Enricher struct {
	session  *storage.Session
	name     string
	dataName string // "person" or "genre"
	upstream Stage[uuid.UUID]
	scan     storage.RowScanner[storage.BaseRecord]
	limit    int

	outer  []uuid.UUID
	offset int
	done   bool
}

// NewEnricher builds an Enricher reading through session, fanning the ids
// yielded by upstream out through dataName's junction table ("person" or
// "genre"), limit rows per inner page.
func NewEnricher(
	session *storage.Session,
	name string,
	dataName string,
	upstream Stage[uuid.UUID],
	limit int,
) *Enricher {
	return &Enricher{
		session:  session,
		name:     name,
		dataName: dataName,
		upstream: upstream,
		scan:     storage.ScanBaseRecords,
		limit:    limit,
	}
}

// Next returns the next non-empty page of related film_work ids. It
// transparently advances to the next outer batch (resetting offset to 0)
// when the current outer batch's inner pages are exhausted, and returns an
// empty batch only when the upstream producer itself is exhausted.
func (e *Enricher) Next(ctx context.Context) ([]storage.BaseRecord, error) {
	if e.done {
		return nil, nil
	}

	for {
		if e.outer == nil {
			batch, err := e.upstream.Next(ctx)
			if err != nil {
				return nil, err
			}

			if len(batch) == 0 {
				e.done = true

				return nil, nil
			}

			e.outer = batch
			e.offset = 0
		}

		sqlText, args, err := storage.NestedFilmWorkIDsQuery(e.dataName, e.outer, e.limit, e.offset)
		if err != nil {
			return nil, err
		}

		inner, err := storage.Query(ctx, e.session, e.name, sqlText, args, e.scan)
		if err != nil {
			return nil, err
		}

		if len(inner) == 0 {
			e.outer = nil

			continue
		}

		e.offset += e.limit

		return inner, nil
	}
}
