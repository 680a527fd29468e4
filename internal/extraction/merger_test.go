package extraction_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmcatalog/pges-sync/internal/extraction"
	"github.com/filmcatalog/pges-sync/internal/storage"
)

func baseRecordStage(ids ...uuid.UUID) *fixedStage[storage.BaseRecord] {
	batch := make([]storage.BaseRecord, len(ids))
	for i, id := range ids {
		batch[i] = storage.BaseRecord{ID: id}
	}

	return &fixedStage[storage.BaseRecord]{batches: [][]storage.BaseRecord{batch}}
}

func TestMergerFlushesOnceAccumulatorExceedsSetLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	session, testDB := openSession(ctx, t)
	db := testDB.Connection

	var fw1, fw2 uuid.UUID
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO content.film_work (title) VALUES ($1) RETURNING id`, "A",
	).Scan(&fw1))
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO content.film_work (title) VALUES ($1) RETURNING id`, "B",
	).Scan(&fw2))

	var genreID uuid.UUID
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO content.genre (name) VALUES ($1) RETURNING id`, "Drama",
	).Scan(&genreID))

	for _, fwID := range []uuid.UUID{fw1, fw2} {
		_, err := db.ExecContext(ctx,
			`INSERT INTO content.genre_film_work (film_work_id, genre_id) VALUES ($1, $2)`, fwID, genreID,
		)
		require.NoError(t, err)
	}

	upstream := baseRecordStage(fw1, fw2)
	m := extraction.NewMerger(session, "fw_genres", storage.FilmWorkGenresQuery, storage.ScanFilmWorkGenres, upstream, 1)

	batch, err := m.Next(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	ids := map[uuid.UUID]struct{}{batch[0].FilmWorkID: {}, batch[1].FilmWorkID: {}}
	assert.Contains(t, ids, fw1)
	assert.Contains(t, ids, fw2)

	// Accumulator was fully drained by the flush; upstream is exhausted, so
	// the next call returns nothing further to do.
	batch, err = m.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestMergerDeduplicatesWithinAFlush(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	session, testDB := openSession(ctx, t)
	db := testDB.Connection

	var fwID uuid.UUID
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO content.film_work (title) VALUES ($1) RETURNING id`, "Shared",
	).Scan(&fwID))

	// The same film_work id reaches the Merger twice (once per actor it's
	// linked through); the flush must still emit it exactly once.
	upstream := &fixedStage[storage.BaseRecord]{
		batches: [][]storage.BaseRecord{{{ID: fwID}, {ID: fwID}}},
	}

	m := extraction.NewMerger(session, "fw_genres", storage.FilmWorkGenresQuery, storage.ScanFilmWorkGenres, upstream, 0)

	batch, err := m.Next(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, fwID, batch[0].FilmWorkID)
}

func TestMergerFinalFlushOnUpstreamExhaustion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	session, testDB := openSession(ctx, t)
	db := testDB.Connection

	var fwID uuid.UUID
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO content.film_work (title) VALUES ($1) RETURNING id`, "Solo",
	).Scan(&fwID))

	upstream := baseRecordStage(fwID)
	m := extraction.NewMerger(session, "fw_genres", storage.FilmWorkGenresQuery, storage.ScanFilmWorkGenres, upstream, 100)

	batch, err := m.Next(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1, "a single accumulated id below set_limit must still flush once upstream is exhausted")
	assert.Equal(t, fwID, batch[0].FilmWorkID)
}
