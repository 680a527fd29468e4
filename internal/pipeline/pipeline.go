package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filmcatalog/pges-sync/internal/extraction"
	"github.com/filmcatalog/pges-sync/internal/storage"
)

const (
	searchIndex = "movies"

	defaultProducerLimit = 100
	defaultEnricherLimit = 100
	defaultMergerLimit   = 100
)

var pipelineLogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// warnOncePartial logs, the first time only, that a pipeline writes partial
// documents: via-person does not re-fetch genre, via-genre does not
// re-fetch persons, and a search engine _doc PUT is a full-document
// replace, not a merge.
func warnOncePartial(once *sync.Once, pipelineName string) {
	once.Do(func() {
		pipelineLogger.Warn("pipeline emits partial documents; _doc PUT replaces rather than merges",
			slog.String("pipeline", pipelineName))
	})
}

// Pipeline is a fully assembled stage chain that yields documents ready for
// the sink.
type Pipeline interface {
	Next(ctx context.Context) ([]Document, error)
}

// direct wraps the fw_full Producer, the simplest of the three chains: one
// stage, no fan-out.
type direct struct {
	stage extraction.Stage[storage.FilmWork]
}

func (d *direct) Next(ctx context.Context) ([]Document, error) {
	batch, err := d.stage.Next(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, len(batch))
	for i, fw := range batch {
		docs[i] = FromFilmWork(fw)
	}

	return docs, nil
}

// NewDirect builds the Direct pipeline: Producer(fw_full) emits complete
// documents straight to the sink.
func NewDirect(session *storage.Session, start time.Time) Pipeline {
	producer := extraction.NewProducer(
		session,
		"fw_full",
		storage.FilmWorkFullQuery,
		storage.ScanFilmWorks,
		func(fw storage.FilmWork) time.Time { return fw.UpdatedAt },
		start,
		defaultProducerLimit,
	)

	return &direct{stage: producer}
}

type viaPersons struct {
	stage extraction.Stage[storage.FilmWorkPersons]
	warn  sync.Once
}

func (v *viaPersons) Next(ctx context.Context) ([]Document, error) {
	warnOncePartial(&v.warn, "via-person")

	batch, err := v.stage.Next(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, len(batch))
	for i, fwp := range batch {
		docs[i] = FromFilmWorkPersons(fwp)
	}

	return docs, nil
}

// NewViaPerson builds the Via-person pipeline: Producer(nested_pre('person'))
// yields person ids changed since the cursor, the Enricher fans each out to
// the film_works linked through person_film_work, and the Merger
// deduplicates and flushes through fw_persons.
func NewViaPerson(session *storage.Session, start time.Time) Pipeline {
	producer := extraction.NewProducer(
		session,
		"nested_pre_person",
		func(updatedAt time.Time, limit int) (string, []any) {
			sqlText, args, err := storage.NestedPreQuery("person", updatedAt, limit)
			if err != nil {
				panic(err) // "person" is a fixed, valid dataName: cannot fail
			}

			return sqlText, args
		},
		storage.ScanBaseRecords,
		func(r storage.BaseRecord) time.Time { return r.UpdatedAt },
		start,
		defaultProducerLimit,
	)

	ids := extraction.MapStage[storage.BaseRecord, uuid.UUID](producer, func(r storage.BaseRecord) uuid.UUID { return r.ID })
	enricher := extraction.NewEnricher(session, "nested_fw_ids_person", "person", ids, defaultEnricherLimit)
	merger := extraction.NewMerger(session, "fw_persons", storage.FilmWorkPersonsQuery, storage.ScanFilmWorkPersons, enricher, defaultMergerLimit)

	return &viaPersons{stage: merger}
}

type viaGenres struct {
	stage extraction.Stage[storage.FilmWorkGenres]
	warn  sync.Once
}

func (v *viaGenres) Next(ctx context.Context) ([]Document, error) {
	warnOncePartial(&v.warn, "via-genre")

	batch, err := v.stage.Next(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, len(batch))
	for i, fwg := range batch {
		docs[i] = FromFilmWorkGenres(fwg)
	}

	return docs, nil
}

// NewViaGenre builds the Via-genre pipeline, the genre-side analogue of
// NewViaPerson: Producer(nested_pre('genre')) -> Enricher(genre_film_work) ->
// Merger(fw_genres).
func NewViaGenre(session *storage.Session, start time.Time) Pipeline {
	producer := extraction.NewProducer(
		session,
		"nested_pre_genre",
		func(updatedAt time.Time, limit int) (string, []any) {
			sqlText, args, err := storage.NestedPreQuery("genre", updatedAt, limit)
			if err != nil {
				panic(err) // "genre" is a fixed, valid dataName: cannot fail
			}

			return sqlText, args
		},
		storage.ScanBaseRecords,
		func(r storage.BaseRecord) time.Time { return r.UpdatedAt },
		start,
		defaultProducerLimit,
	)

	ids := extraction.MapStage[storage.BaseRecord, uuid.UUID](producer, func(r storage.BaseRecord) uuid.UUID { return r.ID })
	enricher := extraction.NewEnricher(session, "nested_fw_ids_genre", "genre", ids, defaultEnricherLimit)
	merger := extraction.NewMerger(session, "fw_genres", storage.FilmWorkGenresQuery, storage.ScanFilmWorkGenres, enricher, defaultMergerLimit)

	return &viaGenres{stage: merger}
}

// Run drains pipeline batch by batch, indexing every document into the
// sink's movies index, until the pipeline reports exhaustion.
func Run(ctx context.Context, sink Sink, p Pipeline) error {
	for {
		docs, err := p.Next(ctx)
		if err != nil {
			return err
		}

		if len(docs) == 0 {
			return nil
		}

		for _, doc := range docs {
			if err := sink.Index(ctx, searchIndex, doc.ID, doc); err != nil {
				return err
			}
		}
	}
}

// RunAll drives the Direct, Via-person and Via-genre pipelines in sequence,
// each starting from the same cursor. A later pipeline can overwrite the
// partial documents written by an earlier one; the search engine applies
// whichever upsert arrives last.
func RunAll(ctx context.Context, session *storage.Session, sink Sink, start time.Time) error {
	pipelines := []Pipeline{
		NewDirect(session, start),
		NewViaPerson(session, start),
		NewViaGenre(session, start),
	}

	for _, p := range pipelines {
		if err := Run(ctx, sink, p); err != nil {
			return err
		}
	}

	return nil
}
