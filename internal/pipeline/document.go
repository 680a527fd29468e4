// Package pipeline wires the three extraction stages together into the
// preconfigured Direct, Via-person and Via-genre pipelines and drives them
// against a sink.
package pipeline

import (
	"context"

	"github.com/filmcatalog/pges-sync/internal/storage"
)

// Sink is the destination a driven pipeline pushes documents to. It is
// satisfied by *search.Client; the interface exists so tests can substitute
// an in-memory double without spinning up an HTTP server.
type Sink interface {
	Index(ctx context.Context, index, id string, document any) error
}

// Document is the sink-facing shape a record is translated into: the
// storage layer's fw_id becomes id, genres becomes genre (singular, to
// match the search engine's field naming), and updated_at is dropped since
// it is a sync-internal cursor value, not catalog data.
type Document struct {
	ID          string   `json:"id"`
	IMDBRating  *float64 `json:"imdb_rating,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Genre       []string `json:"genre,omitempty"`
	Director    []string `json:"director,omitempty"`
	ActorsNames []string `json:"actors_names,omitempty"`
	WritersNames []string `json:"writers_names,omitempty"`
	Actors      []storage.Person `json:"actors,omitempty"`
	Writers     []storage.Person `json:"writers,omitempty"`
}

// FromFilmWork translates a full fw_full record into its document shape.
func FromFilmWork(fw storage.FilmWork) Document {
	doc := Document{
		ID:           fw.ID.String(),
		Title:        fw.Title,
		Genre:        fw.Genres,
		Director:     fw.Director,
		ActorsNames:  fw.ActorsNames,
		WritersNames: fw.WritersNames,
		Actors:       fw.Actors,
		Writers:      fw.Writers,
	}

	if fw.IMDBRating.Valid {
		doc.IMDBRating = &fw.IMDBRating.Float64
	}

	if fw.Description.Valid {
		doc.Description = &fw.Description.String
	}

	return doc
}

// FromFilmWorkPersons translates a partial fw_persons record (via-person
// pipeline) into its document shape. Genre fields are absent: this
// pipeline never re-fetches genre and the document it produces is a
// partial update.
func FromFilmWorkPersons(fwp storage.FilmWorkPersons) Document {
	return Document{
		ID:           fwp.FilmWorkID.String(),
		Director:     fwp.Director,
		ActorsNames:  fwp.ActorsNames,
		WritersNames: fwp.WritersNames,
		Actors:       fwp.Actors,
		Writers:      fwp.Writers,
	}
}

// FromFilmWorkGenres translates a partial fw_genres record (via-genre
// pipeline) into its document shape.
func FromFilmWorkGenres(fwg storage.FilmWorkGenres) Document {
	return Document{
		ID:    fwg.FilmWorkID.String(),
		Genre: fwg.Genres,
	}
}
