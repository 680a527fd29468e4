package pipeline_test

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmcatalog/pges-sync/internal/pipeline"
	"github.com/filmcatalog/pges-sync/internal/storage"
)

func TestFromFilmWorkRenamesFieldsAndDropsUpdatedAt(t *testing.T) {
	id := uuid.New()
	fw := storage.FilmWork{
		ID:          id,
		IMDBRating:  sql.NullFloat64{Float64: 8.8, Valid: true},
		Title:       "Inception",
		Description: sql.NullString{String: "A heist within a dream", Valid: true},
		Genres:      []string{"Sci-Fi"},
		Director:    []string{"Christopher Nolan"},
		ActorsNames: []string{"Leonardo DiCaprio"},
	}

	doc := pipeline.FromFilmWork(fw)

	assert.Equal(t, id.String(), doc.ID)
	assert.Equal(t, []string{"Sci-Fi"}, doc.Genre)
	require.NotNil(t, doc.IMDBRating)
	assert.InDelta(t, 8.8, *doc.IMDBRating, 0.0001)
	require.NotNil(t, doc.Description)
	assert.Equal(t, "A heist within a dream", *doc.Description)
}

func TestFromFilmWorkOmitsUnsetOptionalFields(t *testing.T) {
	id := uuid.New()
	fw := storage.FilmWork{ID: id, Title: "Untitled"}

	doc := pipeline.FromFilmWork(fw)

	assert.Nil(t, doc.IMDBRating)
	assert.Nil(t, doc.Description)
}

func TestFromFilmWorkPersonsCarriesOnlyPersonFields(t *testing.T) {
	id := uuid.New()
	fwp := storage.FilmWorkPersons{
		FilmWorkID:  id,
		ActorsNames: []string{"Actor A"},
	}

	doc := pipeline.FromFilmWorkPersons(fwp)

	assert.Equal(t, id.String(), doc.ID)
	assert.Equal(t, []string{"Actor A"}, doc.ActorsNames)
	assert.Empty(t, doc.Genre)
}

func TestFromFilmWorkGenresCarriesOnlyGenreField(t *testing.T) {
	id := uuid.New()
	fwg := storage.FilmWorkGenres{FilmWorkID: id, Genres: []string{"Drama", "Noir"}}

	doc := pipeline.FromFilmWorkGenres(fwg)

	assert.Equal(t, id.String(), doc.ID)
	assert.Equal(t, []string{"Drama", "Noir"}, doc.Genre)
	assert.Empty(t, doc.ActorsNames)
}
