package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// allowedRelatedTables whitelists the identifiers nested_fw_ids is permitted
// to interpolate. fmt.Sprintf is used for these because database/sql has no
// placeholder syntax for identifiers; every value that reaches it is checked
// against this table first, never taken from unvalidated input.
var allowedRelatedTables = map[string]string{
	"person": "person_film_work",
	"genre":  "genre_film_work",
}

var allowedRelatedColumns = map[string]string{
	"person": "person_id",
	"genre":  "genre_id",
}

// ErrUnknownRelatedTable is returned when a caller asks for a related-table
// join that isn't one of the whitelisted content.* junction tables.
var ErrUnknownRelatedTable = fmt.Errorf("unknown related table")

// ErrEmptyIDSet is returned by the IN-clause queries when called with no
// ids: "WHERE x IN ()" is invalid SQL, and a caller holding zero ids has
// nothing to fetch, so callers should check len before building the query.
var ErrEmptyIDSet = fmt.Errorf("cannot query an empty id set")

// FilmWorkFullQuery builds the C3 "fw_full" query: every film_work row whose
// updated_at is strictly greater than the cursor, fully joined with its
// genres, persons, and role-filtered actor/writer/director aggregates. The
// id tie-break in ORDER BY makes result order stable across repeated calls
// at the same cursor value; it does not change the strict > cursor advance,
// so rows sharing the boundary instant that miss the current batch are
// still skipped on the next page.
func FilmWorkFullQuery(updatedAt time.Time, limit int) (string, []any) {
	const sqlText = `
SELECT
	fw.id AS fw_id,
	fw.rating AS imdb_rating,
	fw.title,
	fw.description,
	fw.updated_at,
	ARRAY_AGG(DISTINCT g.name) FILTER (WHERE g.name IS NOT NULL) AS genres,
	ARRAY_AGG(DISTINCT p.full_name) FILTER (WHERE pfw.role = 'director') AS director,
	ARRAY_AGG(DISTINCT p.full_name) FILTER (WHERE pfw.role = 'actor') AS actors_names,
	ARRAY_AGG(DISTINCT p.full_name) FILTER (WHERE pfw.role = 'writer') AS writers_names,
	JSON_AGG(DISTINCT jsonb_build_object('id', p.id, 'name', p.full_name)) FILTER (WHERE pfw.role = 'actor') AS actors,
	JSON_AGG(DISTINCT jsonb_build_object('id', p.id, 'name', p.full_name)) FILTER (WHERE pfw.role = 'writer') AS writers
FROM content.film_work fw
LEFT JOIN content.person_film_work pfw ON pfw.film_work_id = fw.id
LEFT JOIN content.person p ON p.id = pfw.person_id
LEFT JOIN content.genre_film_work gfw ON gfw.film_work_id = fw.id
LEFT JOIN content.genre g ON g.id = gfw.genre_id
WHERE fw.updated_at > $1
GROUP BY fw.id, fw.updated_at
ORDER BY fw.updated_at, fw.id
LIMIT $2;
`

	return sqlText, []any{updatedAt, limit}
}

// FilmWorkPersonsQuery builds the C3 "fw_persons" query: the person-related
// columns for a fixed set of film_work ids, used to refresh documents when a
// person record changes but the film_work row itself does not.
func FilmWorkPersonsQuery(filmworkIDs []uuid.UUID) (string, []any, error) {
	if len(filmworkIDs) == 0 {
		return "", nil, ErrEmptyIDSet
	}

	placeholders, args := idInClause(filmworkIDs, 1)

	sqlText := fmt.Sprintf(`
SELECT
	fw.id AS fw_id,
	ARRAY_AGG(DISTINCT p.full_name) FILTER (WHERE pfw.role = 'director') AS director,
	ARRAY_AGG(DISTINCT p.full_name) FILTER (WHERE pfw.role = 'actor') AS actors_names,
	ARRAY_AGG(DISTINCT p.full_name) FILTER (WHERE pfw.role = 'writer') AS writers_names,
	JSON_AGG(DISTINCT jsonb_build_object('id', p.id, 'name', p.full_name)) FILTER (WHERE pfw.role = 'actor') AS actors,
	JSON_AGG(DISTINCT jsonb_build_object('id', p.id, 'name', p.full_name)) FILTER (WHERE pfw.role = 'writer') AS writers
FROM content.film_work fw
LEFT JOIN content.person_film_work pfw ON pfw.film_work_id = fw.id
LEFT JOIN content.person p ON p.id = pfw.person_id
WHERE fw.id IN (%s)
GROUP BY fw.id;
`, placeholders)

	return sqlText, args, nil
}

// FilmWorkGenresQuery builds the C3 "fw_genres" query: the genre names for a
// fixed set of film_work ids.
func FilmWorkGenresQuery(filmworkIDs []uuid.UUID) (string, []any, error) {
	if len(filmworkIDs) == 0 {
		return "", nil, ErrEmptyIDSet
	}

	placeholders, args := idInClause(filmworkIDs, 1)

	sqlText := fmt.Sprintf(`
SELECT
	fw.id AS fw_id,
	ARRAY_AGG(DISTINCT g.name) FILTER (WHERE g.name IS NOT NULL) AS genres
FROM content.film_work fw
LEFT JOIN content.genre_film_work gfw ON gfw.film_work_id = fw.id
LEFT JOIN content.genre g ON g.id = gfw.genre_id
WHERE fw.id IN (%s)
GROUP BY fw.id;
`, placeholders)

	return sqlText, args, nil
}

// NestedPreQuery builds the C3 "nested_pre" query: a cursor page of
// {id, updated_at} rows from content.person or content.genre, the entry
// point for the via-person and via-genre pipelines. table must be "person"
// or "genre".
func NestedPreQuery(table string, updatedAt time.Time, limit int) (string, []any, error) {
	switch table {
	case "person", "genre":
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownRelatedTable, table)
	}

	sqlText := fmt.Sprintf(`
SELECT id, updated_at
FROM content.%s
WHERE updated_at > $1
ORDER BY updated_at, id
LIMIT $2;
`, table)

	return sqlText, []any{updatedAt, limit}, nil
}

// NestedFilmWorkIDsQuery builds the C3 "nested_fw_ids" query: the film_work
// ids reachable from a set of person or genre ids through their junction
// table, paged by plain OFFSET/LIMIT — the driving table has no cheap value
// cursor once rows are filtered by an IN set, so the Enricher falls back to
// numeric offset, reset to 0 at the start of every outer Producer batch.
// dataName is "person" or "genre".
func NestedFilmWorkIDsQuery(dataName string, dataIDs []uuid.UUID, limit, offset int) (string, []any, error) {
	relatedTable, ok := allowedRelatedTables[dataName]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownRelatedTable, dataName)
	}

	if len(dataIDs) == 0 {
		return "", nil, ErrEmptyIDSet
	}

	relatedColumn := allowedRelatedColumns[dataName]

	placeholders, args := idInClause(dataIDs, 1)
	limitPos := len(args) + 1
	offsetPos := len(args) + 2

	sqlText := fmt.Sprintf(`
SELECT fw.id, fw.updated_at
FROM content.film_work fw
LEFT JOIN content.%s rfw ON rfw.film_work_id = fw.id
WHERE rfw.%s IN (%s)
ORDER BY fw.updated_at, fw.id
LIMIT $%d
OFFSET $%d;
`, relatedTable, relatedColumn, placeholders, limitPos, offsetPos)

	args = append(args, limit, offset)

	return sqlText, args, nil
}

// idInClause renders a "$n, $n+1, ..." placeholder list for an IN clause and
// the matching positional arguments, starting at position start.
func idInClause(ids []uuid.UUID, start int) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))

	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}

	return strings.Join(placeholders, ", "), args
}
