package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrRowProjection is returned when a scanned row fails to satisfy a record's
// NOT NULL invariant. Treated as fatal rather than silently dropping the row.
var ErrRowProjection = errors.New("row projection failed")

type (
	// BaseRecord is the minimal cursor-anchor projection: an id plus the
	// updated_at value used to page forward.
	BaseRecord struct {
		ID        uuid.UUID
		UpdatedAt time.Time
	}

	// Person is an {id, name} pair embedded in FilmWork/FilmWorkPersons'
	// JSON-aggregated actors/writers lists.
	Person struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name"`
	}

	// FilmWork is the fully denormalized document produced by the direct
	// film-work pipeline.
	FilmWork struct {
		ID            uuid.UUID
		IMDBRating    sql.NullFloat64
		Title         string
		Description   sql.NullString
		UpdatedAt     time.Time
		Genres        []string
		Director      []string
		ActorsNames   []string
		WritersNames  []string
		Actors        []Person
		Writers       []Person
	}

	// FilmWorkPersons is the partial document produced by the via-person
	// pipeline: person-related fields plus the film_work id they belong to.
	FilmWorkPersons struct {
		FilmWorkID   uuid.UUID
		Director     []string
		ActorsNames  []string
		WritersNames []string
		Actors       []Person
		Writers      []Person
	}

	// FilmWorkGenres is the partial document produced by the via-genre pipeline.
	FilmWorkGenres struct {
		FilmWorkID uuid.UUID
		Genres     []string
	}

	// RowScanner fully materializes a *sql.Rows cursor into a typed batch. A
	// NOT NULL field that scans as its zero value (e.g. a nil id) is surfaced
	// as ErrRowProjection naming the field, not silently skipped.
	RowScanner[T any] func(*sql.Rows) ([]T, error)
)

// ScanBaseRecords projects nested_pre and nested_fw_ids rows (id, updated_at).
func ScanBaseRecords(rows *sql.Rows) ([]BaseRecord, error) {
	var batch []BaseRecord

	for rows.Next() {
		var r BaseRecord

		if err := rows.Scan(&r.ID, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRowProjection, err)
		}

		if r.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: field id is nil", ErrRowProjection)
		}

		batch = append(batch, r)
	}

	return batch, rows.Err()
}

// ScanFilmWorks projects fw_full rows into complete FilmWork documents.
func ScanFilmWorks(rows *sql.Rows) ([]FilmWork, error) {
	var batch []FilmWork

	for rows.Next() {
		var (
			fw         FilmWork
			actorsJSON []byte
			writersJSON []byte
		)

		err := rows.Scan(
			&fw.ID,
			&fw.IMDBRating,
			&fw.Title,
			&fw.Description,
			&fw.UpdatedAt,
			pq.Array(&fw.Genres),
			pq.Array(&fw.Director),
			pq.Array(&fw.ActorsNames),
			pq.Array(&fw.WritersNames),
			&actorsJSON,
			&writersJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRowProjection, err)
		}

		if fw.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: field fw_id is nil", ErrRowProjection)
		}

		if fw.Title == "" {
			return nil, fmt.Errorf("%w: field title is empty", ErrRowProjection)
		}

		if fw.Actors, err = decodePersons(actorsJSON); err != nil {
			return nil, fmt.Errorf("%w: field actors: %w", ErrRowProjection, err)
		}

		if fw.Writers, err = decodePersons(writersJSON); err != nil {
			return nil, fmt.Errorf("%w: field writers: %w", ErrRowProjection, err)
		}

		batch = append(batch, fw)
	}

	return batch, rows.Err()
}

// ScanFilmWorkPersons projects fw_persons rows.
func ScanFilmWorkPersons(rows *sql.Rows) ([]FilmWorkPersons, error) {
	var batch []FilmWorkPersons

	for rows.Next() {
		var (
			fwp         FilmWorkPersons
			actorsJSON  []byte
			writersJSON []byte
		)

		err := rows.Scan(
			&fwp.FilmWorkID,
			pq.Array(&fwp.Director),
			pq.Array(&fwp.ActorsNames),
			pq.Array(&fwp.WritersNames),
			&actorsJSON,
			&writersJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRowProjection, err)
		}

		if fwp.FilmWorkID == uuid.Nil {
			return nil, fmt.Errorf("%w: field fw_id is nil", ErrRowProjection)
		}

		if fwp.Actors, err = decodePersons(actorsJSON); err != nil {
			return nil, fmt.Errorf("%w: field actors: %w", ErrRowProjection, err)
		}

		if fwp.Writers, err = decodePersons(writersJSON); err != nil {
			return nil, fmt.Errorf("%w: field writers: %w", ErrRowProjection, err)
		}

		batch = append(batch, fwp)
	}

	return batch, rows.Err()
}

// ScanFilmWorkGenres projects fw_genres rows.
func ScanFilmWorkGenres(rows *sql.Rows) ([]FilmWorkGenres, error) {
	var batch []FilmWorkGenres

	for rows.Next() {
		var fwg FilmWorkGenres

		if err := rows.Scan(&fwg.FilmWorkID, pq.Array(&fwg.Genres)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRowProjection, err)
		}

		if fwg.FilmWorkID == uuid.Nil {
			return nil, fmt.Errorf("%w: field fw_id is nil", ErrRowProjection)
		}

		batch = append(batch, fwg)
	}

	return batch, rows.Err()
}

// decodePersons decodes a JSON_AGG(...) column. FILTER (WHERE ...) produces
// SQL NULL, not an empty array, when no row matches the role predicate.
func decodePersons(raw []byte) ([]Person, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var people []Person
	if err := json.Unmarshal(raw, &people); err != nil {
		return nil, err
	}

	return people, nil
}
