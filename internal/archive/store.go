// Package archive persists ingested flights into standalone SQLite files.
// An archive is an export artifact: flights are written once, from a fully
// ingested log, and read back only by offline tooling such as flightchart.
// Nothing here feeds back into a live analysis session.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	_ "github.com/mattn/go-sqlite3"

	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when the requested flight does not exist.
var ErrNotFound = errors.New("archive: flight not found")

const (
	busyTimeoutMS = 5000
	insertChunk   = 500
)

// Store reads and writes flight archives in a single SQLite file. The write
// and read handles are opened lazily and independently, so a Store used only
// for export never opens a read connection and vice versa. Store is not safe
// for concurrent use.
type Store struct {
	path    string
	writeDB *sql.DB
	readDB  *sql.DB
}

// New returns a Store backed by the SQLite file at path. The file is created
// on first write; its parent directory must already exist.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("opening archive %s: %s is not a directory", path, dir)
	}
	return &Store{path: path}, nil
}

// NewWithDB returns a Store using db for both reads and writes. The caller
// retains ownership of db. Intended for tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{path: ":memory:", writeDB: db, readDB: db}
}

func (s *Store) writer() (*sql.DB, error) {
	if s.writeDB != nil {
		return s.writeDB, nil
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_foreign_keys=on", s.path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", s.path, err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY between our own transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising archive schema: %w", err)
	}
	s.writeDB = db
	return s.writeDB, nil
}

func (s *Store) reader() (*sql.DB, error) {
	if s.readDB != nil {
		return s.readDB, nil
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=%d", s.path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", s.path, err)
	}
	s.readDB = db
	return s.readDB, nil
}

// Close releases any open database handles.
func (s *Store) Close() error {
	var errs []error
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	if s.readDB != nil && s.readDB != s.writeDB {
		errs = append(errs, s.readDB.Close())
	}
	s.writeDB, s.readDB = nil, nil
	return errors.Join(errs...)
}

// CreateFlight inserts the flight header row and returns its ID. Records are
// added separately with InsertRecords.
func (s *Store) CreateFlight(ctx context.Context, source string, log *flight.Log) (int64, error) {
	db, err := s.writer()
	if err != nil {
		return 0, err
	}
	meta := log.Metadata()
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("encoding flight metadata: %w", err)
	}
	res, err := db.ExecContext(ctx, insertFlightSQL,
		source,
		log.Len(),
		nullUint(meta.StartTimeUS),
		nullUint(meta.EndTimeUS),
		nullFloat(meta.DurationSeconds),
		string(metaJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting flight: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("inserting flight: %w", err)
	}
	return id, nil
}

// InsertRecords appends records to an archived flight. Records are written in
// chunks, each in its own transaction, so a failure partway leaves whole
// chunks rather than torn ones.
func (s *Store) InsertRecords(ctx context.Context, flightID int64, recs []flight.Record) error {
	db, err := s.writer()
	if err != nil {
		return err
	}
	seq := 0
	for chunk := range slices.Chunk(recs, insertChunk) {
		if err := insertChunkTx(ctx, db, flightID, seq, chunk); err != nil {
			return err
		}
		seq += len(chunk)
	}
	return nil
}

func insertChunkTx(ctx context.Context, db *sql.DB, flightID int64, seq int, recs []flight.Record) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("inserting records: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return fmt.Errorf("inserting records: %w", err)
	}
	defer closeWithError(stmt, &err)

	for i, rec := range recs {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("encoding record %d fields: %w", seq+i, err)
		}
		if _, err := stmt.ExecContext(ctx, flightID, seq+i, rec.Type, recTime(rec), string(fields)); err != nil {
			return fmt.Errorf("inserting record %d: %w", seq+i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("inserting records: %w", err)
	}
	return nil
}

func recTime(rec flight.Record) sql.NullInt64 {
	ts, ok := rec.TimeUS()
	if !ok {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(ts), Valid: true}
}

// SaveLog archives an entire ingested log under the given source name and
// returns the new flight ID.
func (s *Store) SaveLog(ctx context.Context, source string, log *flight.Log) (int64, error) {
	id, err := s.CreateFlight(ctx, source, log)
	if err != nil {
		return 0, err
	}
	all := make([]flight.Record, 0, log.Len())
	for _, typ := range log.Types() {
		recs, _ := log.Records(typ, 0)
		all = append(all, recs...)
	}
	if err := s.InsertRecords(ctx, id, all); err != nil {
		return 0, err
	}
	return id, nil
}

// Flight returns the archived flight with the given ID.
func (s *Store) Flight(ctx context.Context, id int64) (Flight, error) {
	db, err := s.reader()
	if err != nil {
		return Flight{}, err
	}
	var row flightRow
	err = db.QueryRowContext(ctx, selectFlightSQL, id).Scan(
		&row.id, &row.createdAt, &row.source, &row.messageCount,
		&row.startTimeUS, &row.endTimeUS, &row.durationSeconds, &row.metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Flight{}, ErrNotFound
	}
	if err != nil {
		return Flight{}, fmt.Errorf("loading flight %d: %w", id, err)
	}
	return row.toFlight()
}

// Flights lists all archived flights, newest first.
func (s *Store) Flights(ctx context.Context) (flights []Flight, err error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectFlightsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing flights: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row flightRow
		if err := rows.Scan(
			&row.id, &row.createdAt, &row.source, &row.messageCount,
			&row.startTimeUS, &row.endTimeUS, &row.durationSeconds, &row.metadata,
		); err != nil {
			return nil, fmt.Errorf("listing flights: %w", err)
		}
		f, err := row.toFlight()
		if err != nil {
			return nil, err
		}
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing flights: %w", err)
	}
	return flights, nil
}
