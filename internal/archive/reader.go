package archive

import (
	"context"
	"database/sql"
	"fmt"
)

// SeriesPoint is one sample of an archived time series.
type SeriesPoint struct {
	TimeUS uint64
	Value  float64
}

// ReaderOption narrows a Series query.
type ReaderOption func(*seriesQuery)

type seriesQuery struct {
	startUS *uint64
	endUS   *uint64
	limit   *int
}

// WithStartTime skips samples before the given log timestamp.
func WithStartTime(us uint64) ReaderOption {
	return func(q *seriesQuery) {
		q.startUS = ptr(us)
	}
}

// WithEndTime skips samples after the given log timestamp.
func WithEndTime(us uint64) ReaderOption {
	return func(q *seriesQuery) {
		q.endUS = ptr(us)
	}
}

// WithTimeRange keeps only samples within [start, end].
func WithTimeRange(start, end uint64) ReaderOption {
	return func(q *seriesQuery) {
		q.startUS = ptr(start)
		q.endUS = ptr(end)
	}
}

// WithLimit caps the number of samples returned.
func WithLimit(n int) ReaderOption {
	return func(q *seriesQuery) {
		q.limit = ptr(n)
	}
}

// Series streams one numeric field of one message type from an archived
// flight, in log order. The caller must Close the reader.
func (s *Store) Series(ctx context.Context, flightID int64, msgType, field string, opts ...ReaderOption) (*SeriesReader, error) {
	db, err := s.reader()
	if err != nil {
		return nil, err
	}

	var q seriesQuery
	for _, opt := range opts {
		opt(&q)
	}

	path := "$." + field
	query := selectSeriesSQL
	args := []any{path, flightID, msgType, path}
	if q.startUS != nil {
		query += " AND time_us >= ?"
		args = append(args, int64(*q.startUS))
	}
	if q.endUS != nil {
		query += " AND time_us <= ?"
		args = append(args, int64(*q.endUS))
	}
	query += " ORDER BY seq"
	if q.limit != nil {
		query += " LIMIT ?"
		args = append(args, *q.limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s.%s series: %w", msgType, field, err)
	}
	return &SeriesReader{rows: rows}, nil
}

// SeriesReader iterates over archived series samples.
type SeriesReader struct {
	rows *sql.Rows
	cur  SeriesPoint
	err  error
}

// Next advances to the next sample. It returns false when the series is
// exhausted or an error occurred; check Error after the loop.
func (r *SeriesReader) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}
	if !r.rows.Next() {
		r.err = r.rows.Err()
		return false
	}
	var ts int64
	if err := r.rows.Scan(&ts, &r.cur.Value); err != nil {
		r.err = fmt.Errorf("scanning series sample: %w", err)
		return false
	}
	r.cur.TimeUS = uint64(ts)
	return true
}

// Current returns the sample read by the last successful Next.
func (r *SeriesReader) Current() SeriesPoint {
	return r.cur
}

// Error returns the first error encountered while iterating.
func (r *SeriesReader) Error() error {
	return r.err
}

// Close releases the underlying result set.
func (r *SeriesReader) Close() error {
	return r.rows.Close()
}
