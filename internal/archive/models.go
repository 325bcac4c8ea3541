package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

// Flight is one archived flight log.
type Flight struct {
	ID              int64
	CreatedAt       time.Time
	Source          string
	MessageCount    int
	StartTimeUS     *uint64
	EndTimeUS       *uint64
	DurationSeconds *float64
	Metadata        *flight.Metadata
}

// flightRow mirrors the flights table for scanning.
type flightRow struct {
	id              int64
	createdAt       time.Time
	source          string
	messageCount    int64
	startTimeUS     sql.NullInt64
	endTimeUS       sql.NullInt64
	durationSeconds sql.NullFloat64
	metadata        sql.NullString
}

func (r *flightRow) toFlight() (Flight, error) {
	f := Flight{
		ID:           r.id,
		CreatedAt:    r.createdAt,
		Source:       r.source,
		MessageCount: int(r.messageCount),
	}
	if r.startTimeUS.Valid {
		f.StartTimeUS = ptr(uint64(r.startTimeUS.Int64))
	}
	if r.endTimeUS.Valid {
		f.EndTimeUS = ptr(uint64(r.endTimeUS.Int64))
	}
	if r.durationSeconds.Valid {
		f.DurationSeconds = ptr(r.durationSeconds.Float64)
	}
	if r.metadata.Valid && r.metadata.String != "" {
		var meta flight.Metadata
		if err := json.Unmarshal([]byte(r.metadata.String), &meta); err != nil {
			return Flight{}, fmt.Errorf("decoding flight %d metadata: %w", r.id, err)
		}
		f.Metadata = &meta
	}
	return f, nil
}
