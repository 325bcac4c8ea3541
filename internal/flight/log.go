package flight

import "fmt"

// DecodeError wraps a fatal source failure. No partial Log escapes when
// ingestion fails this way.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decoding flight log: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// Option configures ingestion.
type Option func(*Log)

// WithThresholds sets the detection policy for the ingested log. The
// default is DefaultThresholds.
func WithThresholds(t Thresholds) Option {
	return func(l *Log) { l.thresholds = t }
}

// Log is a fully ingested flight log: the sealed record store plus the
// metadata derived from it in one pass. A Log never changes after Ingest
// returns, so every method is safe for concurrent use.
type Log struct {
	store      *Store
	meta       Metadata
	thresholds Thresholds
	skipped    int
}

// Ingest drains src into a fresh store, discarding records the decoder
// tagged as malformed, then seals the store and derives the flight
// metadata. A structural source failure aborts the whole ingestion with a
// DecodeError.
func Ingest(src Source, opts ...Option) (*Log, error) {
	l := &Log{store: NewStore(), thresholds: DefaultThresholds()}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("flight thresholds: %w", err)
	}

	for src.Next() {
		rec := src.Record()
		if rec.Type == BadRecordType {
			l.skipped++
			continue
		}
		if err := l.store.Append(rec); err != nil {
			return nil, err
		}
	}
	if err := src.Err(); err != nil {
		return nil, &DecodeError{Err: err}
	}

	l.store.Seal()
	l.meta = computeMetadata(l.store, l.thresholds)
	return l, nil
}

// Metadata returns the metrics derived at ingest time.
func (l *Log) Metadata() Metadata { return l.meta }

// Thresholds returns the detection policy the log was ingested with.
func (l *Log) Thresholds() Thresholds { return l.thresholds }

// Skipped reports how many malformed records the source produced.
func (l *Log) Skipped() int { return l.skipped }

// Store exposes the sealed record store.
func (l *Log) Store() *Store { return l.store }

// Types returns the message types in first-seen order.
func (l *Log) Types() []string { return l.store.Types() }

// Counts returns the per-type record counts.
func (l *Log) Counts() map[string]int { return l.store.Counts() }

// Len returns the total number of ingested records.
func (l *Log) Len() int { return l.store.Len() }

// Records returns up to limit records of msgType along with how many are
// available in total. limit <= 0 returns them all.
func (l *Log) Records(msgType string, limit int) ([]Record, int) {
	recs := l.store.Records(msgType)
	total := len(recs)
	if limit > 0 && limit < total {
		recs = recs[:limit]
	}
	return recs, total
}

// batteryRecords resolves the battery message alias in preference order.
func (l *Log) batteryRecords() []Record {
	return batteryRecords(l.store, l.thresholds.BatteryTypes)
}

func batteryRecords(s *Store, aliases []string) []Record {
	for _, typ := range aliases {
		if recs := s.Records(typ); len(recs) > 0 {
			return recs
		}
	}
	return nil
}
