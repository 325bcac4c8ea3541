package archive

const (
	insertFlightSQL = `
INSERT INTO flights (source, message_count, start_time_us, end_time_us, duration_seconds, metadata)
VALUES (?, ?, ?, ?, ?, ?)`

	insertRecordSQL = `
INSERT INTO records (flight_id, seq, msg_type, time_us, fields)
VALUES (?, ?, ?, ?, ?)`

	selectFlightSQL = `
SELECT id, created_at, source, message_count, start_time_us, end_time_us, duration_seconds, metadata
FROM flights
WHERE id = ?`

	selectFlightsSQL = `
SELECT id, created_at, source, message_count, start_time_us, end_time_us, duration_seconds, metadata
FROM flights
ORDER BY created_at DESC, id DESC`

	// The field map is stored as JSON, so one query serves any field the
	// log happens to carry. Rows missing the timestamp or the field fall
	// out here instead of in Go.
	selectSeriesSQL = `
SELECT time_us, CAST(json_extract(fields, ?) AS REAL) AS value
FROM records
WHERE flight_id = ? AND msg_type = ?
  AND time_us IS NOT NULL
  AND json_extract(fields, ?) IS NOT NULL`
)
