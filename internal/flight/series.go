package flight

// Point is one time-series sample. Time is seconds since boot.
type Point struct {
	Time  float64 `json:"time_seconds"`
	Value float64 `json:"value"`
}

// SeriesStats summarises the sampled values. StdDev is the sample standard
// deviation and reads 0 for a single point.
type SeriesStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
}

// Series is the ordered track of one numeric field over flight time.
type Series struct {
	MsgType string      `json:"message_type"`
	Field   string      `json:"field"`
	Points  []Point     `json:"points"`
	Stats   SeriesStats `json:"stats"`
}

// Sample returns up to n leading points for previews.
func (s *Series) Sample(n int) []Point {
	if n > len(s.Points) {
		n = len(s.Points)
	}
	return s.Points[:n:n]
}

// NewSeries builds a Series over pts, computing the summary statistics.
// Points must already be in time order. It returns nil for an empty slice
// so callers cannot end up holding a series of nothing.
func NewSeries(msgType, field string, pts []Point) *Series {
	if len(pts) == 0 {
		return nil
	}
	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.Value
	}
	mn, mx := minMax(vals)
	return &Series{
		MsgType: msgType,
		Field:   field,
		Points:  pts,
		Stats: SeriesStats{
			Count:  len(pts),
			Min:    mn,
			Max:    mx,
			Mean:   mean(vals),
			StdDev: stddev(vals),
		},
	}
}

// TimeSeries extracts field over time from msgType records, keeping only
// records that carry both the timestamp and a numeric value for the field.
// The boolean is false when nothing qualifies, which is how "no data" is
// told apart from a real series; it is never an error.
func (l *Log) TimeSeries(msgType, field string) (*Series, bool) {
	var pts []Point
	for _, rec := range l.store.Records(msgType) {
		ts, ok := rec.TimeUS()
		if !ok {
			continue
		}
		v, ok := rec.Float(field)
		if !ok {
			continue
		}
		pts = append(pts, Point{Time: ts / 1e6, Value: v})
	}
	if len(pts) == 0 {
		return nil, false
	}
	return NewSeries(msgType, field, pts), true
}
