package flight

import "math"

// Category names one family of anomaly scan.
type Category string

const (
	CategoryAltitude  Category = "altitude"
	CategoryBattery   Category = "battery"
	CategoryGPS       Category = "gps"
	CategoryVibration Category = "vibration"
)

// Severity grades how far past its threshold a reading landed.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is one flagged reading. Value carries the category magnitude:
// the signed climb rate in m/s, the signed voltage delta in volts, or the
// peak vibration axis. Altitude anomalies also record the altitude change
// over the pair, vibration anomalies the three axis readings.
type Anomaly struct {
	Category       Category `json:"category"`
	TimeUS         uint64   `json:"time_us"`
	Value          float64  `json:"value"`
	AltitudeChange *float64 `json:"altitude_change_m,omitempty"`
	VibeX          *float64 `json:"vibe_x,omitempty"`
	VibeY          *float64 `json:"vibe_y,omitempty"`
	VibeZ          *float64 `json:"vibe_z,omitempty"`
	Severity       Severity `json:"severity"`
}

// Report groups flagged readings by category. Every list is present even
// when empty, so consumers can iterate without existence checks.
type Report struct {
	Altitude  []Anomaly      `json:"altitude_anomalies"`
	Battery   []Anomaly      `json:"battery_anomalies"`
	GPS       []GPSLossEvent `json:"gps_anomalies"`
	Vibration []Anomaly      `json:"vibration_anomalies"`
}

// Anomalies rescans the sealed store with the log's thresholds. Nothing is
// cached: every call recomputes from the records, and the GPS category
// reuses the loss events the metadata pass already derived.
func (l *Log) Anomalies() Report {
	r := Report{
		Altitude:  []Anomaly{},
		Battery:   []Anomaly{},
		GPS:       append([]GPSLossEvent{}, l.meta.GPSLossEvents...),
		Vibration: []Anomaly{},
	}
	l.scanAltitude(&r)
	l.scanBattery(&r)
	l.scanVibration(&r)
	return r
}

// scanAltitude pairs consecutive altitude-carrying GPS records and flags
// implausible climb or descent rates. A record without Alt does not break
// a pair, and pairs with a non-positive time delta are skipped rather
// than dividing by zero.
func (l *Log) scanAltitude(r *Report) {
	t := l.thresholds
	var (
		prevTS, prevAlt float64
		have            bool
	)
	for _, rec := range l.store.Records("GPS") {
		alt, ok := rec.Float("Alt")
		if !ok {
			continue
		}
		ts := rec.FloatOr(TimeField, 0)
		if !have {
			prevTS, prevAlt, have = ts, alt, true
			continue
		}
		dt := (ts - prevTS) / 1e6
		delta := alt - prevAlt
		prevTS, prevAlt = ts, alt
		if dt <= 0 {
			continue
		}
		rate := delta / dt
		if math.Abs(rate) <= t.ClimbRate {
			continue
		}
		sev := SeverityMedium
		if math.Abs(rate) > t.ClimbRateHigh {
			sev = SeverityHigh
		}
		r.Altitude = append(r.Altitude, Anomaly{
			Category:       CategoryAltitude,
			TimeUS:         uint64(ts),
			Value:          rate,
			AltitudeChange: ptr(delta),
			Severity:       sev,
		})
	}
}

// scanBattery flags sudden drops between consecutive voltage readings.
// Voltage rises never flag, whatever their size.
func (l *Log) scanBattery(r *Report) {
	t := l.thresholds
	var (
		prev float64
		have bool
	)
	for _, rec := range l.batteryRecords() {
		volt, ok := rec.Float("Volt")
		if !ok {
			continue
		}
		if !have {
			prev, have = volt, true
			continue
		}
		diff := volt - prev
		prev = volt
		if diff >= -t.VoltageDrop {
			continue
		}
		sev := SeverityMedium
		if diff < -t.VoltageDropHigh {
			sev = SeverityHigh
		}
		r.Battery = append(r.Battery, Anomaly{
			Category: CategoryBattery,
			TimeUS:   eventTime(rec),
			Value:    diff,
			Severity: sev,
		})
	}
}

// scanVibration flags VIBE records whose worst axis exceeds the limit.
func (l *Log) scanVibration(r *Report) {
	t := l.thresholds
	for _, rec := range l.store.Records("VIBE") {
		x := rec.FloatOr("VibeX", 0)
		y := rec.FloatOr("VibeY", 0)
		z := rec.FloatOr("VibeZ", 0)
		peak := math.Max(x, math.Max(y, z))
		if peak <= t.Vibration {
			continue
		}
		sev := SeverityMedium
		if peak > t.VibrationHigh {
			sev = SeverityHigh
		}
		r.Vibration = append(r.Vibration, Anomaly{
			Category: CategoryVibration,
			TimeUS:   eventTime(rec),
			Value:    peak,
			VibeX:    ptr(x),
			VibeY:    ptr(y),
			VibeZ:    ptr(z),
			Severity: sev,
		})
	}
}
