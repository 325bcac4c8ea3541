package flight

import (
	"fmt"
	"sort"
)

// GPSLossEvent marks a GPS record whose fix status fell below the usable
// minimum. Index is the position within the GPS sequence.
type GPSLossEvent struct {
	Index  int    `json:"index"`
	TimeUS uint64 `json:"time_us"`
	Status int    `json:"status"`
}

// ErrorEvent is one autopilot ERR record.
type ErrorEvent struct {
	Subsys int    `json:"subsys"`
	ECode  int    `json:"ecode"`
	TimeUS uint64 `json:"time_us"`
}

// ModeChange is one flight mode transition.
type ModeChange struct {
	Mode    string `json:"mode"`
	ModeNum int    `json:"mode_num"`
	TimeUS  uint64 `json:"time_us"`
}

// RCLossEvent marks an RCIN record where every watched channel sat below
// the signal floor. Index is the position within the RCIN sequence.
type RCLossEvent struct {
	Index  int    `json:"index"`
	TimeUS uint64 `json:"time_us"`
}

// Metadata is the summary derived from a sealed store exactly once, at
// ingest time. Pointer fields are nil when the log carries no data for the
// metric, which drops them from JSON instead of reporting a misleading
// zero.
type Metadata struct {
	TotalMessages int            `json:"total_messages"`
	MessageCounts map[string]int `json:"message_counts"`

	StartTimeUS     *uint64  `json:"start_time_us,omitempty"`
	EndTimeUS       *uint64  `json:"end_time_us,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`

	MaxAltitudeM *float64 `json:"max_altitude_m,omitempty"`
	MinAltitudeM *float64 `json:"min_altitude_m,omitempty"`
	AvgAltitudeM *float64 `json:"avg_altitude_m,omitempty"`

	MaxBatteryVoltage *float64 `json:"max_battery_voltage,omitempty"`
	MinBatteryVoltage *float64 `json:"min_battery_voltage,omitempty"`
	MaxBatteryTemp    *float64 `json:"max_battery_temp,omitempty"`
	MinBatteryTemp    *float64 `json:"min_battery_temp,omitempty"`

	GPSFixTypes   []int          `json:"gps_fix_types,omitempty"`
	GPSLossEvents []GPSLossEvent `json:"gps_loss_events,omitempty"`
	Errors        []ErrorEvent   `json:"errors,omitempty"`
	ModeChanges   []ModeChange   `json:"mode_changes,omitempty"`
	RCLossEvents  []RCLossEvent  `json:"rc_loss_events,omitempty"`
}

func computeMetadata(s *Store, t Thresholds) Metadata {
	meta := Metadata{
		TotalMessages: s.Len(),
		MessageCounts: s.Counts(),
	}
	if gps := s.Records("GPS"); len(gps) > 0 {
		computeGPS(&meta, gps, t.GPSFixMin)
	}
	if recs := batteryRecords(s, t.BatteryTypes); len(recs) > 0 {
		computeBattery(&meta, recs)
	}
	for _, rec := range s.Records("ERR") {
		meta.Errors = append(meta.Errors, ErrorEvent{
			Subsys: int(rec.FloatOr("Subsys", 0)),
			ECode:  int(rec.FloatOr("ECode", 0)),
			TimeUS: eventTime(rec),
		})
	}
	for _, rec := range s.Records("MODE") {
		meta.ModeChanges = append(meta.ModeChanges, ModeChange{
			Mode:    modeLabel(rec),
			ModeNum: int(rec.FloatOr("ModeNum", 0)),
			TimeUS:  eventTime(rec),
		})
	}
	computeRCLoss(&meta, s.Records("RCIN"), t)
	return meta
}

// computeGPS derives the time bounds, altitude envelope, fix-type set and
// loss events from the GPS sequence.
func computeGPS(meta *Metadata, gps []Record, fixMin int) {
	var (
		times []float64
		alts  []float64
		fixes = make(map[int]struct{})
	)
	for i, rec := range gps {
		if ts, ok := rec.TimeUS(); ok {
			times = append(times, ts)
		}
		if alt, ok := rec.Float("Alt"); ok {
			alts = append(alts, alt)
		}
		status := int(rec.FloatOr("Status", 0))
		fixes[status] = struct{}{}
		if status < fixMin {
			meta.GPSLossEvents = append(meta.GPSLossEvents, GPSLossEvent{
				Index:  i,
				TimeUS: eventTime(rec),
				Status: status,
			})
		}
	}

	if len(times) > 0 {
		start, end := minMax(times)
		meta.StartTimeUS = ptr(uint64(start))
		meta.EndTimeUS = ptr(uint64(end))
		meta.DurationSeconds = ptr((end - start) / 1e6)
	}
	if len(alts) > 0 {
		mn, mx := minMax(alts)
		meta.MinAltitudeM = ptr(mn)
		meta.MaxAltitudeM = ptr(mx)
		meta.AvgAltitudeM = ptr(mean(alts))
	}

	types := make([]int, 0, len(fixes))
	for status := range fixes {
		types = append(types, status)
	}
	sort.Ints(types)
	meta.GPSFixTypes = types
}

// computeBattery derives the voltage and temperature envelopes. The two
// fields are gated independently: a pack that logs voltage but no
// temperature still yields voltage metrics.
func computeBattery(meta *Metadata, recs []Record) {
	var volts, temps []float64
	for _, rec := range recs {
		if v, ok := rec.Float("Volt"); ok {
			volts = append(volts, v)
		}
		if v, ok := rec.Float("Temp"); ok {
			temps = append(temps, v)
		}
	}
	if len(volts) > 0 {
		mn, mx := minMax(volts)
		meta.MinBatteryVoltage = ptr(mn)
		meta.MaxBatteryVoltage = ptr(mx)
	}
	if len(temps) > 0 {
		mn, mx := minMax(temps)
		meta.MinBatteryTemp = ptr(mn)
		meta.MaxBatteryTemp = ptr(mx)
	}
}

func computeRCLoss(meta *Metadata, recs []Record, t Thresholds) {
	for i, rec := range recs {
		lost := true
		for ch := 1; ch <= t.RCChannels; ch++ {
			if rec.FloatOr(fmt.Sprintf("C%d", ch), 0) >= t.RCFloor {
				lost = false
				break
			}
		}
		if lost {
			meta.RCLossEvents = append(meta.RCLossEvents, RCLossEvent{
				Index:  i,
				TimeUS: eventTime(rec),
			})
		}
	}
}

// eventTime reads the record timestamp for an event entry, falling back to
// zero when the message carries none.
func eventTime(rec Record) uint64 {
	return uint64(rec.FloatOr(TimeField, 0))
}

// modeLabel prefers the decoded mode name and falls back to rendering the
// raw numeric value.
func modeLabel(rec Record) string {
	v, ok := rec.Fields["Mode"]
	if !ok {
		return "0"
	}
	return v.String()
}
