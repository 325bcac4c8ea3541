package flight

import "strings"

// Query answers a free-text question with the metadata metrics whose
// trigger keywords appear in it. Matching is case-insensitive substring
// matching; several topics in one question merge their metrics, an
// altitude question names no metric until a max/min/average qualifier
// appears, and a question with no known keywords returns an empty map
// rather than an error.
func (l *Log) Query(text string) map[string]any {
	q := strings.ToLower(text)
	meta := l.meta
	out := make(map[string]any)

	if containsAny(q, "altitude", "height") {
		if containsAny(q, "max", "highest") {
			out["max_altitude_m"] = floatMetric(meta.MaxAltitudeM)
		}
		if containsAny(q, "min", "lowest") {
			out["min_altitude_m"] = floatMetric(meta.MinAltitudeM)
		}
		if containsAny(q, "average", "avg") {
			out["avg_altitude_m"] = floatMetric(meta.AvgAltitudeM)
		}
	}

	if containsAny(q, "battery", "voltage") {
		out["battery_voltage_max"] = floatMetric(meta.MaxBatteryVoltage)
		out["battery_voltage_min"] = floatMetric(meta.MinBatteryVoltage)
	}

	if strings.Contains(q, "temperature") && strings.Contains(q, "battery") {
		out["battery_temp_max"] = floatMetric(meta.MaxBatteryTemp)
		out["battery_temp_min"] = floatMetric(meta.MinBatteryTemp)
	}

	if strings.Contains(q, "gps") {
		out["gps_loss_events"] = orEmpty(meta.GPSLossEvents)
		out["gps_fix_types"] = orEmpty(meta.GPSFixTypes)
	}

	if containsAny(q, "flight time", "duration") {
		out["duration_seconds"] = floatMetric(meta.DurationSeconds)
		if meta.DurationSeconds != nil {
			out["duration_minutes"] = *meta.DurationSeconds / 60
		}
	}

	if strings.Contains(q, "error") {
		out["errors"] = orEmpty(meta.Errors)
	}

	if containsAny(q, "rc", "radio", "signal loss") {
		out["rc_loss_events"] = orEmpty(meta.RCLossEvents)
	}

	return out
}

func containsAny(q string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// floatMetric keeps a triggered key in the result even when the log has no
// data for it, reporting null instead of dropping the key.
func floatMetric(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
