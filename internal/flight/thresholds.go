package flight

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Detection defaults. The ArduPilot numbers behind them: a 3D GPS fix
// reports status 3, healthy RC pulses sit near 1500µs and collapse below
// 900µs when the receiver loses signal, and the first eight RC channels
// cover every standard control surface.
const (
	DefaultClimbRate       = 10.0
	DefaultClimbRateHigh   = 20.0
	DefaultVoltageDrop     = 0.5
	DefaultVoltageDropHigh = 1.0
	DefaultVibration       = 30.0
	DefaultVibrationHigh   = 60.0
	DefaultRCFloor         = 900.0
	DefaultRCChannels      = 8
	DefaultGPSFixMin       = 3
)

// Thresholds is the health policy applied to an ingested log: anomaly
// limits plus the dialect knobs that vary between autopilot builds.
type Thresholds struct {
	// ClimbRate flags altitude changing faster than this many m/s in
	// either direction. ClimbRateHigh escalates the severity.
	ClimbRate     float64 `yaml:"climbRate" json:"climbRate"`
	ClimbRateHigh float64 `yaml:"climbRateHigh" json:"climbRateHigh"`

	// VoltageDrop flags a step down between consecutive battery readings,
	// in volts. Rises never flag. VoltageDropHigh escalates the severity.
	VoltageDrop     float64 `yaml:"voltageDrop" json:"voltageDrop"`
	VoltageDropHigh float64 `yaml:"voltageDropHigh" json:"voltageDropHigh"`

	// Vibration flags the worst accelerometer axis of a VIBE record.
	// VibrationHigh escalates the severity.
	Vibration     float64 `yaml:"vibration" json:"vibration"`
	VibrationHigh float64 `yaml:"vibrationHigh" json:"vibrationHigh"`

	// RCFloor is the pulse width in µs below which an RC channel counts as
	// silent. RCChannels is how many channels must all be silent before an
	// RCIN record becomes a signal-loss event.
	RCFloor    float64 `yaml:"rcFloor" json:"rcFloor"`
	RCChannels int     `yaml:"rcChannels" json:"rcChannels"`

	// GPSFixMin is the lowest GPS status that still counts as a usable
	// fix. Records below it become loss events.
	GPSFixMin int `yaml:"gpsFixMin" json:"gpsFixMin"`

	// BatteryTypes lists battery message type names in preference order.
	// The first type present in the log supplies the voltage and
	// temperature metrics.
	BatteryTypes []string `yaml:"batteryTypes" json:"batteryTypes"`
}

// DefaultThresholds returns the policy used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ClimbRate:       DefaultClimbRate,
		ClimbRateHigh:   DefaultClimbRateHigh,
		VoltageDrop:     DefaultVoltageDrop,
		VoltageDropHigh: DefaultVoltageDropHigh,
		Vibration:       DefaultVibration,
		VibrationHigh:   DefaultVibrationHigh,
		RCFloor:         DefaultRCFloor,
		RCChannels:      DefaultRCChannels,
		GPSFixMin:       DefaultGPSFixMin,
		BatteryTypes:    []string{"BAT", "BATT"},
	}
}

// Validate checks the policy for values that would make the scans
// meaningless.
func (t Thresholds) Validate() error {
	if t.ClimbRate <= 0 {
		return fmt.Errorf("climbRate must be positive, got %g", t.ClimbRate)
	}
	if t.ClimbRateHigh < t.ClimbRate {
		return fmt.Errorf("climbRateHigh %g must not be below climbRate %g", t.ClimbRateHigh, t.ClimbRate)
	}
	if t.VoltageDrop <= 0 {
		return fmt.Errorf("voltageDrop must be positive, got %g", t.VoltageDrop)
	}
	if t.VoltageDropHigh < t.VoltageDrop {
		return fmt.Errorf("voltageDropHigh %g must not be below voltageDrop %g", t.VoltageDropHigh, t.VoltageDrop)
	}
	if t.Vibration <= 0 {
		return fmt.Errorf("vibration must be positive, got %g", t.Vibration)
	}
	if t.VibrationHigh < t.Vibration {
		return fmt.Errorf("vibrationHigh %g must not be below vibration %g", t.VibrationHigh, t.Vibration)
	}
	if t.RCFloor <= 0 {
		return fmt.Errorf("rcFloor must be positive, got %g", t.RCFloor)
	}
	if t.RCChannels < 1 {
		return fmt.Errorf("rcChannels must be at least 1, got %d", t.RCChannels)
	}
	if t.GPSFixMin < 0 {
		return fmt.Errorf("gpsFixMin must not be negative, got %d", t.GPSFixMin)
	}
	if len(t.BatteryTypes) == 0 {
		return fmt.Errorf("batteryTypes must name at least one message type")
	}
	return nil
}

// ThresholdsFromFile loads a YAML policy file over the defaults, so a file
// only needs to name the values it changes.
func ThresholdsFromFile(path string) (Thresholds, error) {
	t := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("reading thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parsing thresholds: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("thresholds %s: %w", path, err)
	}
	return t, nil
}
