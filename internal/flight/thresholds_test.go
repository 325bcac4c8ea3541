package flight

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultThresholdsValid(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("DefaultThresholds().Validate() = %v, want nil", err)
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Thresholds)
	}{
		{"zero climb rate", func(c *Thresholds) { c.ClimbRate = 0 }},
		{"high below base", func(c *Thresholds) { c.ClimbRateHigh = c.ClimbRate - 1 }},
		{"zero voltage drop", func(c *Thresholds) { c.VoltageDrop = 0 }},
		{"voltage high below base", func(c *Thresholds) { c.VoltageDropHigh = 0.1 }},
		{"negative vibration", func(c *Thresholds) { c.Vibration = -5 }},
		{"vibration high below base", func(c *Thresholds) { c.VibrationHigh = 1 }},
		{"zero rc floor", func(c *Thresholds) { c.RCFloor = 0 }},
		{"zero rc channels", func(c *Thresholds) { c.RCChannels = 0 }},
		{"negative gps fix", func(c *Thresholds) { c.GPSFixMin = -1 }},
		{"no battery types", func(c *Thresholds) { c.BatteryTypes = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultThresholds()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestThresholdsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	data := "climbRate: 12\nclimbRateHigh: 24\nbatteryTypes: [BATX]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ThresholdsFromFile(path)
	if err != nil {
		t.Fatalf("ThresholdsFromFile() error = %v", err)
	}
	if got.ClimbRate != 12 || got.ClimbRateHigh != 24 {
		t.Errorf("climb rates = (%g, %g), want (12, 24)", got.ClimbRate, got.ClimbRateHigh)
	}
	if got.Vibration != DefaultVibration {
		t.Errorf("Vibration = %g, want untouched default %g", got.Vibration, DefaultVibration)
	}
	if len(got.BatteryTypes) != 1 || got.BatteryTypes[0] != "BATX" {
		t.Errorf("BatteryTypes = %v, want [BATX]", got.BatteryTypes)
	}
}

func TestThresholdsFromFileMissing(t *testing.T) {
	if _, err := ThresholdsFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("ThresholdsFromFile() on a missing file = nil, want error")
	}
}

func TestThresholdsFromFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	if err := os.WriteFile(path, []byte("climbRate: -3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ThresholdsFromFile(path); err == nil {
		t.Error("ThresholdsFromFile() with a negative limit = nil, want error")
	}
}
