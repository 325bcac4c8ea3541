package dataflash

import "fmt"

// copterModes maps ArduCopter flight mode numbers to their display names.
// Plane and rover logs resolve through the numeric fallback.
var copterModes = map[byte]string{
	0:  "STABILIZE",
	1:  "ACRO",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	7:  "CIRCLE",
	9:  "LAND",
	11: "DRIFT",
	13: "SPORT",
	14: "FLIP",
	15: "AUTOTUNE",
	16: "POSHOLD",
	17: "BRAKE",
	18: "THROW",
	19: "AVOID_ADSB",
	20: "GUIDED_NOGPS",
	21: "SMART_RTL",
	22: "FLOWHOLD",
	23: "FOLLOW",
	24: "ZIGZAG",
	25: "SYSTEMID",
	26: "AUTOROTATE",
	27: "AUTO_RTL",
}

// modeName resolves a mode number to its label, keeping the raw number
// visible when the mode is unknown.
func modeName(m byte) string {
	if name, ok := copterModes[m]; ok {
		return name
	}
	return fmt.Sprintf("MODE(%d)", m)
}
