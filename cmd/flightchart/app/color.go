package app

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	LightTheme ColorTheme = "light"
	DarkTheme  ColorTheme = "dark"
)

type ColorTheme string

// Palette is the set of colors a chart theme draws with.
type Palette struct {
	Background color.Color
	Frame      color.Color
	Grid       color.Color
	Line       color.Color
	Text       color.Color
}

var palettes = map[ColorTheme]Palette{
	LightTheme: {
		Background: color.White,
		Frame:      color.RGBA{R: 0x3c, G: 0x3c, B: 0x3c, A: 0xff},
		Grid:       color.RGBA{R: 0xe1, G: 0xe1, B: 0xe1, A: 0xff},
		Line:       colorful.Hsv(205, 0.83, 0.71),
		Text:       color.RGBA{R: 0x1e, G: 0x1e, B: 0x1e, A: 0xff},
	},
	DarkTheme: {
		Background: color.RGBA{R: 0x10, G: 0x12, B: 0x18, A: 0xff},
		Frame:      color.RGBA{R: 0x8c, G: 0x8c, B: 0x8c, A: 0xff},
		Grid:       color.RGBA{R: 0x2d, G: 0x30, B: 0x3a, A: 0xff},
		Line:       colorful.Hsv(32, 0.76, 1),
		Text:       color.RGBA{R: 0xdc, G: 0xdc, B: 0xdc, A: 0xff},
	},
}

// GetPalette returns the named theme's palette, falling back to light.
func GetPalette(theme ColorTheme) Palette {
	if p, ok := palettes[theme]; ok {
		return p
	}
	return palettes[LightTheme]
}
