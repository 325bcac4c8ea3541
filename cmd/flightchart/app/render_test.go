package app

import (
	"image"
	"image/color"
	"testing"

	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

func testSeries(t *testing.T) *flight.Series {
	t.Helper()
	series := flight.NewSeries("GPS", "Alt", []flight.Point{
		{Time: 0, Value: 0},
		{Time: 10, Value: 10},
	})
	if series == nil {
		t.Fatal("NewSeries returned nil")
	}
	return series
}

func asRGBA(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func TestRender(t *testing.T) {
	renderer, err := NewChartRenderer(RenderConfig{Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("NewChartRenderer: %v", err)
	}

	img, err := renderer.Render(testSeries(t))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if got, want := img.Bounds().Dx(), 400; got != want {
		t.Errorf("width = %d, want %d", got, want)
	}
	if got, want := img.Bounds().Dy(), 300; got != want {
		t.Errorf("height = %d, want %d", got, want)
	}

	if got, want := img.RGBAAt(5, 150), asRGBA(GetPalette(LightTheme).Background); got != want {
		t.Errorf("margin pixel = %v, want background %v", got, want)
	}

	// With default borders the plot area is (80,40)-(360,240), so a
	// 0..10 over 0..10 series runs from (80,239) up to (359,40).
	line := asRGBA(GetPalette(LightTheme).Line)
	for _, p := range []image.Point{{X: 80, Y: 239}, {X: 220, Y: 139}, {X: 359, Y: 40}} {
		if got := img.RGBAAt(p.X, p.Y); got != line {
			t.Errorf("pixel %v = %v, want line %v", p, got, line)
		}
	}
}

func TestRenderDarkTheme(t *testing.T) {
	renderer, err := NewChartRenderer(RenderConfig{Width: 400, Height: 300, Theme: DarkTheme})
	if err != nil {
		t.Fatalf("NewChartRenderer: %v", err)
	}

	img, err := renderer.Render(testSeries(t))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	dark := GetPalette(DarkTheme)
	if got, want := img.RGBAAt(5, 150), asRGBA(dark.Background); got != want {
		t.Errorf("margin pixel = %v, want background %v", got, want)
	}
	if got, want := img.RGBAAt(80, 239), asRGBA(dark.Line); got != want {
		t.Errorf("line pixel = %v, want %v", got, want)
	}
}

func TestRenderDefaults(t *testing.T) {
	renderer, err := NewChartRenderer(RenderConfig{})
	if err != nil {
		t.Fatalf("NewChartRenderer: %v", err)
	}

	img, err := renderer.Render(testSeries(t))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if got, want := img.Bounds().Dx(), defaultWidth; got != want {
		t.Errorf("width = %d, want %d", got, want)
	}
	if got, want := img.Bounds().Dy(), defaultHeight; got != want {
		t.Errorf("height = %d, want %d", got, want)
	}
}

func TestRenderTooSmall(t *testing.T) {
	if _, err := NewChartRenderer(RenderConfig{Width: 100, Height: 100}); err == nil {
		t.Fatal("expected error for undersized image")
	}
}

func TestRenderEmptySeries(t *testing.T) {
	renderer, err := NewChartRenderer(RenderConfig{Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("NewChartRenderer: %v", err)
	}

	if _, err = renderer.Render(nil); err == nil {
		t.Error("expected error for nil series")
	}
	if _, err = renderer.Render(&flight.Series{MsgType: "GPS", Field: "Alt"}); err == nil {
		t.Error("expected error for series without points")
	}
}

func TestRenderFlatSeries(t *testing.T) {
	series := flight.NewSeries("BAT", "Volt", []flight.Point{
		{Time: 0, Value: 30},
		{Time: 10, Value: 30},
	})

	renderer, err := NewChartRenderer(RenderConfig{Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("NewChartRenderer: %v", err)
	}

	img, err := renderer.Render(series)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	// The padded value window puts a flat line mid-plot
	line := asRGBA(GetPalette(LightTheme).Line)
	if got := img.RGBAAt(200, 139); got != line {
		t.Errorf("pixel (200,139) = %v, want line %v", got, line)
	}
}

func TestSeriesBounds(t *testing.T) {
	series := flight.NewSeries("GPS", "Alt", []flight.Point{{Time: 1, Value: 30}})
	b := seriesBounds(series)

	if got, want := b.TMax, 2.0; got != want {
		t.Errorf("TMax = %v, want %v", got, want)
	}
	if got, want := b.VMin, 29.0; got != want {
		t.Errorf("VMin = %v, want %v", got, want)
	}
	if got, want := b.VMax, 31.0; got != want {
		t.Errorf("VMax = %v, want %v", got, want)
	}
}

func TestNiceValueStep(t *testing.T) {
	tests := []struct {
		span   float64
		pixels int
		want   float64
	}{
		{40, 412, 5},
		{2, 412, 0.5},
		{100, 100, 50},
		{1, 100, 0.5},
		{10, 200, 5},
	}
	for _, tt := range tests {
		if got := niceValueStep(tt.span, tt.pixels); got != tt.want {
			t.Errorf("niceValueStep(%v, %d) = %v, want %v", tt.span, tt.pixels, got, tt.want)
		}
	}
}

func TestNiceTimeStep(t *testing.T) {
	tests := []struct {
		span   float64
		pixels int
		want   float64
	}{
		{2, 904, 0.5},
		{10, 280, 5},
		{300, 904, 60},
		{0.05, 904, 0.025},
		{7200, 450, 3600},
	}
	for _, tt := range tests {
		if got := niceTimeStep(tt.span, tt.pixels); got != tt.want {
			t.Errorf("niceTimeStep(%v, %d) = %v, want %v", tt.span, tt.pixels, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "0"},
		{10, "10"},
		{12.6, "12.6"},
		{0.5, "0.5"},
		{999.9, "999.9"},
		{2500000, "2.5M"},
		{-1500, "-1.5k"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.v); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "0s"},
		{1, "1s"},
		{1.5, "1.5s"},
		{0.5, "500ms"},
		{90, "1m30s"},
		{3600, "1h0m0s"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.sec); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestDrawLine(t *testing.T) {
	c := color.RGBA{R: 0xff, A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	drawLine(img, 2, 2, 6, 4, c)

	for _, p := range []image.Point{{X: 2, Y: 2}, {X: 6, Y: 4}} {
		if got := img.RGBAAt(p.X, p.Y); got != c {
			t.Errorf("pixel %v = %v, want %v", p, got, c)
		}
	}

	var set int
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if img.RGBAAt(x, y) == c {
				set++
			}
		}
	}
	if got, want := set, 5; got != want {
		t.Errorf("set pixels = %d, want %d", got, want)
	}

	img = image.NewRGBA(image.Rect(0, 0, 10, 10))
	drawLine(img, 5, 5, 5, 5, c)
	if got := img.RGBAAt(5, 5); got != c {
		t.Errorf("degenerate line pixel = %v, want %v", got, c)
	}
}

func TestGetPalette(t *testing.T) {
	light := GetPalette(LightTheme)
	dark := GetPalette(DarkTheme)

	if light.Background == dark.Background {
		t.Error("light and dark themes share a background")
	}
	if got := GetPalette("nope"); got != light {
		t.Errorf("unknown theme = %v, want light fallback", got)
	}
}
