package app

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

const (
	dpi            = 72.0
	fontSize       = 12.0
	tickMarkLength = 5

	pixelsPerTimeLabel  = 120.0
	pixelsPerValueLabel = 50.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 60
	defaultRightBorder  = 40
)

// BorderConfig defines the margins around the plot area
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for the value scale
	Bottom int // Space for the time scale and info bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for chart rendering
type RenderConfig struct {
	Width  int // Output image width in pixels
	Height int // Output image height in pixels

	Title string // Chart title; empty renders as type.field

	// Visual configuration
	FontSize float64 // Font size in points
	Theme    ColorTheme

	// Border configuration
	BorderConfig BorderConfig
}

// ChartRenderer draws one flight time series as a line chart
type ChartRenderer struct {
	config  RenderConfig
	palette Palette
}

// NewChartRenderer creates a new chart renderer with the given configuration
func NewChartRenderer(config RenderConfig) (*ChartRenderer, error) {
	// Set defaults for zero values
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	if config.Width < minWidth || config.Height < minHeight {
		return nil, fmt.Errorf("image must be at least %dx%d", minWidth, minHeight)
	}

	return &ChartRenderer{config: config, palette: GetPalette(config.Theme)}, nil
}

// Render creates an image of the series with scales and annotations
func (r *ChartRenderer) Render(series *flight.Series) (*image.RGBA, error) {
	if series == nil || len(series.Points) == 0 {
		return nil, errors.New("series has no points")
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.palette.Background), image.Point{}, draw.Src)

	plotArea := image.Rect(
		r.config.BorderConfig.Left,
		r.config.BorderConfig.Top,
		r.config.Width-r.config.BorderConfig.Right,
		r.config.Height-r.config.BorderConfig.Bottom,
	)

	ann, err := newAnnotator(annotatorConfig{
		FontSize: r.config.FontSize,
		Palette:  r.palette,
		Borders:  r.config.BorderConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	bounds := seriesBounds(series)

	title := r.config.Title
	if title == "" {
		title = fmt.Sprintf("%s.%s", series.MsgType, series.Field)
	}

	// First draw annotations
	if err = ann.annotate(img, plotArea, series, bounds, title); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	// Then render the series line (overwriting any overlapping grid lines)
	drawSeries(img, plotArea, series, bounds, r.palette.Line)

	return img, nil
}

// chartBounds is the data window mapped onto the plot area.
type chartBounds struct {
	TMin, TMax float64
	VMin, VMax float64
}

func seriesBounds(series *flight.Series) chartBounds {
	b := chartBounds{
		TMin: series.Points[0].Time,
		TMax: series.Points[len(series.Points)-1].Time,
		VMin: series.Stats.Min,
		VMax: series.Stats.Max,
	}

	// A flat or single-point series still needs a non-zero window
	if b.TMax <= b.TMin {
		b.TMax = b.TMin + 1
	}
	if b.VMax <= b.VMin {
		b.VMin--
		b.VMax++
	}
	return b
}

func (b chartBounds) x(area image.Rectangle, t float64) int {
	return area.Min.X + int(math.Round((t-b.TMin)/(b.TMax-b.TMin)*float64(area.Dx()-1)))
}

func (b chartBounds) y(area image.Rectangle, v float64) int {
	return area.Max.Y - 1 - int(math.Round((v-b.VMin)/(b.VMax-b.VMin)*float64(area.Dy()-1)))
}

func drawSeries(img *image.RGBA, area image.Rectangle, series *flight.Series, bounds chartBounds, c color.Color) {
	px := bounds.x(area, series.Points[0].Time)
	py := bounds.y(area, series.Points[0].Value)
	img.Set(px, py, c)

	for _, p := range series.Points[1:] {
		x := bounds.x(area, p.Time)
		y := bounds.y(area, p.Value)
		drawLine(img, px, py, x, y, c)
		px, py = x, y
	}
}

// drawLine steps along the longer axis one pixel at a time so the segment
// stays continuous at any slope.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := x1 - x0
	dy := y1 - y0

	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		img.Set(x0, y0, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		img.Set(x0+int(math.Round(t*float64(dx))), y0+int(math.Round(t*float64(dy))), c)
	}
}

// Internal annotator implementation
type annotatorConfig struct {
	FontSize float64
	Palette  Palette
	Borders  BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.NewUniform(config.Palette.Text))

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, area image.Rectangle, series *flight.Series, bounds chartBounds, title string) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	a.drawFrame(img, area)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing value scale", func() error { return a.drawValueScale(img, area, bounds) }},
		{"drawing time scale", func() error { return a.drawTimeScale(img, area, bounds) }},
		{"drawing title", func() error { return a.drawTitle(img, title) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, series, bounds) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) drawFrame(img *image.RGBA, area image.Rectangle) {
	c := a.config.Palette.Frame
	for x := area.Min.X; x < area.Max.X; x++ {
		img.Set(x, area.Min.Y, c)
		img.Set(x, area.Max.Y-1, c)
	}
	for y := area.Min.Y; y < area.Max.Y; y++ {
		img.Set(area.Min.X, y, c)
		img.Set(area.Max.X-1, y, c)
	}
}

func (a *annotator) drawValueScale(img *image.RGBA, area image.Rectangle, bounds chartBounds) error {
	step := niceValueStep(bounds.VMax-bounds.VMin, area.Dy())
	start := math.Ceil(bounds.VMin/step) * step

	// Get actual font height in pixels
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for v := start; v <= bounds.VMax; v += step {
		y := bounds.y(area, v)

		// Grid line across the plot, skipping the frame rows
		if y > area.Min.Y && y < area.Max.Y-1 {
			for x := area.Min.X + 1; x < area.Max.X-1; x++ {
				img.Set(x, y, a.config.Palette.Grid)
			}
		}

		// Tick mark outside the frame
		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			img.Set(x, y, a.config.Palette.Frame)
		}

		// Right-align the label against the tick mark
		label := formatValue(v)
		width := font.MeasureString(a.fontFace, label)
		textY := y + fontHeight/2 - metrics.Descent.Round()
		pt := freetype.Pt(area.Min.X-tickMarkLength-4-width.Round(), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing value label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, area image.Rectangle, bounds chartBounds) error {
	step := niceTimeStep(bounds.TMax-bounds.TMin, area.Dx())
	start := math.Ceil(bounds.TMin/step) * step

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := area.Max.Y + tickMarkLength + fontHeight

	for t := start; t <= bounds.TMax; t += step {
		x := bounds.x(area, t)

		// Grid line up the plot, skipping the frame columns
		if x > area.Min.X && x < area.Max.X-1 {
			for y := area.Min.Y + 1; y < area.Max.Y-1; y++ {
				img.Set(x, y, a.config.Palette.Grid)
			}
		}

		// Tick mark below the frame
		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, a.config.Palette.Frame)
		}

		// Center the label under the tick mark
		label := formatSeconds(t)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-width.Round()/2, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTitle(img *image.RGBA, title string) error {
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	// Center horizontally, and vertically within the top border
	width := font.MeasureString(a.fontFace, title)
	x := (img.Bounds().Dx() - width.Round()) / 2
	textY := (a.config.Borders.Top+fontHeight)/2 - metrics.Descent.Round()

	pt := freetype.Pt(x, textY)
	if _, err := a.context.DrawString(title, pt); err != nil {
		return fmt.Errorf("drawing title text: %w", err)
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, series *flight.Series, bounds chartBounds) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%d points", series.Stats.Count)
	sb.WriteString("; ")
	fmt.Fprintf(&sb, "min %s, max %s, mean %s, std %s",
		formatValue(series.Stats.Min), formatValue(series.Stats.Max),
		formatValue(series.Stats.Mean), formatValue(series.Stats.StdDev))
	sb.WriteString("; ")
	fmt.Fprintf(&sb, "t = %s to %s", formatSeconds(bounds.TMin), formatSeconds(bounds.TMax))

	// Center text vertically in the lower half of the bottom border,
	// below the time scale labels
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom/2-fontHeight)/2 - metrics.Descent.Round()

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// Helper functions

func niceValueStep(span float64, pixels int) float64 {
	desiredSteps := float64(pixels) / pixelsPerValueLabel
	targetStep := span / desiredSteps

	// Find the closest 1-2-5 step size
	magnitude := math.Pow(10, math.Floor(math.Log10(targetStep)))
	for _, mult := range []float64{1, 2, 5, 10} {
		step := mult * magnitude
		if step >= targetStep {
			// If this step would give us at least 2 points
			if span/step >= 2 {
				return step
			}
			break
		}
	}

	// If we can't find a suitable step or would get too few points,
	// return half the span to show at least the midpoint
	return span / 2
}

func niceTimeStep(span float64, pixels int) float64 {
	// Nice time intervals in seconds
	steps := []float64{
		0.1, 0.2, 0.5,
		1, 2, 5, 10, 15, 30,
		60, 120, 300, 600, 900, 1800,
		3600, 7200, 14400,
	}

	desiredSteps := float64(pixels) / pixelsPerTimeLabel
	targetStep := span / desiredSteps

	for _, step := range steps {
		if step >= targetStep {
			if span/step >= 2 {
				return step
			}
			break
		}
	}

	return span / 2
}

func formatValue(v float64) string {
	if math.Abs(v) >= 1000 {
		f, suffix := humanize.ComputeSI(math.Abs(v))
		if v < 0 {
			f = -f
		}
		return fmt.Sprintf("%.4g%s", f, suffix)
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second))
	return d.Round(time.Millisecond).String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
