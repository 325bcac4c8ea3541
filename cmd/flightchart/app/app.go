package app

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"

	"github.com/surya-garg/UAVLogViewer/internal/archive"
	"github.com/surya-garg/UAVLogViewer/internal/dataflash"
	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

const jpegQuality = 98

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	series, err := loadSeries(ctx, config)
	if err != nil {
		return err
	}

	logger.Info("series loaded",
		slog.Group("stats",
			slog.String("type", series.MsgType),
			slog.String("field", series.Field),
			slog.Int("points", series.Stats.Count),
			slog.Float64("min", series.Stats.Min),
			slog.Float64("max", series.Stats.Max),
		))

	renderer, err := NewChartRenderer(RenderConfig{
		Width:  config.Width,
		Height: config.Height,
		Title:  config.Title,
		Theme:  config.Theme,
	})
	if err != nil {
		return fmt.Errorf("creating chart renderer: %w", err)
	}

	logger.Info("rendering chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(series)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	if err = writeImage(config.OutputFile, config.Format, img); err != nil {
		return err
	}

	logger.Info("chart written", slog.String("file", config.OutputFile))
	return nil
}

func loadSeries(ctx context.Context, config *Config) (*flight.Series, error) {
	if config.LogPath != "" {
		return seriesFromLog(config)
	}
	return seriesFromArchive(ctx, config)
}

func seriesFromLog(config *Config) (*flight.Series, error) {
	dec, err := dataflash.Open(config.LogPath)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	log, err := flight.Ingest(dec)
	if err != nil {
		return nil, fmt.Errorf("ingesting %s: %w", config.LogPath, err)
	}

	series, ok := log.TimeSeries(config.MsgType, config.Field)
	if !ok {
		return nil, fmt.Errorf("no numeric %s.%s data in %s", config.MsgType, config.Field, config.LogPath)
	}
	return series, nil
}

func seriesFromArchive(ctx context.Context, config *Config) (*flight.Series, error) {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return nil, fmt.Errorf("archive '%s' does not exist: %w", config.DBPath, err)
	}

	store, err := archive.New(config.DBPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	iter, err := store.Series(ctx, config.FlightID, config.MsgType, config.Field)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var pts []flight.Point
	for iter.Next(ctx) {
		p := iter.Current()
		pts = append(pts, flight.Point{Time: float64(p.TimeUS) / 1e6, Value: p.Value})
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}

	series := flight.NewSeries(config.MsgType, config.Field, pts)
	if series == nil {
		return nil, fmt.Errorf("no numeric %s.%s data in flight %d", config.MsgType, config.Field, config.FlightID)
	}
	return series, nil
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithError(out, &err)

	switch format {
	case ImagePNG:
		err = png.Encode(out, img)
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality})
	default:
		err = fmt.Errorf("unsupported image format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

func closeWithError(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
