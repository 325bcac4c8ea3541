package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/surya-garg/UAVLogViewer/internal/archive"
	"github.com/surya-garg/UAVLogViewer/internal/dataflash"
	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	log, err := ingest(config)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, config.LogPath, log)

	if config.Anomalies {
		printAnomalies(os.Stdout, log.Anomalies())
	}
	if config.Query != "" {
		if err := printQuery(os.Stdout, log, config.Query); err != nil {
			return err
		}
	}
	if config.MsgType != "" {
		if err := printRecords(os.Stdout, log, config.MsgType, config.Limit); err != nil {
			return err
		}
	}
	if config.DBPath != "" {
		if err := export(ctx, config, log, logger); err != nil {
			return err
		}
	}
	return nil
}

func ingest(config *Config) (*flight.Log, error) {
	var opts []flight.Option
	if config.ThresholdsFile != "" {
		thresholds, err := flight.ThresholdsFromFile(config.ThresholdsFile)
		if err != nil {
			return nil, fmt.Errorf("loading thresholds: %w", err)
		}
		opts = append(opts, flight.WithThresholds(thresholds))
	}

	dec, err := dataflash.Open(config.LogPath)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return flight.Ingest(dec, opts...)
}

func printSummary(w io.Writer, path string, log *flight.Log) {
	meta := log.Metadata()

	fmt.Fprintf(w, "Flight log: %s\n", path)
	fmt.Fprintf(w, "Messages:   %s across %d types\n", humanize.Comma(int64(log.Len())), len(log.Types()))
	if skipped := log.Skipped(); skipped > 0 {
		fmt.Fprintf(w, "Skipped:    %s corrupt spans\n", humanize.Comma(int64(skipped)))
	}
	if meta.DurationSeconds != nil {
		fmt.Fprintf(w, "Duration:   %.1f s\n", *meta.DurationSeconds)
	}
	if meta.MinAltitudeM != nil && meta.MaxAltitudeM != nil {
		fmt.Fprintf(w, "Altitude:   %.1f to %.1f m", *meta.MinAltitudeM, *meta.MaxAltitudeM)
		if meta.AvgAltitudeM != nil {
			fmt.Fprintf(w, " (avg %.1f m)", *meta.AvgAltitudeM)
		}
		fmt.Fprintln(w)
	}
	if meta.MinBatteryVoltage != nil && meta.MaxBatteryVoltage != nil {
		fmt.Fprintf(w, "Battery:    %.2f to %.2f V\n", *meta.MinBatteryVoltage, *meta.MaxBatteryVoltage)
	}
	fmt.Fprintf(w, "Events:     %d GPS loss, %d errors, %d mode changes, %d RC loss\n",
		len(meta.GPSLossEvents), len(meta.Errors), len(meta.ModeChanges), len(meta.RCLossEvents))

	fmt.Fprintln(w, "\nMessage types:")
	counts := log.Counts()
	for _, typ := range log.Types() {
		fmt.Fprintf(w, "  %-8s %s\n", typ, humanize.Comma(int64(counts[typ])))
	}
}

func printAnomalies(w io.Writer, report flight.Report) {
	fmt.Fprintln(w, "\nAnomaly report:")
	total := len(report.Altitude) + len(report.Battery) + len(report.GPS) + len(report.Vibration)
	if total == 0 {
		fmt.Fprintln(w, "  none detected")
		return
	}
	for _, a := range report.Altitude {
		fmt.Fprintf(w, "  [%s] altitude rate %+.1f m/s", a.Severity, a.Value)
		if a.AltitudeChange != nil {
			fmt.Fprintf(w, " (%+.1f m)", *a.AltitudeChange)
		}
		fmt.Fprintf(w, " at %s\n", eventTime(a.TimeUS))
	}
	for _, a := range report.Battery {
		fmt.Fprintf(w, "  [%s] voltage drop %.2f V at %s\n", a.Severity, a.Value, eventTime(a.TimeUS))
	}
	for _, e := range report.GPS {
		fmt.Fprintf(w, "  [gps] fix lost (status %d) at %s\n", e.Status, eventTime(e.TimeUS))
	}
	for _, a := range report.Vibration {
		fmt.Fprintf(w, "  [%s] vibration %.1f", a.Severity, a.Value)
		if a.VibeX != nil && a.VibeY != nil && a.VibeZ != nil {
			fmt.Fprintf(w, " (x %.1f, y %.1f, z %.1f)", *a.VibeX, *a.VibeY, *a.VibeZ)
		}
		fmt.Fprintf(w, " at %s\n", eventTime(a.TimeUS))
	}
}

func eventTime(us uint64) string {
	return fmt.Sprintf("t=%.1fs", float64(us)/1e6)
}

func printQuery(w io.Writer, log *flight.Log, query string) error {
	out, err := json.MarshalIndent(log.Query(query), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding query result: %w", err)
	}
	fmt.Fprintf(w, "\nQuery %q:\n%s\n", query, out)
	return nil
}

func printRecords(w io.Writer, log *flight.Log, msgType string, limit int) error {
	recs, total := log.Records(msgType, limit)
	if total == 0 {
		return fmt.Errorf("no %s messages in this log", msgType)
	}

	fmt.Fprintf(w, "\n%s records (%d of %s):\n", msgType, len(recs), humanize.Comma(int64(total)))
	for _, r := range recs {
		out, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		fmt.Fprintf(w, "  %s\n", out)
	}
	return nil
}

func export(ctx context.Context, config *Config, log *flight.Log, logger *slog.Logger) error {
	store, err := archive.New(config.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.SaveLog(ctx, filepath.Base(config.LogPath), log)
	if err != nil {
		return fmt.Errorf("exporting flight: %w", err)
	}

	logger.Info("flight exported",
		slog.String("archive", config.DBPath),
		slog.Int64("flight", id),
		slog.String("records", humanize.Comma(int64(log.Len()))))
	return nil
}
