package app

import (
	"errors"
	"flag"
)

type Config struct {
	LogPath        string
	ThresholdsFile string
	Query          string
	MsgType        string
	Limit          int
	DBPath         string
	Anomalies      bool
}

func NewConfig() *Config {
	return &Config{
		Limit: 10,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	flag.StringVar(&c.LogPath, "log", "", "Path to the .bin dataflash log")
	flag.StringVar(&c.ThresholdsFile, "thresholds", "", "Path to a YAML anomaly thresholds file")
	flag.StringVar(&c.Query, "q", "", "Ask a question about the flight, e.g. \"max altitude\"")
	flag.StringVar(&c.MsgType, "type", "", "Dump records of this message type")
	flag.IntVar(&c.Limit, "limit", c.Limit, "Maximum records to dump with -type")
	flag.StringVar(&c.DBPath, "db", "", "Export the flight into this SQLite archive")
	flag.BoolVar(&c.Anomalies, "anomalies", false, "Print the anomaly report")
	flag.Parse()

	var err error
	if c.LogPath == "" {
		err = errors.New("log path is required")
	} else if c.Limit <= 0 {
		err = errors.New("limit must be positive")
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}
