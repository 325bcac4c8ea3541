package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

const (
	defaultWidth  = 1024
	defaultHeight = 512

	minWidth  = 320
	minHeight = 200
)

type Config struct {
	LogPath    string
	DBPath     string
	FlightID   int64
	MsgType    string
	Field      string
	OutputFile string
	Format     ImageFormat
	Width      int
	Height     int
	Theme      ColorTheme
	Title      string
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Theme:  LightTheme,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	flag.StringVar(&c.LogPath, "log", "", "Path to a dataflash log (.bin)")
	flag.StringVar(&c.DBPath, "db", "", "Path to a flight archive database")
	flag.Int64Var(&c.FlightID, "flight", 1, "Flight ID within the archive")
	flag.StringVar(&c.MsgType, "type", "", "Message type to chart (e.g. GPS)")
	flag.StringVar(&c.Field, "field", "", "Numeric field of the message type (e.g. Alt)")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.IntVar(&c.Width, "width", defaultWidth, "Output image width in pixels")
	flag.IntVar(&c.Height, "height", defaultHeight, "Output image height in pixels")
	flag.StringVar(&theme, "theme", string(LightTheme), "Chart color theme. [light, dark]")
	flag.StringVar(&c.Title, "title", "", "Chart title (defaults to type.field)")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	var err error
	if c.LogPath == "" && c.DBPath == "" {
		err = errors.New("either a log file or an archive database is required")
	} else if c.LogPath != "" && c.DBPath != "" {
		err = errors.New("log file and archive database are mutually exclusive")
	} else if c.DBPath != "" && c.FlightID <= 0 {
		err = errors.New("flight id is required")
	} else if c.MsgType == "" {
		err = errors.New("message type is required")
	} else if c.Field == "" {
		err = errors.New("field name is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.Width < minWidth || c.Height < minHeight {
		err = fmt.Errorf("image must be at least %dx%d", minWidth, minHeight)
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := palettes[ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
