// Package config loads the TOML settings file. Fields missing from the file
// keep their Default values; unknown keys are rejected.
package config

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"swapline/src/render"
)

const MaxFramesInFlight = 4

type Config struct {
	Window  Window  `toml:"window"`
	Render  Render  `toml:"render"`
	Shaders Shaders `toml:"shaders"`
	Stats   Stats   `toml:"stats"`
	Log     Log     `toml:"log"`
}

type Window struct {
	Title     string `toml:"title"`
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	Resizable bool   `toml:"resizable"`
}

type Render struct {
	FramesInFlight int    `toml:"frames_in_flight"`
	PresentMode    string `toml:"present_mode"`
	// ImageCount of zero lets the device pick one above its minimum.
	ImageCount int        `toml:"image_count"`
	Depth      bool       `toml:"depth"`
	ClearColor [4]float32 `toml:"clear_color"`
	Validation bool       `toml:"validation"`
	// SierpinskiDepth subdivides the demo triangle; zero draws it whole.
	SierpinskiDepth int `toml:"sierpinski_depth"`
}

type Shaders struct {
	Vertex   string `toml:"vertex"`
	Fragment string `toml:"fragment"`
	// Watch rebuilds the pipeline when either file changes.
	Watch bool `toml:"watch"`
}

type Stats struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

type Log struct {
	Level string `toml:"level"`
}

// Duration reads and writes time.Duration as a string such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() Config {
	return Config{
		Window: Window{
			Title:     "swapline",
			Width:     800,
			Height:    600,
			Resizable: true,
		},
		Render: Render{
			FramesInFlight: render.DefaultFramesInFlight,
			PresentMode:    render.PresentMailbox.String(),
			Depth:          true,
			ClearColor:     [4]float32{0.01, 0.01, 0.01, 1},
		},
		Shaders: Shaders{
			Vertex:   "shaders/simple_shader.vert.spv",
			Fragment: "shaders/simple_shader.frag.spv",
		},
		Stats: Stats{
			Enabled:  true,
			Interval: Duration{5 * time.Second},
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, cfg.Validate()
}

// Decode strictly decodes TOML into cfg.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return errors.Errorf("unknown keys:\n%s", strict.String())
		}
		return errors.Wrap(err, "decode")
	}
	return nil
}

func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if n := c.Render.FramesInFlight; n < 1 || n > MaxFramesInFlight {
		return errors.Errorf("frames_in_flight %d outside [1,%d]", n, MaxFramesInFlight)
	}
	if _, err := render.ParsePresentMode(c.Render.PresentMode); err != nil {
		return err
	}
	if c.Render.ImageCount < 0 {
		return errors.Errorf("image_count %d is negative", c.Render.ImageCount)
	}
	for i, v := range c.Render.ClearColor {
		if v < 0 || v > 1 {
			return errors.Errorf("clear_color[%d] = %g outside [0,1]", i, v)
		}
	}
	if c.Render.SierpinskiDepth < 0 || c.Render.SierpinskiDepth > 8 {
		return errors.Errorf("sierpinski_depth %d outside [0,8]", c.Render.SierpinskiDepth)
	}
	if strings.TrimSpace(c.Shaders.Vertex) == "" || strings.TrimSpace(c.Shaders.Fragment) == "" {
		return errors.New("shader paths must not be empty")
	}
	if c.Stats.Interval.Duration <= 0 {
		return errors.Errorf("stats interval %s must be positive", c.Stats.Interval)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c Config) PresentMode() render.PresentMode {
	m, _ := render.ParsePresentMode(c.Render.PresentMode)
	return m
}

func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, errors.Errorf("unknown log level %q", l.Level)
	}
	return level, nil
}
