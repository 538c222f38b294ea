package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Token   string `toml:"token" mapstructure:"token"`
	Host    string `toml:"host" mapstructure:"host"`
	Port    string `toml:"port" mapstructure:"port"`
	Libonnx string `toml:"libonnx" mapstructure:"libonnx"`

	ModelDir      string `toml:"model_dir" mapstructure:"model_dir"`
	ModelFileName string `toml:"model_file_name" mapstructure:"model_file_name"`

	// Input resolution used when the model cannot be loaded or declares
	// dynamic spatial dimensions.
	FallbackHeight int `toml:"fallback_height" mapstructure:"fallback_height"`
	FallbackWidth  int `toml:"fallback_width" mapstructure:"fallback_width"`

	JPEGQuality    int   `toml:"jpeg_quality" mapstructure:"jpeg_quality"`
	MaxUploadBytes int64 `toml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	MaxPixels      int   `toml:"max_pixels" mapstructure:"max_pixels"`
	AutoOrient     bool  `toml:"auto_orient" mapstructure:"auto_orient"`

	Workers        int `toml:"workers" mapstructure:"workers"`
	IntraOpThreads int `toml:"intra_op_threads" mapstructure:"intra_op_threads"`
}

const DefaultPath = "config.toml"

var (
	cfg      = Default()
	loadOnce sync.Once
)

func Default() Config {
	return Config{
		Token:          "",
		Host:           "0.0.0.0",
		Port:           "8000",
		ModelDir:       "models",
		ModelFileName:  "generator.onnx",
		FallbackHeight: 256,
		FallbackWidth:  256,
		JPEGQuality:    75,
		MaxUploadBytes: 16 << 20,
		MaxPixels:      40_000_000,
		Workers:        1,
	}
}

// C returns the process configuration. It reads SUPERRES_CONFIG (or
// config.toml in the working directory) once, on top of Default.
func C() Config {
	loadOnce.Do(func() {
		path := os.Getenv("SUPERRES_CONFIG")
		if path == "" {
			path = DefaultPath
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		c, err := Load(path)
		if err != nil {
			panic(err)
		}
		cfg = c
	})
	return cfg
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	c := Default()
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.FallbackHeight <= 0 || c.FallbackWidth <= 0 {
		return fmt.Errorf("fallback size must be positive, got %dx%d", c.FallbackWidth, c.FallbackHeight)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be in [1,100], got %d", c.JPEGQuality)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("max_pixels must be positive, got %d", c.MaxPixels)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.IntraOpThreads < 0 {
		return fmt.Errorf("intra_op_threads must not be negative, got %d", c.IntraOpThreads)
	}
	return nil
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
