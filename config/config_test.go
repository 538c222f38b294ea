package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
port = "9000"
fallback_height = 128
fallback_width = 96
jpeg_quality = 90
auto_orient = true
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Port != "9000" {
		t.Errorf("Port = %q; want %q", c.Port, "9000")
	}
	if c.FallbackHeight != 128 || c.FallbackWidth != 96 {
		t.Errorf("fallback = %dx%d; want 96x128", c.FallbackWidth, c.FallbackHeight)
	}
	if c.JPEGQuality != 90 {
		t.Errorf("JPEGQuality = %d; want 90", c.JPEGQuality)
	}
	if !c.AutoOrient {
		t.Errorf("AutoOrient = false; want true")
	}
	// untouched keys keep their defaults
	if c.Host != "0.0.0.0" || c.Workers != 1 || c.ModelDir != "models" {
		t.Errorf("defaults lost: %+v", c)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad toml":     `port = `,
		"zero height":  `fallback_height = 0`,
		"quality high": `jpeg_quality = 101`,
		"quality zero": `jpeg_quality = 0`,
		"no workers":   `workers = 0`,
		"neg threads":  `intra_op_threads = -1`,
		"upload limit": `max_upload_bytes = 0`,
		"pixels limit": `max_pixels = -5`,
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data)); err == nil {
			t.Errorf("%s: Parse(%q) succeeded; want error", name, data)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`token = "secret"`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Token != "secret" {
		t.Errorf("Token = %q; want %q", c.Token, "secret")
	}
	if c.Addr() != "0.0.0.0:8000" {
		t.Errorf("Addr() = %q; want %q", c.Addr(), "0.0.0.0:8000")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("Load of missing file succeeded; want error")
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v; want nil", err)
	}
}
