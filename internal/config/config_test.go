package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultValues(t *testing.T) {
	c := Default()
	if c.Listener.Port != 4739 {
		t.Errorf("got listener port %d, want 4739", c.Listener.Port)
	}
	if c.Sink.Kind != "memory" {
		t.Errorf("got sink kind %q, want memory", c.Sink.Kind)
	}
	if c.Sampling.DefaultRate != 1 {
		t.Errorf("got default sampling rate %d, want 1", c.Sampling.DefaultRate)
	}
	if !c.Monitoring.Enabled {
		t.Errorf("expected monitoring enabled by default")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c != Default() {
		t.Errorf("Load(\"\") must equal Default()")
	}
}

func TestLoadOverlaysYAMLOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
listener:
  port: 5000
sink:
  kind: postgres
  host: db.internal
sampling:
  overwrite_rate: 10
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Listener.Port != 5000 {
		t.Errorf("got listener port %d, want 5000", c.Listener.Port)
	}
	if c.Sink.Kind != "postgres" || c.Sink.Host != "db.internal" {
		t.Errorf("got sink %+v, want kind=postgres host=db.internal", c.Sink)
	}
	if c.Sampling.OverwriteRate != 10 {
		t.Errorf("got overwrite rate %d, want 10", c.Sampling.OverwriteRate)
	}
	// Fields untouched by the YAML document must keep their Default() value.
	if c.Listener.Workers != 8 {
		t.Errorf("got workers %d, want default 8 to survive a partial overlay", c.Listener.Workers)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestBindFlagsOverridesLoadedValue(t *testing.T) {
	c := Default()
	c.Listener.Port = 5000 // simulate a YAML-loaded value

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindFlags(fs)

	if err := fs.Parse([]string{"--listen-port=6000"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Listener.Port != 6000 {
		t.Errorf("got listener port %d, want the flag override 6000", c.Listener.Port)
	}
}

func TestBindFlagsDefaultMatchesLoadedValueWhenUnset(t *testing.T) {
	c := Default()
	c.Sink.Kind = "postgres" // simulate a YAML-loaded value

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Sink.Kind != "postgres" {
		t.Errorf("got sink kind %q, want the pre-bind loaded value postgres to survive an empty flag parse", c.Sink.Kind)
	}
}
