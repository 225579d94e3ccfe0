package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config carries default settings loaded from a YAML file. Flags given on
// the command line always win over config values.
type Config struct {
	// Out is the default output root for song folders.
	Out string `yaml:"out"`

	// Library is the default conversion library database path.
	Library string `yaml:"library"`

	Resolution    int     `yaml:"resolution"`
	RestThreshold float64 `yaml:"rest_threshold"`
	Rounding      string  `yaml:"rounding"`
	Overlaps      string  `yaml:"overlaps"`

	EmitRests    bool  `yaml:"emit_rests"`
	ExtractAudio *bool `yaml:"extract_audio"`
	Pitch        bool  `yaml:"pitch"`

	// Jobs is the default batch worker count.
	Jobs int `yaml:"jobs"`
}

// LoadConfig reads a config file. Unknown keys are rejected so typos
// surface instead of silently doing nothing. An empty path returns an
// empty config.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// libraryPath resolves the conversion library location: the --library
// flag, then the config file, then ~/.karaforge/library.db.
func libraryPath(opts *RootOptions, cfg *Config) (string, error) {
	if opts.Library != "" {
		return opts.Library, nil
	}
	if cfg.Library != "" {
		return cfg.Library, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".karaforge", "library.db"), nil
}
