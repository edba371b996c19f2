// Package config handles the stcr.toml host configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/zurustar/stcr/pkg/logger"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "stcr.toml"

// File represents an stcr.toml configuration.
type File struct {
	Host     Host              `toml:"host"`
	Scripts  Scripts           `toml:"scripts"`
	Sessions []Session         `toml:"session"`
	Keys     map[string]string `toml:"keys"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`

	tick    time.Duration
	timeout time.Duration
}

// Host configures the runtime host.
type Host struct {
	LogLevel string `toml:"log_level"`
	JSONLogs bool   `toml:"json_logs"`
	Tick     string `toml:"tick"`
	Timeout  string `toml:"timeout"`
	Headless *bool  `toml:"headless"`
	Encoding string `toml:"encoding"`
}

// Scripts configures where scripts are loaded from.
type Scripts struct {
	Dir string `toml:"dir"`
}

// Session describes one interpreter instance started at launch.
type Session struct {
	Script  string `toml:"script"`
	Segment string `toml:"segment"`
}

// Load parses the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	f.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates configuration text.
func Parse(data []byte) (*File, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindAndLoad walks up from startDir to find an stcr.toml file, then loads
// it. It returns nil without error if no file is found.
func FindAndLoad(startDir string) (*File, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (f *File) validate() error {
	if f.Host.LogLevel != "" {
		if _, err := logger.ParseLevel(f.Host.LogLevel); err != nil {
			return fmt.Errorf("host.log_level: %w", err)
		}
	}

	var err error
	if f.tick, err = parseDuration("host.tick", f.Host.Tick); err != nil {
		return err
	}
	if f.timeout, err = parseDuration("host.timeout", f.Host.Timeout); err != nil {
		return err
	}

	for i, s := range f.Sessions {
		if s.Script == "" {
			return fmt.Errorf("session[%d]: script is required", i)
		}
	}
	for key, event := range f.Keys {
		if event == "" {
			return fmt.Errorf("keys.%s: event name is required", key)
		}
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must be non-negative, got %s", field, s)
	}
	return d, nil
}

// TickDuration returns host.tick, or zero if unset.
func (f *File) TickDuration() time.Duration {
	return f.tick
}

// TimeoutDuration returns host.timeout, or zero if unset.
func (f *File) TimeoutDuration() time.Duration {
	return f.timeout
}

// ScriptDir returns the script directory resolved against the file's
// directory. It is empty when unset.
func (f *File) ScriptDir() string {
	if f.Scripts.Dir == "" {
		return ""
	}
	if filepath.IsAbs(f.Scripts.Dir) || f.Dir == "" {
		return f.Scripts.Dir
	}
	return filepath.Join(f.Dir, f.Scripts.Dir)
}
