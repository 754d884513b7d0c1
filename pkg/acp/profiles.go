package acp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Profile is a named agent launch configuration, loadable from a
// profiles file so callers don't hardcode command lines.
type Profile struct {
	Command        string            `yaml:"command" json:"command"`
	Args           []string          `yaml:"args" json:"args"`
	Cwd            string            `yaml:"cwd" json:"cwd"`
	Env            map[string]string `yaml:"env" json:"env"`
	DefaultTimeout string            `yaml:"default_timeout" json:"default_timeout"`
}

// ProcessConfig converts the profile into launch parameters.
func (p *Profile) ProcessConfig() ProcessConfig {
	return ProcessConfig{
		Command: p.Command,
		Args:    p.Args,
		Cwd:     p.Cwd,
		Env:     p.Env,
	}
}

// Timeout parses the profile's default request timeout, falling back to
// DefaultTimeout when unset.
func (p *Profile) Timeout() (time.Duration, error) {
	if p.DefaultTimeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(p.DefaultTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid default_timeout %q: %w", p.DefaultTimeout, err)
	}
	return d, nil
}

type profilesFile struct {
	Agents map[string]*Profile `yaml:"agents" json:"agents"`
}

// LoadProfiles reads a profiles file. The format follows the extension:
// .json and .json5 are parsed as JSON5 (comments allowed), everything
// else as YAML.
func LoadProfiles(path string) (map[string]*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var parsed profilesFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		err = json5.Unmarshal(data, &parsed)
	default:
		err = yaml.Unmarshal(data, &parsed)
	}
	if err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", filepath.Base(path), err)
	}
	if len(parsed.Agents) == 0 {
		return nil, fmt.Errorf("profiles %s: no agents defined", filepath.Base(path))
	}

	for name, profile := range parsed.Agents {
		if profile == nil || profile.Command == "" {
			return nil, fmt.Errorf("profiles %s: agent %q has no command", filepath.Base(path), name)
		}
		if cfg := profile.ProcessConfig(); cfg.Cwd != "" {
			if err = cfg.Validate(); err != nil {
				return nil, fmt.Errorf("profiles %s: agent %q: %w", filepath.Base(path), name, err)
			}
		}
		if _, err = profile.Timeout(); err != nil {
			return nil, fmt.Errorf("profiles %s: agent %q: %w", filepath.Base(path), name, err)
		}
	}
	return parsed.Agents, nil
}
