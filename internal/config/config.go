// Package config loads the YAML configuration file, following the same
// discovery-path search and deprecated-key fallback behaviour as
// original_source/src/osc_kreuz/config.py, and the struct-of-structs with
// yaml tags style of config.go. Mirrors the ambient-stack requirement in
// SPEC_FULL.md §2: no config framework beyond gopkg.in/yaml.v3.
package config

import (
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/config_default.yml
var embeddedDefault embed.FS

// HostPort names one receiver endpoint.
type HostPort struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
}

// AudioMatrixPath is one routing rule for the audiomatrix receiver type.
type AudioMatrixPath struct {
	Path     string `yaml:"path"`
	Type     string `yaml:"type"`
	Renderer string `yaml:"renderer"`
	Format   string `yaml:"format"`
}

// ReceiverConfig describes one entry in the top-level receivers list. Not
// every field applies to every dialect; unused fields are simply zero.
type ReceiverConfig struct {
	Type             string            `yaml:"type"`
	Hostname         string            `yaml:"hostname"`
	Port             int               `yaml:"port"`
	Hosts            []HostPort        `yaml:"hosts"`
	UpdateIntervalMs int               `yaml:"updateintervall"`
	DataFormat       string            `yaml:"dataformat"`
	Paths            []AudioMatrixPath `yaml:"paths"`
	Multicast        bool              `yaml:"multicast"`

	// mqttbridge-specific
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	CAFile   string `yaml:"ca_file"`
	Topic    string `yaml:"topic"`
}

// GlobalConfig is the "global:" section of the configuration file.
type GlobalConfig struct {
	NumberSources           int         `yaml:"number_sources"`
	NumberDirectSends       int         `yaml:"number_direct_sends"`
	RenderUnits             []string    `yaml:"render_units"`
	MaxGain                 float64     `yaml:"max_gain"`
	SendChangesOnly         bool        `yaml:"send_changes_only"`
	DataPortTimeout         float64     `yaml:"data_port_timeout"`
	IP                      string      `yaml:"ip"`
	PortUI                  int         `yaml:"port_ui"`
	PortData                int         `yaml:"port_data"`
	PortSettings            int         `yaml:"port_settings"`
	RoomName                string      `yaml:"room_name"`
	RoomPolygon             [][3]float64 `yaml:"room_polygon"`
	MinDist                 float64     `yaml:"min_dist"`
	CoordinateScalingFactor float64     `yaml:"coordinate_scaling_factor"`
	MinCompatibleVersion    string      `yaml:"min_compatible_version"`
}

// Config is the full parsed configuration file.
type Config struct {
	Global    GlobalConfig     `yaml:"global"`
	Receivers []ReceiverConfig `yaml:"receivers"`
}

// deprecatedAliases maps a canonical global key to the legacy keys that
// should still be honoured, logged as deprecated. Mirrors
// config.py's deprecated_config_strings table.
var deprecatedAliases = map[string][]string{
	"ip":            {"oscr_ip"},
	"port_ui":       {"inputport_ui"},
	"port_data":     {"inputport_data"},
	"port_settings": {"inputport_settings"},
}

var configFilenames = []string{
	"osc-kreuz_config.yml",
	"osc-kreuz-config.yml",
	"osc-kreuz_conf.yml",
	"osc-kreuz-conf.yml",
	"config.yml",
	"conf.yml",
}

// discoveryDirs returns the ordered list of directories to search when no
// explicit config path is given, per spec.md §6.
func discoveryDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "osc-kreuz"))
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "osc-kreuz"))
	}
	dirs = append(dirs, "/etc/osc-kreuz", "/usr/local/etc/osc-kreuz")
	return dirs
}

// discoverConfigPath finds the first existing candidate file, or "" if
// none is found.
func discoverConfigPath() string {
	for _, dir := range discoveryDirs() {
		for _, name := range configFilenames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// Load reads the configuration from path, or from the discovery search if
// path is empty, falling back to the embedded default. A YAML parse error
// is always fatal, per spec.md §7.
func Load(path string) (*Config, error) {
	var (
		data []byte
		err  error
		from string
	)

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: could not read %q: %w", path, err)
		}
		from = path
	} else if discovered := discoverConfigPath(); discovered != "" {
		data, err = os.ReadFile(discovered)
		if err != nil {
			return nil, fmt.Errorf("config: could not read %q: %w", discovered, err)
		}
		from = discovered
	} else {
		log.Printf("config: no config file found on any discovery path, using embedded default")
		data, err = embeddedDefault.ReadFile("defaults/config_default.yml")
		if err != nil {
			return nil, fmt.Errorf("config: could not read embedded default: %w", err)
		}
		from = "<embedded default>"
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: could not parse %s: %w", from, err)
	}
	return cfg, nil
}

// parse applies the deprecated-key fallback before struct-decoding the
// global section, then decodes the rest of the document normally.
func parse(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if globalRaw, ok := raw["global"].(map[string]interface{}); ok {
		applyDeprecatedAliases(globalRaw)
	}

	normalised, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(normalised, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDeprecatedAliases promotes a legacy key's value onto its canonical
// name when the canonical key is absent, logging a deprecation warning —
// mirrors read_config_option's fallback behaviour.
func applyDeprecatedAliases(global map[string]interface{}) {
	for canonical, aliases := range deprecatedAliases {
		if _, present := global[canonical]; present {
			continue
		}
		for _, alias := range aliases {
			if v, ok := global[alias]; ok {
				log.Printf("config: key %q is deprecated, use %q instead", alias, canonical)
				global[canonical] = v
				break
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Global.NumberSources == 0 {
		cfg.Global.NumberSources = 64
	}
	if cfg.Global.NumberDirectSends == 0 {
		cfg.Global.NumberDirectSends = 32
	}
	if cfg.Global.MaxGain == 0 {
		cfg.Global.MaxGain = 1.0
	}
	if cfg.Global.CoordinateScalingFactor == 0 {
		cfg.Global.CoordinateScalingFactor = 1.0
	}
	if len(cfg.Global.RenderUnits) == 0 {
		cfg.Global.RenderUnits = []string{"ambi", "wfs", "reverb"}
	}
	if cfg.Global.PortUI == 0 {
		cfg.Global.PortUI = 4455
	}
	if cfg.Global.PortData == 0 {
		cfg.Global.PortData = 4456
	}
	if cfg.Global.PortSettings == 0 {
		cfg.Global.PortSettings = 4457
	}
	if cfg.Global.IP == "" {
		cfg.Global.IP = "0.0.0.0"
	}
}
