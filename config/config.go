// Package config provides configuration loading for the portlet extender.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the complete extender configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Modules  ModulesConfig  `yaml:"modules"`
	Extender ExtenderConfig `yaml:"extender"`
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// ModulesConfig configures the filesystem bundle source.
type ModulesConfig struct {
	// Dir holds one directory per bundle.
	Dir string `yaml:"dir"`
	// Watch resyncs the directory on change.
	Watch bool `yaml:"watch"`
	// Debounce delays a resync until changes settle.
	Debounce Duration `yaml:"debounce"`
}

// ExtenderConfig configures discovery and descriptor parsing.
type ExtenderConfig struct {
	Namespace          string `yaml:"namespace"`
	Name               string `yaml:"name"`
	DescriptorPath     string `yaml:"descriptor_path"`
	MaxDescriptorBytes int64  `yaml:"max_descriptor_bytes"`
	// JSONService registers the default JSON parser service at startup.
	JSONService bool `yaml:"json_service"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Listen is the address to serve on; empty disables the server.
	Listen string `yaml:"listen"`
	// Admin enables the dependency toggle endpoint.
	Admin bool `yaml:"admin"`
}

// RegistryConfig configures the in-memory component registry.
type RegistryConfig struct {
	// UniqueNames rejects a second portlet with an existing name.
	UniqueNames bool `yaml:"unique_names"`
}

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.InterfaceUnmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.InterfaceMarshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Modules: ModulesConfig{
			Dir:      "modules",
			Watch:    true,
			Debounce: Duration(250 * time.Millisecond),
		},
		Extender: ExtenderConfig{
			Namespace:          "osgi.extender",
			Name:               "liferay.npm.portlet",
			DescriptorPath:     "META-INF/resources/package.json",
			MaxDescriptorBytes: 1 << 20,
			JSONService:        true,
		},
		Server: ServerConfig{
			Listen: ":8080",
			Admin:  true,
		},
		Registry: RegistryConfig{
			UniqueNames: true,
		},
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !slices.Contains(logLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of %v, got %q", logLevels, c.Log.Level)
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return fmt.Errorf("log.format must be one of %v, got %q", logFormats, c.Log.Format)
	}
	if c.Modules.Dir == "" {
		return fmt.Errorf("modules.dir is required")
	}
	if c.Modules.Debounce < 0 {
		return fmt.Errorf("modules.debounce must not be negative")
	}
	if c.Extender.Namespace == "" {
		return fmt.Errorf("extender.namespace is required")
	}
	if c.Extender.Name == "" {
		return fmt.Errorf("extender.name is required")
	}
	if p := c.Extender.DescriptorPath; !fs.ValidPath(p) || p == "." {
		return fmt.Errorf("extender.descriptor_path must be a clean relative path, got %q", p)
	}
	if c.Extender.MaxDescriptorBytes <= 0 {
		return fmt.Errorf("extender.max_descriptor_bytes must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
