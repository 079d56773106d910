package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ecal-sub/ecal/pkg/security"
)

// LayersConfig selects which data-layer binders a subscriber starts.
// At least one must be enabled for a subscriber to receive anything.
type LayersConfig struct {
	UDPEnable bool `json:"udp_enable" yaml:"udp_enable"`
	SHMEnable bool `json:"shm_enable" yaml:"shm_enable"`
	TCPEnable bool `json:"tcp_enable" yaml:"tcp_enable"`
}

// RegistrationBusConfig configures the NATS transport carrying
// publisher/subscriber registration announcements.
type RegistrationBusConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	URLs          []string      `json:"urls,omitempty" yaml:"urls,omitempty"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string        `json:"token,omitempty" yaml:"token,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

// Config is the complete configuration surface of a subscriber process:
// the core options named in the external interface, plus the ambient
// registration-bus, security, and metrics blocks every running process
// carries regardless of which core options are exercised.
type Config struct {
	Layers                 LayersConfig           `json:"layers" yaml:"layers"`
	DropOutOfOrderMessages bool                   `json:"drop_out_of_order_messages" yaml:"drop_out_of_order_messages"`
	ShareTopicType         bool                   `json:"share_topic_type" yaml:"share_topic_type"`
	ShareTopicDescription  bool                   `json:"share_topic_description" yaml:"share_topic_description"`

	RegistrationBus RegistrationBusConfig `json:"registration_bus" yaml:"registration_bus"`
	Security        security.Config       `json:"security,omitempty" yaml:"security,omitempty"`
	Metrics         MetricsConfig         `json:"metrics" yaml:"metrics"`
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// Validate checks that the config describes a subscriber that can actually
// receive something and, if security or the registration bus are enabled,
// that their settings are internally consistent.
func (c *Config) Validate() error {
	if !c.Layers.UDPEnable && !c.Layers.SHMEnable && !c.Layers.TCPEnable {
		return errors.New("at least one of layers.{udp,shm,tcp}_enable must be true")
	}

	if c.RegistrationBus.Enabled && len(c.RegistrationBus.URLs) == 0 {
		return errors.New("registration_bus.urls is required when registration_bus.enabled is true")
	}

	if err := c.validateSecurity(); err != nil {
		return fmt.Errorf("security configuration: %w", err)
	}

	return nil
}

// validateSecurity validates the security configuration.
func (c *Config) validateSecurity() error {
	if c.Security.TLS.Server.Enabled {
		if c.Security.TLS.Server.CertFile == "" {
			return errors.New("tls.server.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.Server.KeyFile == "" {
			return errors.New("tls.server.key_file is required when TLS is enabled")
		}
		if _, err := os.Stat(c.Security.TLS.Server.CertFile); err != nil {
			return fmt.Errorf("tls.server.cert_file: %w", err)
		}
		if _, err := os.Stat(c.Security.TLS.Server.KeyFile); err != nil {
			return fmt.Errorf("tls.server.key_file: %w", err)
		}
		if c.Security.TLS.Server.MinVersion != "" {
			if err := validateTLSVersion(c.Security.TLS.Server.MinVersion); err != nil {
				return fmt.Errorf("tls.server.min_version: %w", err)
			}
		}
	}

	for i, caFile := range c.Security.TLS.Client.CAFiles {
		if _, err := os.Stat(caFile); err != nil {
			return fmt.Errorf("tls.client.ca_files[%d]: %w", i, err)
		}
	}

	if c.Security.TLS.Client.InsecureSkipVerify {
		_, _ = fmt.Fprintln(os.Stderr,
			"WARNING: TLS certificate verification is disabled (insecure_skip_verify=true). This should only be used in development/testing!")
	}

	if c.Security.TLS.Client.MinVersion != "" {
		if err := validateTLSVersion(c.Security.TLS.Client.MinVersion); err != nil {
			return fmt.Errorf("tls.client.min_version: %w", err)
		}
	}

	return nil
}

// validateTLSVersion checks if a TLS version string is valid.
func validateTLSVersion(version string) error {
	switch version {
	case "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
}

// Loader handles configuration loading with layers and environment overrides.
// Layers may be JSON or YAML files, distinguished by extension; later layers
// override earlier ones, and environment variables override every layer.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: "ECALSUB",
	}
}

// AddLayer adds a configuration file layer.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers, then applies environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := l.getDefaults()

	for _, path := range l.layers {
		rawConfig, err := l.loadRawFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, rawConfig)
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// getDefaults returns the default configuration: UDP layer enabled, SHM
// and TCP disabled, drop out-of-order messages, share both type and
// description, no registration bus, plaintext metrics endpoint.
func (l *Loader) getDefaults() *Config {
	return &Config{
		Layers: LayersConfig{
			UDPEnable: true,
		},
		DropOutOfOrderMessages: true,
		ShareTopicType:         true,
		ShareTopicDescription:  true,
		RegistrationBus: RegistrationBusConfig{
			Enabled:       false,
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
	}
}

// loadRawFile loads a configuration layer as a generic map, dispatching on
// file extension so .yaml/.yml layers and .json layers can be mixed freely.
func (l *Loader) loadRawFile(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var rawConfig map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rawConfig); err != nil {
			return nil, err
		}
		rawConfig = normalizeYAMLMap(rawConfig)
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &rawConfig); err != nil {
			return nil, err
		}
	}

	l.parseDurations(rawConfig)
	return rawConfig, nil
}

// normalizeYAMLMap converts yaml.v3's map[string]interface{} nested maps
// (which decode as map[string]any already, but nested scalars may come back
// as map[interface{}]interface{} from older decode paths) into a form safe
// to round-trip through encoding/json for the merge step.
func normalizeYAMLMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeYAMLMap(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = normalizeYAMLValue(item)
		}
		return result
	default:
		return val
	}
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map.
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	mergedMap := deepMergeMaps(baseMap, override)

	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}

	return &merged
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any)

	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}

		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		result[k] = v
	}

	return result
}

// parseDurations converts duration strings in the registration_bus block to
// nanoseconds ahead of json.Unmarshal, which cannot parse "2s" into a
// time.Duration on its own.
func (l *Loader) parseDurations(data map[string]any) {
	if bus, ok := data["registration_bus"].(map[string]any); ok {
		if wait, ok := bus["reconnect_wait"].(string); ok {
			if d, err := time.ParseDuration(wait); err == nil {
				bus["reconnect_wait"] = d.Nanoseconds()
			}
		}
	}
}

// applyEnvOverrides applies ECALSUB_-prefixed environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_LAYERS_UDP_ENABLE"); val != "" {
		cfg.Layers.UDPEnable = val == "true"
	}
	if val := os.Getenv(l.envPrefix + "_LAYERS_SHM_ENABLE"); val != "" {
		cfg.Layers.SHMEnable = val == "true"
	}
	if val := os.Getenv(l.envPrefix + "_LAYERS_TCP_ENABLE"); val != "" {
		cfg.Layers.TCPEnable = val == "true"
	}
	if val := os.Getenv(l.envPrefix + "_DROP_OUT_OF_ORDER_MESSAGES"); val != "" {
		cfg.DropOutOfOrderMessages = val == "true"
	}
	if val := os.Getenv(l.envPrefix + "_SHARE_TOPIC_TYPE"); val != "" {
		cfg.ShareTopicType = val == "true"
	}
	if val := os.Getenv(l.envPrefix + "_SHARE_TOPIC_DESCRIPTION"); val != "" {
		cfg.ShareTopicDescription = val == "true"
	}
	if val := os.Getenv(l.envPrefix + "_REGISTRATION_BUS_URLS"); val != "" {
		cfg.RegistrationBus.URLs = strings.Split(val, ",")
	}
	if val := os.Getenv(l.envPrefix + "_REGISTRATION_BUS_USERNAME"); val != "" {
		cfg.RegistrationBus.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_REGISTRATION_BUS_PASSWORD"); val != "" {
		cfg.RegistrationBus.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_REGISTRATION_BUS_TOKEN"); val != "" {
		cfg.RegistrationBus.Token = val
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_LISTEN_ADDR"); val != "" {
		cfg.Metrics.ListenAddr = val
	}
}

// SaveToFile saves the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
