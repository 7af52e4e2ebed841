package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort              = 8970
	DefaultConfigFilename    = "config.json"
	DefaultYAMLFilename      = "config.yaml"
	DefaultHost              = "127.0.0.1"
	DefaultMaxStreamBuffer   = 1 << 20 // 1 MiB
	DefaultMaxToolCallBuffer = 64 << 10
	DefaultStreamTimeoutMs   = 30_000
	DefaultReinjectionType   = "system"

	// BackendEnvKey is the environment variable a bare backend API key
	// can be supplied through when no config file names one, mirroring
	// how the backend's own credential is kept out of the config file
	// in a containerized deployment.
	BackendEnvKey = "TOOLBRIDGE_BACKEND_API_KEY"
)

// BackendMode names one of the two dialects this proxy's single
// configured backend speaks. There is no auto-detection of the
// backend's own dialect — §6 requires it be named explicitly.
type BackendMode string

const (
	BackendOpenAI BackendMode = "openai"
	BackendOllama BackendMode = "ollama"
)

// ReinjectionConfig mirrors the engine's own ReinjectionConfig shape so
// config and engine agree on field meaning, without the config package
// importing the engine package.
type ReinjectionConfig struct {
	Enabled      bool   `json:"enableToolReinjection,omitempty" yaml:"enable_tool_reinjection,omitempty"`
	MessageCount int    `json:"toolReinjectionMessageCount,omitempty" yaml:"tool_reinjection_message_count,omitempty"`
	TokenCount   int    `json:"toolReinjectionTokenCount,omitempty" yaml:"tool_reinjection_token_count,omitempty"`
	Type         string `json:"toolReinjectionType,omitempty" yaml:"tool_reinjection_type,omitempty"`
}

// Config is the full set of recognized options from §6.
type Config struct {
	Host   string `json:"HOST,omitempty" yaml:"host,omitempty"`
	Port   int    `json:"PORT,omitempty" yaml:"port,omitempty"`
	APIKey string `json:"APIKEY,omitempty" yaml:"api_key,omitempty"`

	BackendMode    BackendMode `json:"backendMode" yaml:"backend_mode"`
	BackendBaseURL string      `json:"backendBaseUrl" yaml:"backend_base_url"`
	BackendAPIKey  string      `json:"backendApiKey,omitempty" yaml:"backend_api_key,omitempty"`

	PassTools bool `json:"passTools,omitempty" yaml:"pass_tools,omitempty"`

	Reinjection ReinjectionConfig `json:"reinjection,omitempty" yaml:"reinjection,omitempty"`

	MaxStreamBufferSize     int `json:"maxStreamBufferSize,omitempty" yaml:"max_stream_buffer_size,omitempty"`
	MaxToolCallBufferSize   int `json:"maxToolCallBufferSize,omitempty" yaml:"max_tool_call_buffer_size,omitempty"`
	StreamConnectionTimeout int `json:"streamConnectionTimeout,omitempty" yaml:"stream_connection_timeout,omitempty"`

	DebugMode bool `json:"debugMode,omitempty" yaml:"debug_mode,omitempty"`
}

// Manager loads, caches, and persists a Config, preferring a YAML file
// over a JSON one when both are present, the same precedence and
// atomic-swap caching the original configuration loader used.
type Manager struct {
	baseDir     string
	jsonPath    string
	yamlPath    string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir:  baseDir,
		jsonPath: filepath.Join(baseDir, DefaultConfigFilename),
		yamlPath: filepath.Join(baseDir, DefaultYAMLFilename),
	}
}

func (m *Manager) Load() (*Config, error) {
	var cfg Config
	var err error

	switch {
	case m.HasYAML():
		cfg, err = m.loadYAML()
		if err != nil {
			return nil, fmt.Errorf("load YAML config: %w", err)
		}
	case m.HasJSON():
		cfg, err = m.loadJSON()
		if err != nil {
			return nil, fmt.Errorf("load JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("no configuration file found (looked for %s or %s)", m.yamlPath, m.jsonPath)
	}

	if err := m.applyDefaults(&cfg); err != nil {
		return nil, err
	}

	m.configValue.Store(&cfg)
	return &cfg, nil
}

func (m *Manager) loadYAML() (Config, error) {
	var cfg Config
	data, err := os.ReadFile(m.yamlPath)
	if err != nil {
		return cfg, fmt.Errorf("read YAML config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal YAML config: %w", err)
	}
	return cfg, nil
}

func (m *Manager) loadJSON() (Config, error) {
	var cfg Config
	data, err := os.ReadFile(m.jsonPath)
	if err != nil {
		return cfg, fmt.Errorf("read JSON config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal JSON config: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills in unset fields and validates the two options that
// have no fallback: backendMode and backendBaseUrl.
func (m *Manager) applyDefaults(cfg *Config) error {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.MaxStreamBufferSize == 0 {
		cfg.MaxStreamBufferSize = DefaultMaxStreamBuffer
	}
	if cfg.MaxToolCallBufferSize == 0 {
		cfg.MaxToolCallBufferSize = DefaultMaxToolCallBuffer
	}
	if cfg.StreamConnectionTimeout == 0 {
		cfg.StreamConnectionTimeout = DefaultStreamTimeoutMs
	}
	if cfg.Reinjection.Enabled && cfg.Reinjection.Type == "" {
		cfg.Reinjection.Type = DefaultReinjectionType
	}
	if cfg.BackendAPIKey == "" {
		cfg.BackendAPIKey = os.Getenv(BackendEnvKey)
	}

	switch cfg.BackendMode {
	case BackendOpenAI, BackendOllama:
	default:
		return fmt.Errorf("backendMode must be %q or %q, got %q", BackendOpenAI, BackendOllama, cfg.BackendMode)
	}
	if cfg.BackendBaseURL == "" {
		return fmt.Errorf("backendBaseUrl is required")
	}
	return nil
}

// Get returns the cached config, loading it on first use. If loading
// fails it falls back to a config holding only the default host and
// port rather than panicking,
// so callers that only need the listen address (e.g. a health check)
// aren't blocked by a backend misconfiguration.
func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}
	cfg, err := m.Load()
	if err != nil {
		return &Config{Host: DefaultHost, Port: DefaultPort}
	}
	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	return m.SaveAsYAML(cfg)
}

func (m *Manager) SaveAsYAML(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal YAML config: %w", err)
	}
	if err := os.WriteFile(m.yamlPath, data, 0644); err != nil {
		return fmt.Errorf("write YAML config file: %w", err)
	}
	m.configValue.Store(cfg)
	return nil
}

func (m *Manager) SaveAsJSON(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON config: %w", err)
	}
	if err := os.WriteFile(m.jsonPath, data, 0644); err != nil {
		return fmt.Errorf("write JSON config file: %w", err)
	}
	m.configValue.Store(cfg)
	return nil
}

func (m *Manager) GetPath() string {
	if m.HasYAML() {
		return m.yamlPath
	}
	return m.jsonPath
}

func (m *Manager) GetYAMLPath() string { return m.yamlPath }
func (m *Manager) GetJSONPath() string { return m.jsonPath }

func (m *Manager) Exists() bool {
	return m.HasYAML() || m.HasJSON()
}

func (m *Manager) HasYAML() bool {
	_, err := os.Stat(m.yamlPath)
	return err == nil
}

func (m *Manager) HasJSON() bool {
	_, err := os.Stat(m.jsonPath)
	return err == nil
}

// CreateExampleYAML writes a fully-populated example configuration,
// used by the CLI's init-style command.
func (m *Manager) CreateExampleYAML() error {
	cfg := &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		APIKey:         "your-proxy-api-key-here",
		BackendMode:    BackendOllama,
		BackendBaseURL: "http://localhost:11434",
		Reinjection: ReinjectionConfig{
			Enabled:      true,
			MessageCount: 20,
			TokenCount:   4000,
			Type:         DefaultReinjectionType,
		},
		MaxStreamBufferSize:     DefaultMaxStreamBuffer,
		MaxToolCallBufferSize:   DefaultMaxToolCallBuffer,
		StreamConnectionTimeout: DefaultStreamTimeoutMs,
	}
	return m.SaveAsYAML(cfg)
}
