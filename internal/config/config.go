// Package config loads the process-wide Config from a YAML (or JSON5)
// file, applies defaults, and expands environment variables.
package config

import "time"

// Config is the top-level configuration struct, read once at startup.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Agent    AgentConfig    `yaml:"agent"`
	Tools    ToolsConfig    `yaml:"tools"`
	Session  SessionConfig  `yaml:"session"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	DataDir  string         `yaml:"data_dir"`
}

// ServerConfig controls the HTTP listener and CORS policy.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	CORSOrigins     []string `yaml:"cors_origins"`
	CORSCredentials bool     `yaml:"cors_credentials"`
	UploadMaxBytes  int64    `yaml:"upload_max_bytes"`
}

// BackendConfig points at the local OpenAI-compatible inference server.
type BackendConfig struct {
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	DefaultModel       string        `yaml:"default_model"`
	DefaultTemperature float32       `yaml:"default_temperature"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
}

// AgentConfig controls the Agent Loop.
type AgentConfig struct {
	MaxIterations  int    `yaml:"max_iterations"`
	SystemPromptFile string `yaml:"system_prompt_file"`
	CompactionThresholdChars int `yaml:"compaction_threshold_chars"`
}

// ToolsConfig groups per-tool budgets, timeouts, and the result overflow
// directory.
type ToolsConfig struct {
	ResultBudgetChars map[string]int           `yaml:"result_budget_chars"`
	DefaultTimeout    map[string]time.Duration `yaml:"default_timeout"`
	WorkspaceRoot     string                   `yaml:"workspace_root"`
	WebSearchAPIKey   string                   `yaml:"websearch_api_key"`
}

// SessionConfig controls the Session Store.
type SessionConfig struct {
	GCAgeDays int `yaml:"gc_age_days"`
}

// JobsConfig controls the Job Store + Runner.
type JobsConfig struct {
	GCAgeDays int `yaml:"gc_age_days"`
}

// AuthConfig controls bearer-token enforcement. Tokens maps a static
// bearer token to the username it authenticates as; issuing tokens is out
// of scope, so the map is provisioned by the operator.
type AuthConfig struct {
	OptionalAuth bool              `yaml:"optional_auth"`
	Tokens       map[string]string `yaml:"tokens"`
}

// LoggingConfig controls the Interceptor/Logger's rotating log file.
type LoggingConfig struct {
	PromptsLogPath string `yaml:"prompts_log_path"`
	MaxSizeMB      int    `yaml:"max_size_mb"`
	MaxBackups     int    `yaml:"max_backups"`
}

// Default tool names, used as map keys in ToolsConfig and the registry.
const (
	ToolWebSearch    = "websearch"
	ToolPythonCoder  = "python_coder"
	ToolRAG          = "rag"
	ToolFileReader   = "file_reader"
	ToolFileWriter   = "file_writer"
	ToolFileNavigator = "file_navigator"
	ToolShellExec    = "shell_exec"
	ToolMemory       = "memory"
)

// Default returns a Config holding the system's named defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			UploadMaxBytes: 25 << 20,
		},
		Backend: BackendConfig{
			BaseURL:            "http://localhost:8080/v1",
			DefaultModel:       "default",
			DefaultTemperature: 0.7,
			RequestTimeout:     120 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations:            8,
			SystemPromptFile:         "data/system_prompt.md",
			CompactionThresholdChars: 200,
		},
		Tools: ToolsConfig{
			ResultBudgetChars: map[string]int{
				ToolWebSearch:     6000,
				ToolPythonCoder:   8000,
				ToolRAG:           8000,
				ToolFileReader:    10000,
				ToolFileWriter:    2000,
				ToolFileNavigator: 6000,
				ToolShellExec:     8000,
				ToolMemory:        2000,
			},
			DefaultTimeout: map[string]time.Duration{
				ToolWebSearch:    20 * time.Second,
				ToolPythonCoder:  60 * time.Second,
				ToolRAG:          20 * time.Second,
				ToolFileReader:   10 * time.Second,
				ToolFileWriter:   10 * time.Second,
				ToolFileNavigator: 10 * time.Second,
				ToolShellExec:    30 * time.Second,
				ToolMemory:       5 * time.Second,
			},
			WorkspaceRoot: "data/scratch",
		},
		Session: SessionConfig{GCAgeDays: 30},
		Jobs:    JobsConfig{GCAgeDays: 14},
		Auth:    AuthConfig{OptionalAuth: true},
		Logging: LoggingConfig{
			PromptsLogPath: "data/logs/prompts.log",
			MaxSizeMB:      50,
			MaxBackups:     5,
		},
		DataDir: "data",
	}
}
