package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Triage    TriageConfig    `mapstructure:"triage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database connection configuration.
// Driver is either "sqlite" (Path is used) or "mysql".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GmailConfig holds mailbox provider configuration
type GmailConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	UseMock      bool   `mapstructure:"use_mock"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
	UseIMAP      bool   `mapstructure:"use_imap"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
}

// HasOAuthCredentials reports whether every credential the Gmail API needs is set.
func (g GmailConfig) HasOAuthCredentials() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RefreshToken != "" && g.UserEmail != ""
}

// HasIMAPCredentials reports whether IMAP login details are set.
func (g GmailConfig) HasIMAPCredentials() bool {
	return g.IMAPHost != "" && g.IMAPUser != "" && g.IMAPPassword != ""
}

// LLMConfig selects and configures the language-model backend
type LLMConfig struct {
	Provider      string        `mapstructure:"provider"`
	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	OpenAIModel   string        `mapstructure:"openai_model"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	GeminiAPIKey  string        `mapstructure:"gemini_api_key"`
	GeminiModel   string        `mapstructure:"gemini_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// HasAPIKey reports whether the selected provider has a key to call with
func (l LLMConfig) HasAPIKey() bool {
	switch strings.ToLower(l.Provider) {
	case LLMProviderOpenAI:
		return l.OpenAIAPIKey != ""
	case LLMProviderGemini:
		return l.GeminiAPIKey != ""
	default:
		return false
	}
}

// TriageConfig holds the bulk workflow limits
type TriageConfig struct {
	SyncLimit   int           `mapstructure:"sync_limit"`
	BatchSize   int           `mapstructure:"batch_size"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LLM provider names accepted in llm.provider.
const (
	LLMProviderOpenAI = "openai"
	LLMProviderGemini = "gemini"
	LLMProviderMock   = "mock"
)

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	bindEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.Server.AllowedOrigins = splitOrigins(config.Server.AllowedOrigins)
	config.LLM.Provider = strings.ToLower(strings.TrimSpace(config.LLM.Provider))

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./inbox.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)

	v.SetDefault("gmail.enabled", true)
	v.SetDefault("gmail.use_mock", true)
	v.SetDefault("gmail.use_imap", false)
	v.SetDefault("gmail.imap_host", "imap.gmail.com")
	v.SetDefault("gmail.imap_port", 993)

	v.SetDefault("llm.provider", LLMProviderOpenAI)
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("triage.sync_limit", 10)
	v.SetDefault("triage.batch_size", 5)
	v.SetDefault("triage.call_timeout", "30s")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval_minutes", 5)

	v.SetDefault("log.level", "info")
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.allowed_origins", "ALLOWED_ORIGINS")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.path", "DB_PATH")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Gmail
	v.BindEnv("gmail.enabled", "GMAIL_ENABLED")
	v.BindEnv("gmail.use_mock", "GMAIL_USE_MOCK")
	v.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	v.BindEnv("gmail.user_email", "GMAIL_USER_EMAIL")
	v.BindEnv("gmail.use_imap", "GMAIL_USE_IMAP")
	v.BindEnv("gmail.imap_host", "GMAIL_IMAP_HOST")
	v.BindEnv("gmail.imap_port", "GMAIL_IMAP_PORT")
	v.BindEnv("gmail.imap_user", "GMAIL_IMAP_USER")
	v.BindEnv("gmail.imap_password", "GMAIL_IMAP_PASSWORD")

	// LLM
	v.BindEnv("llm.provider", "LLM_PROVIDER")
	v.BindEnv("llm.openai_api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.openai_model", "OPENAI_MODEL")
	v.BindEnv("llm.openai_base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.gemini_api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.gemini_model", "GEMINI_MODEL")
	v.BindEnv("llm.timeout", "LLM_TIMEOUT")

	// Triage
	v.BindEnv("triage.sync_limit", "TRIAGE_SYNC_LIMIT")
	v.BindEnv("triage.batch_size", "TRIAGE_BATCH_SIZE")
	v.BindEnv("triage.call_timeout", "TRIAGE_CALL_TIMEOUT")

	// Scheduler
	v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	v.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")

	v.BindEnv("log.level", "LOG_LEVEL")
}

// splitOrigins accepts both a YAML list and a single comma-separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration. Missing Gmail credentials are not an
// error: the provider falls back to generated messages.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Gmail.UseIMAP && !c.Gmail.UseMock && c.Gmail.IMAPPort <= 0 {
		return fmt.Errorf("IMAP port must be greater than 0")
	}

	switch c.LLM.Provider {
	case LLMProviderOpenAI, LLMProviderGemini, LLMProviderMock:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}

	if c.Triage.SyncLimit <= 0 {
		return fmt.Errorf("triage sync limit must be greater than 0")
	}
	if c.Triage.BatchSize <= 0 {
		return fmt.Errorf("triage batch size must be greater than 0")
	}
	if c.Triage.CallTimeout <= 0 {
		return fmt.Errorf("triage call timeout must be greater than 0")
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	return nil
}
