package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xaenox/relaybot/internal/llm"
)

type Config struct {
	Slack    SlackConfig    `mapstructure:"slack"`
	Model    ModelConfig    `mapstructure:"model"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	EventLog EventLogConfig `mapstructure:"eventlog"`
	Bot      BotConfig      `mapstructure:"bot"`
	Server   ServerConfig   `mapstructure:"server"`
	// PromptsPath points at an optional YAML prompt bundle.
	PromptsPath string `mapstructure:"prompts_path"`
}

type SlackConfig struct {
	SigningSecret  string `mapstructure:"signing_secret"`
	BotToken       string `mapstructure:"bot_token"`
	ProcessingText string `mapstructure:"processing_text"`
}

type ModelConfig struct {
	Provider      string               `mapstructure:"provider"`
	// Location is informational; API-key providers take no region.
	Location      string               `mapstructure:"location"`
	GeminiAPIKey  string               `mapstructure:"gemini_api_key"`
	OpenAIAPIKey  string               `mapstructure:"openai_api_key"`
	OpenAIBaseURL string               `mapstructure:"openai_base_url"`
	TextModel     string               `mapstructure:"text_model"`
	ChatModel     string               `mapstructure:"chat_model"`
	TextParams    llm.GenerationParams `mapstructure:"text_params"`
	ChatParams    llm.GenerationParams `mapstructure:"chat_params"`
	MetadataLabel string               `mapstructure:"metadata_label"`
}

type StorageConfig struct {
	Backend         string         `mapstructure:"backend"`
	Bucket          string         `mapstructure:"bucket"`
	Region          string         `mapstructure:"region"`
	Endpoint        string         `mapstructure:"endpoint"`
	AccessKeyID     string         `mapstructure:"access_key_id"`
	SecretAccessKey string         `mapstructure:"secret_access_key"`
	Database        DatabaseConfig `mapstructure:"database"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type DedupConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Backend       string        `mapstructure:"backend"`
	MaxEntries    int           `mapstructure:"max_entries"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type EventLogConfig struct {
	Sink       string `mapstructure:"sink"`
	LoggerName string `mapstructure:"logger_name"`
	ProjectID  string `mapstructure:"project_id"`
}

type BotConfig struct {
	Mode string `mapstructure:"mode"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// envAliases maps config keys to the plain environment variables deployments
// already use for them.
var envAliases = map[string]string{
	"slack.signing_secret": "SLACK_SIGNING_SECRET",
	"slack.bot_token":      "SLACK_BOT_TOKEN",
	"model.gemini_api_key": "GEMINI_API_KEY",
	"model.openai_api_key": "OPENAI_API_KEY",
	"storage.bucket":       "HISTORY_BUCKET",
	"dedup.redis_addr":     "REDIS_ADDR",
	"eventlog.project_id":  "GOOGLE_CLOUD_PROJECT",
}

func setDefaults(v *viper.Viper) {
	textParams := llm.DefaultTextParams()
	chatParams := llm.DefaultChatParams()

	v.SetDefault("slack.signing_secret", "")
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.processing_text", "...処理中...")

	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.location", "")
	v.SetDefault("model.gemini_api_key", "")
	v.SetDefault("model.openai_api_key", "")
	v.SetDefault("model.openai_base_url", "")
	v.SetDefault("model.text_model", "gemini-1.5-flash")
	v.SetDefault("model.chat_model", "gemini-1.5-flash")
	v.SetDefault("model.text_params.max_output_tokens", textParams.MaxOutputTokens)
	v.SetDefault("model.text_params.temperature", textParams.Temperature)
	v.SetDefault("model.text_params.top_p", textParams.TopP)
	v.SetDefault("model.text_params.top_k", textParams.TopK)
	v.SetDefault("model.chat_params.max_output_tokens", chatParams.MaxOutputTokens)
	v.SetDefault("model.chat_params.temperature", chatParams.Temperature)
	v.SetDefault("model.chat_params.top_p", chatParams.TopP)
	v.SetDefault("model.chat_params.top_k", chatParams.TopK)
	v.SetDefault("model.metadata_label", "slack thread conversation")

	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.user", "postgres")
	v.SetDefault("storage.database.password", "")
	v.SetDefault("storage.database.dbname", "relaybot")
	v.SetDefault("storage.database.sslmode", "disable")

	v.SetDefault("dedup.enabled", true)
	v.SetDefault("dedup.backend", "memory")
	v.SetDefault("dedup.max_entries", 10000)
	v.SetDefault("dedup.ttl", time.Hour)
	v.SetDefault("dedup.redis_addr", "localhost:6379")
	v.SetDefault("dedup.redis_password", "")
	v.SetDefault("dedup.redis_db", 0)

	v.SetDefault("eventlog.sink", "zap")
	v.SetDefault("eventlog.logger_name", "palm2_slack_chatbot")
	v.SetDefault("eventlog.project_id", "")

	v.SetDefault("bot.mode", "threaded")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("prompts_path", "")
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", u.Port())
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads path if it exists and layers environment variables on
// top. A missing file is not an error; every key has a default or an
// environment override.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Storage.Database = dbConfig
	}

	return &config, nil
}

// Validate reports every missing or inconsistent required setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Slack.SigningSecret == "" {
		errs = append(errs, errors.New("slack.signing_secret is required"))
	}
	if c.Slack.BotToken == "" {
		errs = append(errs, errors.New("slack.bot_token is required"))
	}
	if c.Model.TextModel == "" || c.Model.ChatModel == "" {
		errs = append(errs, errors.New("model.text_model and model.chat_model are required"))
	}

	switch c.Model.Provider {
	case "gemini":
		if c.Model.GeminiAPIKey == "" {
			errs = append(errs, errors.New("model.gemini_api_key is required for the gemini provider"))
		}
	case "openai":
		if c.Model.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("model.openai_api_key is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown model.provider %q", c.Model.Provider))
	}

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the s3 backend"))
		}
		if c.Storage.Region == "" {
			errs = append(errs, errors.New("storage.region is required for the s3 backend"))
		}
	case "postgres":
		if c.Storage.Database.Host == "" || c.Storage.Database.DBName == "" {
			errs = append(errs, errors.New("storage.database host and dbname are required for the postgres backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	if c.Dedup.Enabled {
		switch c.Dedup.Backend {
		case "memory":
			if c.Dedup.MaxEntries <= 0 {
				errs = append(errs, errors.New("dedup.max_entries must be positive"))
			}
		case "redis":
			if c.Dedup.RedisAddr == "" {
				errs = append(errs, errors.New("dedup.redis_addr is required for the redis backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown dedup.backend %q", c.Dedup.Backend))
		}
		if c.Dedup.TTL <= 0 {
			errs = append(errs, errors.New("dedup.ttl must be positive"))
		}
	}

	switch c.EventLog.Sink {
	case "zap":
	case "cloudlogging":
		if c.EventLog.ProjectID == "" {
			errs = append(errs, errors.New("eventlog.project_id is required for the cloudlogging sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown eventlog.sink %q", c.EventLog.Sink))
	}

	switch c.Bot.Mode {
	case "threaded":
	case "single":
		if !c.Dedup.Enabled {
			errs = append(errs, errors.New("bot.mode single requires dedup.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bot.mode %q", c.Bot.Mode))
	}

	return errors.Join(errs...)
}
