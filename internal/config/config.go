package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
	Alpaca   Alpaca   `mapstructure:"alpaca"`
	DeepSeek DeepSeek `mapstructure:"deepseek"`
	Speech   Speech   `mapstructure:"speech"`
	Trading  Trading  `mapstructure:"trading"`
	Cache    Cache    `mapstructure:"cache"`
}

// Server holds the configuration for the HTTP and WebSocket server.
type Server struct {
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Alpaca holds the configuration for the Alpaca brokerage API.
// Without both keys the client runs in simulated mode.
type Alpaca struct {
	ApiKey         string  `mapstructure:"api_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// DeepSeek holds the configuration for the LLM used by intent parsing and
// leverage classification.
type DeepSeek struct {
	ApiKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Speech holds credentials for the speech-to-text and text-to-speech backends.
type Speech struct {
	ElevenLabsApiKey  string `mapstructure:"elevenlabs_api_key"`
	ElevenLabsAgentID string `mapstructure:"elevenlabs_agent_id"`
	ElevenLabsVoiceID string `mapstructure:"elevenlabs_voice_id"`
	OpenAIApiKey      string `mapstructure:"openai_api_key"`
	DeepgramApiKey    string `mapstructure:"deepgram_api_key"`
	GoogleApiKey      string `mapstructure:"google_api_key"`
	Language          string `mapstructure:"language"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// Trading holds the business thresholds applied to orders.
type Trading struct {
	CriticalActionThreshold float64 `mapstructure:"critical_action_threshold"`
	ConfirmationToken       string  `mapstructure:"confirmation_token"`
	OrderHistoryLimit       int     `mapstructure:"order_history_limit"`
}

// Cache holds the configuration for the leverage classification cache.
// An empty RedisAddr selects the in-memory cache.
type Cache struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TTLMinutes    int    `mapstructure:"ttl_minutes"`
}

// envBindings maps config keys to the conventional environment variable names
// used by deployments of the assistant.
var envBindings = map[string]string{
	"server.port":                       "PORT",
	"deepseek.api_key":                  "DEEPSEEK_API_KEY",
	"deepseek.base_url":                 "DEEPSEEK_API_URL",
	"alpaca.api_key":                    "ALPACA_API_KEY",
	"alpaca.secret_key":                 "ALPACA_SECRET_KEY",
	"alpaca.base_url":                   "ALPACA_BASE_URL",
	"speech.elevenlabs_api_key":         "ELEVENLAB_API_KEY",
	"speech.elevenlabs_agent_id":        "ELEVENLAB_AGENT_ID",
	"speech.openai_api_key":             "OPENAI_API_KEY",
	"speech.deepgram_api_key":           "DEEPGRAM_API_KEY",
	"speech.google_api_key":             "GOOGLE_API_KEY",
	"trading.critical_action_threshold": "CRITICAL_ACTION_THRESHOLD",
	"cache.redis_addr":                  "REDIS_ADDR",
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err = v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return
		}
	}

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.static_dir", "web")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("database.dsn", "voicetrader.db")

	v.SetDefault("alpaca.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("alpaca.rate_limit", 3) // requests per second
	v.SetDefault("alpaca.rate_limit_burst", 5)

	v.SetDefault("deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("deepseek.model", "deepseek-chat")
	v.SetDefault("deepseek.timeout_seconds", 30)
	v.SetDefault("deepseek.rate_limit", 5)
	v.SetDefault("deepseek.rate_limit_burst", 2)

	v.SetDefault("speech.elevenlabs_voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("speech.language", "en-US")
	v.SetDefault("speech.timeout_seconds", 60)

	v.SetDefault("trading.critical_action_threshold", 10000)
	v.SetDefault("trading.confirmation_token", "confirmed")
	v.SetDefault("trading.order_history_limit", 50)

	v.SetDefault("cache.ttl_minutes", 24*60)
}
