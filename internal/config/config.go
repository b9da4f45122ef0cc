package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Recommend  RecommendConfig  `mapstructure:"recommend"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		PreferenceEvents string `mapstructure:"preference_events"`
		LibraryEvents    string `mapstructure:"library_events"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string          `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration   `mapstructure:"token_ttl"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Premium int           `mapstructure:"premium"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CatalogConfig tunes the external bibliographic catalog client and the
// optional cross-reference knowledge-base client.
type CatalogConfig struct {
	BaseURL        string         `mapstructure:"base_url"`
	UserAgent      string         `mapstructure:"user_agent"`
	Timeout        time.Duration  `mapstructure:"timeout"`
	RequestsPerSec float64        `mapstructure:"requests_per_sec"`
	Burst          int            `mapstructure:"burst"`
	SearchCacheTTL time.Duration  `mapstructure:"search_cache_ttl"`
	SearchCacheMax int            `mapstructure:"search_cache_max"`
	CrossRef       CrossRefConfig `mapstructure:"crossref"`
}

type CrossRefConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
}

// RecommendConfig carries every tunable of the recommendation pipeline.
// The defaults are the shipped behavior; operators rarely touch these.
type RecommendConfig struct {
	StoryWeight     float64 `mapstructure:"story_weight"`
	TopicWeight     float64 `mapstructure:"topic_weight"`
	AuthorWeight    float64 `mapstructure:"author_weight"`
	LanguageBonus   float64 `mapstructure:"language_bonus"`
	GenericDiscount float64 `mapstructure:"generic_discount"`
	LikeBoost       float64 `mapstructure:"like_boost"`

	AuthorCap        int    `mapstructure:"author_cap"`
	DefaultLimit     int    `mapstructure:"default_limit"`
	MaxLimit         int    `mapstructure:"max_limit"`
	MinRating        int    `mapstructure:"min_rating"`
	SeedMode         string `mapstructure:"seed_mode"`
	TopSubjects      int    `mapstructure:"top_subjects"`
	TopAuthors       int    `mapstructure:"top_authors"`
	SearchLimit      int    `mapstructure:"search_limit"`
	CandidateCeiling int    `mapstructure:"candidate_ceiling"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        string `mapstructure:"port"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.hot.max_retries", 3)
	viper.SetDefault("redis.hot.pool_size", 10)
	viper.SetDefault("redis.hot.timeout", "5s")
	viper.SetDefault("redis.warm.max_retries", 3)
	viper.SetDefault("redis.warm.pool_size", 5)
	viper.SetDefault("redis.warm.timeout", "10s")

	// Kafka defaults
	viper.SetDefault("kafka.topics.preference_events", "preference-events")
	viper.SetDefault("kafka.topics.library_events", "library-events")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("auth.rate_limit.default", 1000)
	viper.SetDefault("auth.rate_limit.premium", 10000)
	viper.SetDefault("auth.rate_limit.window", "1h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Catalog defaults
	viper.SetDefault("catalog.base_url", "https://openlibrary.org")
	viper.SetDefault("catalog.user_agent", "quillshelf/1.0")
	viper.SetDefault("catalog.timeout", "12s")
	viper.SetDefault("catalog.requests_per_sec", 5.0)
	viper.SetDefault("catalog.burst", 5)
	viper.SetDefault("catalog.search_cache_ttl", "10m")
	viper.SetDefault("catalog.search_cache_max", 120)
	viper.SetDefault("catalog.crossref.enabled", true)
	viper.SetDefault("catalog.crossref.base_url", "https://www.wikidata.org/w/api.php")
	viper.SetDefault("catalog.crossref.timeout", "12s")
	viper.SetDefault("catalog.crossref.requests_per_sec", 2.0)
	viper.SetDefault("catalog.crossref.burst", 2)

	// Recommendation defaults
	viper.SetDefault("recommend.story_weight", 60.0)
	viper.SetDefault("recommend.topic_weight", 28.0)
	viper.SetDefault("recommend.author_weight", 12.0)
	viper.SetDefault("recommend.language_bonus", 6.0)
	viper.SetDefault("recommend.generic_discount", 0.2)
	viper.SetDefault("recommend.like_boost", 8.0)
	viper.SetDefault("recommend.author_cap", 2)
	viper.SetDefault("recommend.default_limit", 20)
	viper.SetDefault("recommend.max_limit", 50)
	viper.SetDefault("recommend.min_rating", 7)
	viper.SetDefault("recommend.seed_mode", "liked")
	viper.SetDefault("recommend.top_subjects", 6)
	viper.SetDefault("recommend.top_authors", 4)
	viper.SetDefault("recommend.search_limit", 20)
	viper.SetDefault("recommend.candidate_ceiling", 200)
	viper.SetDefault("recommend.request_timeout", "20s")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.port", "9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
