// Package config предоставляет структуры и функции для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	PublicBaseURL           string `yaml:"public_base_url" env:"PUBLIC_BASE_URL" env-default:"http://localhost:8080"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	Session                 `yaml:"session"`
	MagicToken              `yaml:"magic_token"`
	Webhook                 `yaml:"webhook"`
	BotAPI                  `yaml:"bot_api"`
	Payments                `yaml:"payments"`
	RabbitMQ                `yaml:"rabbitmq"`
	GRPC                    `yaml:"grpc"`
	Scheduler               `yaml:"scheduler"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"5"`
	RateBurst   int           `yaml:"rate_burst" env-default:"10"`
	// TrustProxy включает X-Forwarded-For и X-Real-IP. Только за своим прокси.
	TrustProxy bool `yaml:"trust_proxy" env:"HTTP_TRUST_PROXY" env-default:"false"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
	TierCacheTTL time.Duration `yaml:"tier_cache_ttl" env-default:"1m"`
}

// Session настройки подписанной сессии
type Session struct {
	SecretKey    string        `yaml:"secret_key" env:"SESSION_SECRET_KEY" env-required:"true"`
	TTL          time.Duration `yaml:"ttl" env-default:"72h"`
	CookieName   string        `yaml:"cookie_name" env-default:"botgate_session"`
	CookieSecure bool          `yaml:"cookie_secure" env-default:"true"`
	LoginPath    string        `yaml:"login_path" env-default:"/login"`
	DefaultPath  string        `yaml:"default_redirect" env-default:"/"`
}

// MagicToken настройки одноразовых токенов входа.
//
// Store: "postgres" или "redis".
type MagicToken struct {
	Store     string        `yaml:"store" env:"MAGIC_TOKEN_STORE" env-default:"postgres"`
	TTL       time.Duration `yaml:"ttl" env-default:"10m"`
	Retention time.Duration `yaml:"retention" env-default:"24h"`
	DigestKey string        `yaml:"digest_key" env:"MAGIC_TOKEN_DIGEST_KEY" env-required:"true"`
}

// Webhook настройки входящих обновлений платформы
type Webhook struct {
	Secret            string        `yaml:"secret" env:"WEBHOOK_SECRET" env-required:"true"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout" env-default:"30s"`
	MaxInFlight       int           `yaml:"max_in_flight" env-default:"32"`
	QueueTimeout      time.Duration `yaml:"queue_timeout" env-default:"1m"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" env-default:"1048576"`
}

// BotAPI настройки исходящих вызовов платформы
type BotAPI struct {
	BaseURL       string        `yaml:"base_url" env:"BOT_API_BASE_URL" env-default:"https://api.telegram.org"`
	Token         string        `yaml:"token" env:"BOT_API_TOKEN" env-required:"true"`
	Timeout       time.Duration `yaml:"timeout" env-default:"10s"`
	ProviderToken string        `yaml:"provider_token" env:"BOT_PROVIDER_TOKEN"`
}

// Payments настройки сверки платежей
type Payments struct {
	SupportWindow time.Duration `yaml:"support_window" env-default:"30m"`
}

// RabbitMQ настройки брокера
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// GRPC настройки сервиса сессий
type GRPC struct {
	GRPCAuthAddress string        `yaml:"auth_address" env:"GRPC_AUTH_ADDRESS"`
	ListenAddress   string        `yaml:"listen_address" env-default:"localhost:50051"`
	DialTimeout     time.Duration `yaml:"dial_timeout" env-default:"5s"`
}

// Scheduler настройки планировщика
type Scheduler struct {
	SweepInterval    time.Duration `yaml:"sweep_interval" env-default:"10m"`
	ReminderInterval time.Duration `yaml:"reminder_interval" env-default:"12h"`
	ReminderWindow   time.Duration `yaml:"reminder_window" env-default:"24h"`
}

// ErrConfigPathNotSet возвращается, если не задан CONFIG_PATH.
var ErrConfigPathNotSet = errors.New("CONFIG_PATH is not set")

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	// .env необязателен
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal(ErrConfigPathNotSet)
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла и переменных окружения.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.MagicToken.Store {
	case "postgres":
	case "redis":
		if c.AddressRedis == "" {
			return errors.New("magic_token.store=redis requires redis_connection.addressredis")
		}
		if c.MagicToken.Retention <= 0 {
			return errors.New("magic_token.store=redis requires a positive magic_token.retention")
		}
	default:
		return fmt.Errorf("unknown magic_token.store %q", c.MagicToken.Store)
	}
	if c.Session.TTL < time.Hour || c.Session.TTL > 7*24*time.Hour {
		return fmt.Errorf("session.ttl must be in [1h, 168h], got %s", c.Session.TTL)
	}
	if c.BotAPI.Timeout <= 0 || c.BotAPI.Timeout >= 20*time.Second {
		return fmt.Errorf("bot_api.timeout must be in (0, 20s), got %s", c.BotAPI.Timeout)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"PublicBaseURL: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"Session:\n"+
			"  TTL: %s\n"+
			"  Cookie: %s\n"+
			"MagicToken:\n"+
			"  Store: %s\n"+
			"  TTL: %s\n"+
			"BotAPI:\n"+
			"  BaseURL: %s\n"+
			"  Timeout: %s\n"+
			"GRPC:\n"+
			"  AuthAddress: %s\n",
		c.Env,
		c.PublicBaseURL,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.AddressRedis,
		c.Session.TTL,
		c.CookieName,
		c.MagicToken.Store,
		c.MagicToken.TTL,
		c.BotAPI.BaseURL,
		c.BotAPI.Timeout,
		c.GRPCAuthAddress,
	)
}
