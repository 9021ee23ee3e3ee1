package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// StoreDriver - хранилище: postgres, mongo или memory.
	StoreDriver string

	// SearchServiceURL - если задан, тикеты отправляются в search-service для индексации (POST /search/index/ticket).
	SearchServiceURL string
	// SuggestServiceURL - сервис подсказок для чек-листа (POST /suggest/checklist).
	SuggestServiceURL string

	// KafkaBrokers - "host1:9092,host2:9092"; пусто - события не публикуются.
	KafkaBrokers     string
	KafkaTopicTicket string

	// AuthJWTSecret - если задан, принимаются bearer-токены HS256; иначе
	// пользователь берётся из заголовков X-User-Id, X-User-Role, X-Organization-Id.
	AuthJWTSecret string

	// Transitions - матрица переходов статусов: free или linear.
	Transitions string

	TicketAttachmentMaxBytes  int64
	CommentAttachmentMaxBytes int64

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Mongo struct {
		URI      string
		Database string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:           getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:          firstEnv("APP_PORT", "HTTP_PORT", "8097"),
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		SearchServiceURL:  getEnv("SEARCH_SERVICE_URL", ""),
		SuggestServiceURL: getEnv("SUGGEST_SERVICE_URL", ""),
		KafkaBrokers:      getEnv("KAFKA_BROKERS", ""),
		KafkaTopicTicket:  getEnv("KAFKA_TOPIC_TICKET", "ticket-events"),
		AuthJWTSecret:     getEnv("AUTH_JWT_SECRET", ""),
		Transitions:       strings.ToLower(getEnv("TRANSITIONS", "free")),
	}
	var err error
	if cfg.TicketAttachmentMaxBytes, err = getBytes("TICKET_ATTACHMENT_MAX_BYTES", 4<<20); err != nil {
		return nil, err
	}
	if cfg.CommentAttachmentMaxBytes, err = getBytes("COMMENT_ATTACHMENT_MAX_BYTES", 10<<20); err != nil {
		return nil, err
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "ticket_tracker")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Mongo.URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.Mongo.Database = getEnv("MONGO_DATABASE", "ticket_tracker")
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	case StoreDriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("config: MONGO_URI and MONGO_DATABASE are required")
		}
	case StoreDriverMemory:
		if c.AppEnv == "production" {
			return errors.New("config: STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Transitions != "free" && c.Transitions != "linear" {
		return fmt.Errorf("config: unknown TRANSITIONS %q", c.Transitions)
	}
	if c.AppEnv == "production" && c.AuthJWTSecret == "" {
		return errors.New("config: in production AUTH_JWT_SECRET is required")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func getBytes(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
