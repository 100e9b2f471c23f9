package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ServerPort int
	Database   DatabaseConfig
	Auth       AuthConfig
	Storage    StorageConfig
	MQ         MQConfig
	AI         AIConfig
	Redis      RedisConfig
	Log        LogConfig
	CORS       CORSConfig

	// TagAttachPolicy selects how tag names submitted with a recipe are
	// resolved: "existing" drops unknown names, "create" creates them.
	TagAttachPolicy string
}

// DatabaseConfig describes how to reach the relational store. URL takes
// precedence over the discrete postgres fields; when neither is set the
// server falls back to a local SQLite file.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string

	SQLitePath string

	// SSLMode is one of off, require or verify-full. Empty means the value
	// carried by the URL, if any, else off.
	SSLMode      string
	CABundlePath string

	// AllowInsecureTLS permits require without a CA bundle, which encrypts
	// without verifying the server. Only honored when Env is dev.
	AllowInsecureTLS bool
}

type AuthConfig struct {
	JWTSecret    string
	TokenTTL     time.Duration
	CookieName   string
	CookieSecure bool
}

type StorageConfig struct {
	// Backend is one of local, dataurl, minio, gcs or s3.
	Backend string
	Local   LocalStorageConfig
	Minio   MinioConfig
	GCS     GCSConfig
	S3      S3Config
}

type LocalStorageConfig struct {
	Dir       string
	URLPrefix string
}

type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

type GCSConfig struct {
	ProjectID       string
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
}

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	PublicBaseURL   string
}

type MQConfig struct {
	// Backend is one of none, rabbitmq or pubsub.
	Backend       string
	RecipeChannel string
	RabbitMQ      RabbitMQConfig
	PubSub        PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type AIConfig struct {
	APIKey      string
	BaseURL     string
	VisionModel string
	TextModel   string
	ImageModel  string
	ImageSize   string
	Timeout     time.Duration
	CacheTTL    time.Duration
}

type RedisConfig struct {
	URL string
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		URL:              getEnv("DATABASE_URL", ""),
		Host:             getEnv("DB_HOST", ""),
		Port:             getEnvInt("DB_PORT", 5432),
		User:             getEnv("DB_USER", "recipesnap"),
		Password:         getEnv("DB_PASSWORD", "password"),
		DBName:           getEnv("DB_NAME", "recipesnap_db"),
		SQLitePath:       getEnv("SQLITE_PATH", "recipes.db"),
		SSLMode:          getEnv("DB_SSL_MODE", ""),
		CABundlePath:     getEnv("DB_CA_BUNDLE", ""),
		AllowInsecureTLS: getEnvBool("DB_ALLOW_INSECURE_TLS", false),
	}

	authConfig := AuthConfig{
		JWTSecret:    strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:     getEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		CookieName:   getEnv("AUTH_COOKIE_NAME", "recipe_session"),
		CookieSecure: getEnvBool("AUTH_COOKIE_SECURE", false),
	}

	storageConfig := StorageConfig{
		Backend: getEnv("STORAGE_BACKEND", "local"),
		Local: LocalStorageConfig{
			Dir:       getEnv("LOCAL_STORAGE_DIR", "static"),
			URLPrefix: getEnv("LOCAL_STORAGE_URL_PREFIX", "/static"),
		},
		Minio: MinioConfig{
			Endpoint:      getEnv("MINIO_ENDPOINT", ""),
			AccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:     getEnv("MINIO_SECRET_KEY", ""),
			Bucket:        getEnv("MINIO_BUCKET", "recipesnap"),
			UseSSL:        getEnvBool("MINIO_USE_SSL", false),
			PublicBaseURL: getEnv("MINIO_PUBLIC_BASE_URL", ""),
		},
		GCS: GCSConfig{
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			PublicBaseURL:   getEnv("GCS_PUBLIC_BASE_URL", ""),
		},
		S3: S3Config{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Bucket:          getEnv("S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			PublicBaseURL:   getEnv("S3_PUBLIC_BASE_URL", ""),
		},
	}

	mqConfig := MQConfig{
		Backend:       getEnv("MQ_BACKEND", "none"),
		RecipeChannel: getEnv("MQ_RECIPE_CHANNEL", "recipe-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	aiConfig := AIConfig{
		APIKey:      getEnv("OPENAI_API_KEY", ""),
		BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		VisionModel: getEnv("OPENAI_VISION_MODEL", "gpt-4o-mini"),
		TextModel:   getEnv("OPENAI_TEXT_MODEL", "gpt-4o-mini"),
		ImageModel:  getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		ImageSize:   getEnv("OPENAI_IMAGE_SIZE", "1024x1024"),
		Timeout:     getEnvDuration("OPENAI_TIMEOUT", 90*time.Second),
		CacheTTL:    getEnvDuration("AI_CACHE_TTL", time.Hour),
	}

	return Config{
		Env:        getEnv("ENV", "production"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Auth:       authConfig,
		Storage:    storageConfig,
		MQ:         mqConfig,
		AI:         aiConfig,
		Redis:      RedisConfig{URL: getEnv("REDIS_URL", "")},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		CORS:            CORSConfig{AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"})},
		TagAttachPolicy: getEnv("TAG_ATTACH_POLICY", "existing"),
	}
}

// IsDev reports whether the process runs in the development environment.
func (c Config) IsDev() bool {
	return c.Env == "dev"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
