package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Auth struct {
	// Base64 encoded HS256 secret
	JWTSecret string `yaml:"jwtSecret"`

	Secret []byte `yaml:"-"`
}

type Relay struct {
	HeartbeatInterval        string  `yaml:"heartbeatInterval"`
	MissedProbes             int     `yaml:"missedProbes"`
	SendBuffer               int     `yaml:"sendBuffer"`
	MessagesPerSecond        float64 `yaml:"messagesPerSecond"`
	Burst                    int     `yaml:"burst"`
	MaxConnectionsPerAccount int     `yaml:"maxConnectionsPerAccount"`
	MaxRoomsPerConnection    int     `yaml:"maxRoomsPerConnection"`
	MaxMessageBytes          int64   `yaml:"maxMessageBytes"`
	MaxChatRunes             int     `yaml:"maxChatRunes"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // sketchrelay
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	FilePath  string `yaml:"filePath"`  // empty disables file output
}

type Redis struct {
	Endpoint string `yaml:"endpoint"` // empty disables the cluster bus and chat cache
}

type Store struct {
	Backend     string `yaml:"backend"` // dynamo|postgres|none
	DynamoTable string `yaml:"dynamoTable"`
	DynamoURL   string `yaml:"dynamoEndpoint"`
	PostgresDSN string `yaml:"postgresDSN"`
}

type SQS struct {
	Endpoint       string `yaml:"endpoint"`
	ChatRetryQueue string `yaml:"chatRetryQueue"` // empty disables retries
}

type Rooms struct {
	DirectoryURL string `yaml:"directoryURL"`
	VerifyOnJoin bool   `yaml:"verifyOnJoin"`
	Timeout      string `yaml:"timeout"`
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	TokenURL     string `yaml:"tokenURL"`
}

type Workers struct {
	ChatFlush    string `yaml:"chatFlush"`
	ChatBacklog  int    `yaml:"chatBacklog"`
	CounterFlush string `yaml:"counterFlush"`
	CanvasFlush  string `yaml:"canvasFlush"`
}

type Config struct {
	DevMode bool    `yaml:"devMode"`
	HTTP    HTTP    `yaml:"http"`
	Auth    Auth    `yaml:"auth"`
	Relay   Relay   `yaml:"relay"`
	Logging Logging `yaml:"logging"`
	Redis   Redis   `yaml:"redis"`
	Store   Store   `yaml:"store"`
	SQS     SQS     `yaml:"sqs"`
	Rooms   Rooms   `yaml:"rooms"`
	Workers Workers `yaml:"workers"`
}

const (
	StoreDynamo   = "dynamo"
	StorePostgres = "postgres"
	StoreNone     = "none"
)

// Load reads .env (optional), the YAML file at CONFIG_PATH (optional unless
// CONFIG_PATH is set explicitly), then environment overrides, and validates
// the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "err", err)
	}

	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = "./config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DEV_MODE"); v != "" {
		c.DevMode = v == "true"
	}
	if v := os.Getenv("HOST_PORT"); v != "" {
		c.HTTP.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = splitList(v)
	}
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Logging.Env, "APP_ENV")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Redis.Endpoint, "REDIS_ENDPOINT")
	setString(&c.Store.Backend, "STORE_BACKEND")
	setString(&c.Store.DynamoURL, "DYNAMODB_ENDPOINT")
	setString(&c.Store.PostgresDSN, "POSTGRES_DSN")
	setString(&c.SQS.Endpoint, "SQS_ENDPOINT")
	setString(&c.SQS.ChatRetryQueue, "SQS_CHAT_RETRY_QUEUE")
	setString(&c.Rooms.DirectoryURL, "ROOM_API_URL")
	setString(&c.Rooms.ClientID, "ROOM_API_CLIENT_ID")
	setString(&c.Rooms.ClientSecret, "ROOM_API_CLIENT_SECRET")
	setString(&c.Rooms.TokenURL, "ROOM_API_TOKEN_URL")
	if v := os.Getenv("ROOM_VERIFY_ON_JOIN"); v != "" {
		c.Rooms.VerifyOnJoin, _ = strconv.ParseBool(v)
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required")
	}
	secret, err := base64.StdEncoding.DecodeString(c.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("auth.jwtSecret is not valid base64: %w", err)
	}
	c.Auth.Secret = secret

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}

	if c.Relay.HeartbeatInterval == "" {
		c.Relay.HeartbeatInterval = "30s"
	}
	if c.Relay.MissedProbes <= 0 {
		c.Relay.MissedProbes = 2
	}
	if c.Relay.SendBuffer <= 0 {
		c.Relay.SendBuffer = 128
	}
	if c.Relay.MessagesPerSecond <= 0 {
		// Cursor and canvas updates both arrive at pointer rate
		c.Relay.MessagesPerSecond = 120
	}
	if c.Relay.Burst <= 0 {
		c.Relay.Burst = 240
	}
	if c.Relay.MaxConnectionsPerAccount <= 0 {
		c.Relay.MaxConnectionsPerAccount = 5
	}
	if c.Relay.MaxRoomsPerConnection <= 0 {
		c.Relay.MaxRoomsPerConnection = 50
	}
	if c.Relay.MaxMessageBytes <= 0 {
		// Full canvas snapshots are large
		c.Relay.MaxMessageBytes = 1 << 20
	}
	if c.Relay.MaxChatRunes <= 0 {
		c.Relay.MaxChatRunes = 4000
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "sketchrelay"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}

	switch c.Store.Backend {
	case "":
		c.Store.Backend = StoreDynamo
	case StoreDynamo, StorePostgres, StoreNone:
	default:
		return fmt.Errorf("store.backend %q is not one of dynamo|postgres|none", c.Store.Backend)
	}
	if c.Store.Backend == StoreDynamo && c.Store.DynamoTable == "" {
		c.Store.DynamoTable = "SketchRelay"
	}
	if c.Store.Backend == StorePostgres && c.Store.PostgresDSN == "" {
		return errors.New("store.postgresDSN is required for the postgres backend")
	}

	if c.Rooms.VerifyOnJoin && c.Rooms.DirectoryURL == "" {
		return errors.New("rooms.directoryURL is required when rooms.verifyOnJoin is set")
	}
	if c.Rooms.ClientID != "" && c.Rooms.TokenURL == "" {
		return errors.New("rooms.tokenURL is required with rooms.clientID")
	}

	if c.Workers.ChatBacklog <= 0 {
		c.Workers.ChatBacklog = 1024
	}
	return nil
}

func (c *Config) HeartbeatEvery() time.Duration {
	return parseDurationOr(30*time.Second, c.Relay.HeartbeatInterval)
}

func (c *Config) RoomLookupTimeout() time.Duration {
	return parseDurationOr(3*time.Second, c.Rooms.Timeout)
}

func (c *Config) ChatFlushEvery() time.Duration {
	return parseDurationOr(500*time.Millisecond, c.Workers.ChatFlush)
}

func (c *Config) CounterFlushEvery() time.Duration {
	return parseDurationOr(time.Minute, c.Workers.CounterFlush)
}

func (c *Config) CanvasFlushEvery() time.Duration {
	return parseDurationOr(time.Second, c.Workers.CanvasFlush)
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
