package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		Server    Server
		Mongo     Mongo
		Redis     Redis
		Storage   Storage
		Messaging Messaging
		Logger    LoggerMode
	}

	Server struct {
		Addr string
	}

	Mongo struct {
		URI      string
		Database string
		Timeout  time.Duration
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// Storage selects where session state and the messaging snapshot live.
	Storage struct {
		Backend    string // "file" or "redis"
		Dir        string
		Passphrase string
		SessionTTL time.Duration
	}

	Messaging struct {
		DirectoryURL   string // empty means resolve bundles straight from the account repository
		FlushInterval  time.Duration
		OneTimePreKeys int
		SnapshotKey    string
	}

	LoggerMode struct {
		Development bool
		Level       string
	}
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("server.addr", "localhost:9090")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "mydb")
	v.SetDefault("mongo.timeout", 10*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.dir", filepath.Join(home, ".e2e_messaging"))
	v.SetDefault("storage.passphrase", "")
	v.SetDefault("messaging.directoryurl", "")
	v.SetDefault("storage.sessionttl", time.Duration(0))
	v.SetDefault("messaging.flushinterval", time.Duration(0))
	v.SetDefault("messaging.onetimeprekeys", 20)
	v.SetDefault("messaging.snapshotkey", "messaging_data")
	v.SetDefault("logger.development", false)
	v.SetDefault("logger.level", "info")
}

// LoadConfig reads the yaml file at path (optional) and overlays MESSAGING_* environment variables.
func LoadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("messaging")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}

	switch c.Storage.Backend {
	case BackendFile, BackendRedis:
	default:
		return nil, errors.New("storage.backend must be file or redis")
	}
	return &c, nil
}

func Load(path string) (*Config, error) {
	v, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(v)
}
